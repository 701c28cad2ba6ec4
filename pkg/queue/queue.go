// Package queue implements the durable per-name FIFO queue: at-least-once
// dispatch to a listener with a concurrency cap, retry-with-delay on
// non-acknowledgement, dead-lettering on attempt exhaustion, and recovery of
// pending rows across a restart.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/security"
)

// QueueFull is returned by Enqueue when the queue was configured with a
// bounded handoff buffer and that buffer is saturated.
type QueueFull struct {
	Queue string
}

func (e *QueueFull) Error() string {
	return "queue " + e.Queue + " is full"
}

// Options controls a queue's dispatch behavior.
type Options struct {
	// ConcurrencyLimit is the number of worker goroutines dispatching
	// concurrently. Must be >= 1; defaults to 4.
	ConcurrencyLimit int

	// AutoAcknowledge treats a listener call that returns without error as
	// acknowledged even if the listener never called Acknowledge.
	AutoAcknowledge bool

	// MaxAttempts is the number of delivery attempts before a row is
	// abandoned. Must be >= 1; defaults to 10.
	MaxAttempts int

	// RetryDelay is the pause between a non-acknowledged attempt and the
	// next. Must be > 0; defaults to 1s.
	RetryDelay time.Duration

	// TTL is accepted for configuration but the engine does not read it:
	// pending messages are not dropped by age. A message's own Expires
	// header is what ends dispatch of an outdated message.
	TTL time.Duration

	// IsDurable marks the queue's backing storage as expected to survive
	// process restart. It is informational: the engine does not act on it.
	// Durability depends on the Storage adapter (the GORM adapter persists
	// across restart, the memory adapter does not).
	IsDurable bool

	// HandoffBufferSize bounds the number of messages that may be pending
	// handoff to a worker at once. Zero means unbounded.
	HandoffBufferSize int
}

func (o Options) withDefaults() Options {
	if o.ConcurrencyLimit <= 0 {
		o.ConcurrencyLimit = 4
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// DeliveryContext is passed to Listener.MessageReceived so the listener can
// signal acknowledgement explicitly, independent of returning an error.
type DeliveryContext struct {
	mu           sync.Mutex
	acknowledged bool
}

// Acknowledge marks the current delivery attempt as successfully absorbed.
func (d *DeliveryContext) Acknowledge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acknowledged = true
}

// Acknowledged reports whether Acknowledge was called.
func (d *DeliveryContext) Acknowledged() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.acknowledged
}

// Listener receives messages dispatched from a queue. A returned error, or
// simply not calling delivery.Acknowledge(), counts as non-acknowledgement;
// the listener is never responsible for retry bookkeeping.
type Listener interface {
	MessageReceived(ctx context.Context, msg message.Message, delivery *DeliveryContext) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, msg message.Message, delivery *DeliveryContext) error

func (f ListenerFunc) MessageReceived(ctx context.Context, msg message.Message, delivery *DeliveryContext) error {
	return f(ctx, msg, delivery)
}

// Queue is the per-name handle returned by Engine.Create.
type Queue interface {
	Name() string
	// Enqueue persists msg with attempts=0 and hands it off for dispatch.
	// The caller's principal is captured in a freshly issued security
	// token on msg's headers.
	Enqueue(ctx context.Context, msg message.Message, principal security.Principal) error
	// Close stops dispatch: it cancels the queue's own context, which
	// in-flight listener calls receive, and waits for every worker to
	// return. The ctx passed to Create does not govern the queue's lifetime.
	Close()
}
