// Package transport implements send/publish/subscribe and the HTTP wire
// protocol that carries them between bus instances: outbound queueing for
// critical messages, per-destination delivery, fan-out publish, and the
// long-lived subscription-renewal loop.
package transport

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nickmkk/Platibus/pkg/concurrency"
	"github.com/nickmkk/Platibus/pkg/diagnostics"
	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/journal"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/queue"
	"github.com/nickmkk/Platibus/pkg/security"
	"github.com/nickmkk/Platibus/pkg/subscription"
)

// OutboundQueueName is the distinguished queue created at init for
// critical-importance sends.
const OutboundQueueName = "Outbound"

// fanOutWorkers bounds how many subscriber deliveries a single Publish call
// can have in flight at once, so a topic with hundreds of subscribers can't
// spin up hundreds of goroutines in one call.
const fanOutWorkers = 16

// Handler processes an inbound or locally-delivered message. Non-nil error
// means "not acknowledged"; HandleIncoming returns it to the host, which
// answers HTTP 422 (see MessageResource).
type Handler func(ctx context.Context, msg message.Message, principal security.Principal) error

// Bus is the in-process facade exposing Send, Publish, Subscribe, and
// handler registration. Construct one with New and call Init before first
// use so the outbound queue and its listener are wired.
type Bus struct {
	selfBaseURI string
	bypassLocal bool

	engine   *queue.Engine
	registry subscription.Registry
	tokens   security.TokenService
	sink     diagnostics.Sink
	journal  Journaler

	clients *wireClients
	fanout  *concurrency.WorkerPool

	mu       sync.RWMutex
	handler  Handler
	outbound queue.Queue
}

// Journaler is the subset of journal.Journal the transport uses.
type Journaler interface {
	Append(ctx context.Context, category journal.Category, topic string, msg message.Message) (journal.Position, error)
}

// Config configures a new Bus.
type Config struct {
	// SelfBaseURI is this bus instance's own network address, compared
	// against a send/publish Destination to decide whether BypassLocal
	// applies.
	SelfBaseURI string
	// BypassLocal invokes the local handler directly, skipping the wire,
	// when Destination == SelfBaseURI.
	BypassLocal bool
}

// New returns a Bus. Call Init before Send/Publish/Subscribe.
func New(cfg Config, engine *queue.Engine, registry subscription.Registry, tokens security.TokenService, j Journaler, sink diagnostics.Sink) *Bus {
	if sink == nil {
		sink = diagnostics.NopSink{}
	}
	fanout := concurrency.NewWorkerPool(fanOutWorkers, 256)
	fanout.Start(context.Background())

	return &Bus{
		selfBaseURI: cfg.SelfBaseURI,
		bypassLocal: cfg.BypassLocal,
		engine:      engine,
		registry:    registry,
		tokens:      tokens,
		sink:        sink,
		journal:     j,
		clients:     newWireClients(),
		fanout:      fanout,
	}
}

// Close stops the fan-out worker pool, waiting for in-flight deliveries to
// finish. Safe to call once the bus is no longer accepting new Publish
// calls.
func (b *Bus) Close() {
	b.fanout.Stop()
}

// Init creates the Outbound queue, with the bus itself as listener, and
// registers handler as the application's inbound handler.
func (b *Bus) Init(ctx context.Context, handler Handler, options queue.Options) error {
	b.mu.Lock()
	b.handler = handler
	b.mu.Unlock()

	q, err := b.engine.Create(ctx, OutboundQueueName, queue.ListenerFunc(b.dispatchOutbound), options)
	if err != nil {
		return errors.Wrap(err, "create outbound queue")
	}
	b.mu.Lock()
	b.outbound = q
	b.mu.Unlock()

	b.sink.Emit(diagnostics.Event{Type: diagnostics.ComponentInitialized, Source: "transport"})
	return nil
}

// dispatchOutbound is the Outbound queue's listener: it runs the wire
// delivery routine and acknowledges iff delivery succeeded.
func (b *Bus) dispatchOutbound(ctx context.Context, msg message.Message, delivery *queue.DeliveryContext) error {
	err := b.deliverWire(ctx, msg)
	if err != nil {
		return err
	}
	delivery.Acknowledge()
	return nil
}

// Send delivers msg to Headers.Destination. Critical messages are enqueued
// on Outbound and return immediately; others are delivered inline.
func (b *Bus) Send(ctx context.Context, msg message.Message, principal security.Principal) error {
	if msg.Destination() == "" {
		return errors.New(errors.CodeInvalidArgument, "message has no Destination header", nil)
	}
	b.journalAppend(ctx, journal.Sent, "", msg)

	if msg.Importance() == message.Critical {
		b.mu.RLock()
		outbound := b.outbound
		b.mu.RUnlock()
		if outbound == nil {
			return errors.New(errors.CodeInternal, "transport not initialized", nil)
		}
		return outbound.Enqueue(ctx, msg, principal)
	}
	return b.deliverWire(ctx, msg)
}

// Publish fetches topic's subscribers and delivers a per-subscriber clone
// of msg to each, aggregating failures without letting one subscriber's
// failure cancel another's.
func (b *Bus) Publish(ctx context.Context, msg message.Message, topic string, principal security.Principal) error {
	subscribers, err := b.registry.GetSubscribers(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "get subscribers")
	}
	b.journalAppend(ctx, journal.Published, topic, msg)

	var mu sync.Mutex
	var failures []error
	var wg sync.WaitGroup
	for _, subscriber := range subscribers {
		wg.Add(1)
		dest := subscriber
		b.fanout.Submit(func(_ context.Context) {
			defer wg.Done()
			clone := cloneForFanOut(msg, dest, topic)
			var deliverErr error
			if clone.Importance() == message.Critical {
				b.mu.RLock()
				outbound := b.outbound
				b.mu.RUnlock()
				if outbound != nil {
					deliverErr = outbound.Enqueue(ctx, clone, principal)
				}
			} else {
				deliverErr = b.deliverWire(ctx, clone)
			}
			if deliverErr != nil {
				mu.Lock()
				failures = append(failures, deliverErr)
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if len(failures) > 0 {
		return errors.New(errors.CodeUnavailable, "one or more subscribers failed delivery", stderrors.Join(failures...))
	}
	return nil
}

func cloneForFanOut(msg message.Message, destination, topic string) message.Message {
	headers := msg.Headers()
	headers.Set(message.HeaderMessageId, uuid.NewString())
	headers.Set(message.HeaderDestination, destination)
	headers.Set(message.HeaderTopic, topic)
	return message.WithHeaders(msg, headers)
}

// deliverWire runs the single-destination wire delivery routine: optional
// journal append is done by the caller (Send/Publish already journaled
// Sent/Published), a same-process bypass when enabled, else an HTTP POST.
func (b *Bus) deliverWire(ctx context.Context, msg message.Message) error {
	destination := msg.Destination()
	if b.bypassLocal && destination == b.selfBaseURI {
		return b.invokeHandlerLocally(ctx, msg)
	}

	err := b.clients.deliver(ctx, destination, nil, msg)
	if err != nil {
		b.sink.Emit(diagnostics.Event{
			Type: diagnostics.MessageDeliveryFailed, Source: "transport",
			MessageId: msg.MessageId(), Destination: destination, Class: errors.Code(err), Err: err,
		})
		return err
	}
	b.sink.Emit(diagnostics.Event{
		Type: diagnostics.MessageDelivered, Source: "transport",
		MessageId: msg.MessageId(), Destination: destination,
	})
	return nil
}

func (b *Bus) invokeHandlerLocally(ctx context.Context, msg message.Message) error {
	principal, _ := b.tokens.Validate(ctx, headerOrEmpty(msg, message.HeaderSecurityToken))
	return b.HandleIncoming(ctx, msg, principal)
}

func headerOrEmpty(msg message.Message, name string) string {
	v, _ := msg.Headers().Get(name)
	return v
}

// HandleIncoming is the transport's entry point for messages arriving via
// the host: it journals Received, routes to the registered handler, and
// returns the handler's error. nil means acknowledged (MessageResource
// answers 202); a plain handler error means not acknowledged (422).
func (b *Bus) HandleIncoming(ctx context.Context, msg message.Message, principal security.Principal) error {
	b.journalAppend(ctx, journal.Received, "", msg)

	b.mu.RLock()
	handler := b.handler
	b.mu.RUnlock()
	if handler == nil {
		return errors.New(errors.CodeInternal, "no handler registered", nil)
	}
	return handler(ctx, msg, principal)
}

func (b *Bus) journalAppend(ctx context.Context, category journal.Category, topic string, msg message.Message) {
	if b.journal == nil {
		return
	}
	if _, err := b.journal.Append(ctx, category, topic, msg); err != nil {
		// Journal failures are observability, not delivery, failures: a
		// send/publish must not fail because the audit log couldn't keep up.
		b.sink.Emit(diagnostics.Event{Type: diagnostics.TransportFailureEvent, Source: "journal", MessageId: msg.MessageId(), Err: err})
	}
}

// SubscribeOptions configures a Subscribe call.
type SubscribeOptions struct {
	// TTL is the subscription lifetime requested from the publisher. Zero
	// means non-expiring (the loop sends one request and returns).
	TTL time.Duration
	// RenewalInterval overrides the default of TTL/2 (floored at 5s).
	RenewalInterval time.Duration
	// RetryInterval overrides the default of 30s for transient failures.
	RetryInterval time.Duration
}

// Subscribe runs the long-running renewal loop described in §4.4 against
// publisher for topic, blocking until ctx is cancelled or a fatal failure
// class is observed.
func (b *Bus) Subscribe(ctx context.Context, publisher Endpoint, topic string, opts SubscribeOptions) error {
	ttlSeconds := int64(opts.TTL / time.Second)
	renewal := opts.RenewalInterval
	if renewal <= 0 {
		renewal = opts.TTL / 2
		if renewal < 5*time.Second {
			renewal = 5 * time.Second
		}
	}
	retryInterval := opts.RetryInterval
	if retryInterval <= 0 {
		retryInterval = 30 * time.Second
	}

	for {
		err := b.clients.sendSubscriptionRequest(ctx, publisher.BaseURI, topic, b.selfBaseURI, ttlSeconds)
		if err == nil {
			b.sink.Emit(diagnostics.Event{Type: diagnostics.SubscriptionRenewed, Source: "transport", Topic: topic, Destination: publisher.BaseURI})
			if opts.TTL == 0 {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(renewal):
				continue
			}
		}

		code := errors.Code(err)
		if isFatalForSubscribe(code) {
			b.sink.Emit(diagnostics.Event{Type: diagnostics.SubscriptionFailed, Source: "transport", Topic: topic, Destination: publisher.BaseURI, Err: err})
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
			continue
		}
	}
}
