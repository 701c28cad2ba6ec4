package queue

import (
	"context"
	"sync"
	"time"

	"github.com/nickmkk/Platibus/pkg/concurrency"
	"github.com/nickmkk/Platibus/pkg/diagnostics"
	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/logger"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/security"
)

// pollInterval bounds how long a worker waits for a wake-up signal before
// re-checking pending rows itself; it is the fallback that makes recovery
// and bounded-buffer handoff converge even if a signal is missed.
const pollInterval = 250 * time.Millisecond

// Engine creates and owns queues backed by a single Storage. Construct one
// with NewEngine and call Create for each named queue before enqueuing.
type Engine struct {
	storage Storage
	tokens  security.TokenService
	sink    diagnostics.Sink

	mu     sync.Mutex
	queues map[string]*queueState
}

// NewEngine returns an Engine over storage, issuing security tokens via
// tokens and emitting diagnostics to sink. A nil sink is replaced with
// diagnostics.NopSink{}.
func NewEngine(storage Storage, tokens security.TokenService, sink diagnostics.Sink) *Engine {
	if sink == nil {
		sink = diagnostics.NopSink{}
	}
	return &Engine{
		storage: storage,
		tokens:  tokens,
		sink:    sink,
		queues:  make(map[string]*queueState),
	}
}

// Create is idempotent: if a queue named name already exists its existing
// handle is returned. Otherwise pending rows are loaded from storage
// (attempts preserved) and re-enqueued for dispatch, and
// ConcurrencyLimit worker goroutines are started.
func (e *Engine) Create(ctx context.Context, name string, listener Listener, options Options) (Queue, error) {
	options = options.withDefaults()

	e.mu.Lock()
	if qs, ok := e.queues[name]; ok {
		e.mu.Unlock()
		return qs, nil
	}
	qctx, cancel := context.WithCancel(context.Background())
	qs := &queueState{
		name:     name,
		listener: listener,
		options:  options,
		engine:   e,
		sem:      concurrency.NewSemaphore(int64(options.ConcurrencyLimit)),
		signal:   make(chan struct{}, 1),
		inflight: make(map[string]struct{}),
		mu:       concurrency.NewSmartMutex(concurrency.MutexConfig{Name: "queue:" + name}),
		ctx:      qctx,
		cancel:   cancel,
	}
	e.queues[name] = qs
	e.mu.Unlock()

	rows, err := e.storage.Pending(ctx, name)
	if err != nil {
		return nil, errors.Wrap(err, "load pending rows for queue "+name)
	}
	qs.mu.Lock()
	for _, row := range rows {
		qs.pendingIDs = append(qs.pendingIDs, row.MessageId)
	}
	qs.mu.Unlock()

	for i := 0; i < options.ConcurrencyLimit; i++ {
		qs.wg.Add(1)
		go qs.worker()
	}

	e.sink.Emit(diagnostics.Event{Type: diagnostics.ComponentInitialized, Source: "queue:" + name, Queue: name})
	return qs, nil
}

// queueState is the per-queue dispatch machinery: a FIFO of message IDs
// ready for handoff, an in-flight set preventing double-processing of a
// row, and ConcurrencyLimit worker goroutines pulling from the FIFO.
type queueState struct {
	name     string
	listener Listener
	options  Options
	engine   *Engine

	sem    *concurrency.Semaphore
	signal chan struct{}

	mu         *concurrency.SmartMutex // guards pendingIDs
	pendingIDs []string

	inflightMu sync.Mutex
	inflight   map[string]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (qs *queueState) Name() string { return qs.name }

func (qs *queueState) Enqueue(ctx context.Context, msg message.Message, principal security.Principal) error {
	headers := msg.Headers()
	expires, hasExpires := msg.Expires()
	tokenExpiry := time.Now().Add(24 * time.Hour)
	if hasExpires && expires.Before(tokenExpiry) {
		tokenExpiry = expires
	}
	token, err := qs.engine.tokens.Issue(ctx, principal, tokenExpiry)
	if err != nil {
		return errors.Wrap(err, "issue security token")
	}
	headers.Set(message.HeaderSecurityToken, token)
	msg = message.WithHeaders(msg, headers)

	qs.mu.Lock()
	if qs.options.HandoffBufferSize > 0 && len(qs.pendingIDs) >= qs.options.HandoffBufferSize {
		qs.mu.Unlock()
		return &QueueFull{Queue: qs.name}
	}
	qs.mu.Unlock()

	if err := qs.engine.storage.Insert(ctx, qs.name, msg); err != nil {
		return errors.Wrap(err, "insert queue row")
	}

	qs.mu.Lock()
	qs.pendingIDs = append(qs.pendingIDs, msg.MessageId())
	qs.mu.Unlock()
	qs.wake()

	qs.engine.sink.Emit(diagnostics.Event{
		Type: diagnostics.MessageEnqueued, Source: "queue:" + qs.name,
		Queue: qs.name, MessageId: msg.MessageId(),
	})
	return nil
}

func (qs *queueState) Close() {
	qs.cancel()
	qs.wg.Wait()
}

func (qs *queueState) wake() {
	select {
	case qs.signal <- struct{}{}:
	default:
	}
}

// popNextReady removes and returns the first pending ID that is not already
// in flight, preserving FIFO selection order (invariant 5.a/5.b).
func (qs *queueState) popNextReady() (string, bool) {
	qs.mu.Lock()
	defer qs.mu.Unlock()

	qs.inflightMu.Lock()
	defer qs.inflightMu.Unlock()

	for i, id := range qs.pendingIDs {
		if _, busy := qs.inflight[id]; busy {
			continue
		}
		qs.pendingIDs = append(qs.pendingIDs[:i:i], qs.pendingIDs[i+1:]...)
		qs.inflight[id] = struct{}{}
		return id, true
	}
	return "", false
}

func (qs *queueState) requeue(id string) {
	qs.inflightMu.Lock()
	delete(qs.inflight, id)
	qs.inflightMu.Unlock()

	qs.mu.Lock()
	qs.pendingIDs = append(qs.pendingIDs, id)
	qs.mu.Unlock()
	qs.wake()
}

func (qs *queueState) release(id string) {
	qs.inflightMu.Lock()
	delete(qs.inflight, id)
	qs.inflightMu.Unlock()
}

func (qs *queueState) worker() {
	defer qs.wg.Done()
	for {
		select {
		case <-qs.ctx.Done():
			return
		default:
		}

		id, ok := qs.popNextReady()
		if !ok {
			select {
			case <-qs.ctx.Done():
				return
			case <-qs.signal:
				continue
			case <-time.After(pollInterval):
				continue
			}
		}

		if err := qs.sem.Acquire(qs.ctx, 1); err != nil {
			qs.requeue(id)
			return
		}
		qs.attempt(id)
		qs.sem.Release(1)
	}
}

func (qs *queueState) attempt(id string) {
	ctx := qs.ctx
	row, ok, err := qs.engine.storage.Get(ctx, qs.name, id)
	if err != nil || !ok {
		if err != nil {
			logger.L().ErrorContext(ctx, "failed to load queue row", "queue", qs.name, "messageId", id, "error", err)
		}
		qs.release(id)
		return
	}
	if row.Acknowledged || row.Abandoned {
		qs.release(id)
		return
	}
	if row.Message.IsExpired(time.Now()) {
		_ = qs.engine.storage.Abandon(ctx, qs.name, id)
		qs.release(id)
		return
	}

	attempts := row.Attempts + 1
	if err := qs.engine.storage.UpdateAttempts(ctx, qs.name, id, attempts); err != nil {
		logger.L().ErrorContext(ctx, "failed to update attempts", "queue", qs.name, "messageId", id, "error", err)
		qs.requeue(id)
		return
	}

	delivery := &DeliveryContext{}
	listenerErr := qs.invokeListener(ctx, row.Message, delivery)
	acked := delivery.Acknowledged() || (qs.options.AutoAcknowledge && listenerErr == nil)

	if acked {
		if err := qs.engine.storage.Acknowledge(ctx, qs.name, id); err != nil {
			logger.L().ErrorContext(ctx, "failed to acknowledge queue row", "queue", qs.name, "messageId", id, "error", err)
		}
		qs.engine.sink.Emit(diagnostics.Event{
			Type: diagnostics.MessageAcknowledged, Source: "queue:" + qs.name,
			Queue: qs.name, MessageId: id,
		})
		qs.release(id)
		return
	}

	qs.engine.sink.Emit(diagnostics.Event{
		Type: diagnostics.MessageNotAcked, Source: "queue:" + qs.name,
		Queue: qs.name, MessageId: id, Err: listenerErr,
	})

	if attempts >= qs.options.MaxAttempts {
		if err := qs.engine.storage.Abandon(ctx, qs.name, id); err != nil {
			logger.L().ErrorContext(ctx, "failed to abandon queue row", "queue", qs.name, "messageId", id, "error", err)
		}
		qs.engine.sink.Emit(diagnostics.Event{
			Type: diagnostics.DeadLetter, Source: "queue:" + qs.name,
			Queue: qs.name, MessageId: id,
		})
		qs.release(id)
		return
	}

	select {
	case <-time.After(qs.options.RetryDelay):
	case <-qs.ctx.Done():
	}
	qs.requeue(id)
}

// invokeListener recovers from a listener panic, treating it the same as a
// returned error: "not acknowledged", never fatal to the worker.
func (qs *queueState) invokeListener(ctx context.Context, msg message.Message, delivery *DeliveryContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().ErrorContext(ctx, "listener panicked", "queue", qs.name, "recovered", r)
			err = errors.New(errors.CodeInternal, "listener panicked", nil)
		}
	}()
	return qs.listener.MessageReceived(ctx, msg, delivery)
}
