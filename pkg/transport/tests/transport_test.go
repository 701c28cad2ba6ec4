package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cachemem "github.com/nickmkk/Platibus/pkg/cache/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/diagnostics"
	journalmem "github.com/nickmkk/Platibus/pkg/journal/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/queue"
	queuemem "github.com/nickmkk/Platibus/pkg/queue/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/security"
	"github.com/nickmkk/Platibus/pkg/subscription"
	submem "github.com/nickmkk/Platibus/pkg/subscription/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/transport"
)

// fakeTokens is a trivial TokenService sufficient for transport tests; it
// round-trips the principal's Subject through the opaque token string.
type fakeTokens struct{}

func (fakeTokens) Issue(ctx context.Context, p security.Principal, expiresAt time.Time) (string, error) {
	return "tok:" + p.Subject, nil
}

func (fakeTokens) Validate(ctx context.Context, token string) (security.Principal, error) {
	if len(token) < len("tok:") {
		return security.Principal{}, nil
	}
	return security.Principal{Subject: token[len("tok:"):]}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []diagnostics.Event
}

func (r *recordingSink) Emit(e diagnostics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) ofType(t diagnostics.EventType) []diagnostics.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []diagnostics.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newMessage(topic string) message.Message {
	h := message.NewHeaders()
	h.Set(message.HeaderMessageId, "original")
	h.Set(message.HeaderTopic, topic)
	return message.New(h, []byte("payload"))
}

func newRegistry(t *testing.T) subscription.Registry {
	t.Helper()
	registry, err := subscription.NewCacheRegistry(context.Background(), submem.New(), cachemem.New())
	if err != nil {
		t.Fatalf("NewCacheRegistry: %v", err)
	}
	return registry
}

func newBus(t *testing.T, sink diagnostics.Sink, registry subscription.Registry) *transport.Bus {
	t.Helper()
	engine := queue.NewEngine(queuemem.New(), fakeTokens{}, sink)
	j := journalmem.New()
	bus := transport.New(transport.Config{SelfBaseURI: "http://self.example/bus"}, engine, registry, fakeTokens{}, j, sink)
	err := bus.Init(context.Background(), func(ctx context.Context, msg message.Message, principal security.Principal) error {
		return nil
	}, queue.Options{})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	return bus
}

// S4 — Publish fans a message out to every topic subscriber, each with a
// distinct MessageId and the correct Destination.
type PublishSuite struct {
	suite.Suite
}

func (s *PublishSuite) TestFanOutDeliversToEverySubscriber() {
	var idA, idB atomic.Value
	var destA, destB atomic.Value
	var gotA, gotB atomic.Bool

	serverA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idA.Store(r.Header.Get(message.HeaderMessageId))
		destA.Store(r.Header.Get(message.HeaderDestination))
		gotA.Store(true)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer serverA.Close()
	serverB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idB.Store(r.Header.Get(message.HeaderMessageId))
		destB.Store(r.Header.Get(message.HeaderDestination))
		gotB.Store(true)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer serverB.Close()

	ctx := context.Background()
	registry := newRegistry(s.T())
	s.Require().NoError(registry.AddSubscription(ctx, "Orders", serverA.URL, 0))
	s.Require().NoError(registry.AddSubscription(ctx, "Orders", serverB.URL, 0))

	sink := &recordingSink{}
	bus := newBus(s.T(), sink, registry)

	err := bus.Publish(ctx, newMessage("Orders"), "Orders", security.Principal{})
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return gotA.Load() && gotB.Load()
	}, time.Second, 10*time.Millisecond)

	s.NotEqual(idA.Load(), idB.Load(), "each fan-out clone must carry a fresh MessageId")
	s.Equal(serverA.URL, destA.Load(), "Destination must be the target subscriber")
	s.Equal(serverB.URL, destB.Load(), "Destination must be the target subscriber")
}

func TestPublishSuite(t *testing.T) {
	suite.Run(t, new(PublishSuite))
}

// S5 — Subscribe retries transient failures (503 here; 404 is also retried),
// treats a 400 (InvalidRequest) as fatal per isFatalForSubscribe, and renews
// on a timer while healthy.
type SubscribeSuite struct {
	suite.Suite
}

func (s *SubscribeSuite) TestRetriesOnTransientFailureThenSucceeds() {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := &recordingSink{}
	registry := newRegistry(s.T())
	bus := newBus(s.T(), sink, registry)

	err := bus.Subscribe(context.Background(), transport.Endpoint{BaseURI: server.URL}, "Orders", transport.SubscribeOptions{
		TTL:           0,
		RetryInterval: 20 * time.Millisecond,
	})
	s.Require().NoError(err)
	s.Require().GreaterOrEqual(calls.Load(), int32(2))
	s.NotEmpty(sink.ofType(diagnostics.SubscriptionRenewed))
}

func (s *SubscribeSuite) TestFatalFailureStopsTheLoop() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	sink := &recordingSink{}
	registry := newRegistry(s.T())
	bus := newBus(s.T(), sink, registry)

	err := bus.Subscribe(context.Background(), transport.Endpoint{BaseURI: server.URL}, "Orders", transport.SubscribeOptions{
		TTL:           time.Minute,
		RetryInterval: 10 * time.Millisecond,
	})
	s.Require().Error(err)
	s.NotEmpty(sink.ofType(diagnostics.SubscriptionFailed))
}

func TestSubscribeSuite(t *testing.T) {
	suite.Run(t, new(SubscribeSuite))
}
