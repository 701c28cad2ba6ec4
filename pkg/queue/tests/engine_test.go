package tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/queue"
	"github.com/nickmkk/Platibus/pkg/queue/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/security"
)

// fakeTokens is a trivial TokenService that round-trips the principal's
// Subject through the opaque token string, enough for the queue engine's
// own tests without pulling in the jwt adapter.
type fakeTokens struct{}

func (fakeTokens) Issue(ctx context.Context, p security.Principal, expiresAt time.Time) (string, error) {
	return "tok:" + p.Subject, nil
}

func (fakeTokens) Validate(ctx context.Context, token string) (security.Principal, error) {
	return security.Principal{Subject: token[len("tok:"):]}, nil
}

func newMessage(id string) message.Message {
	h := message.NewHeaders()
	h.Set(message.HeaderMessageId, id)
	h.Set(message.HeaderDestination, "http://peer.example/bus")
	return message.New(h, []byte("payload-"+id))
}

type EngineSuite struct {
	suite.Suite
	storage *memory.Storage
	engine  *queue.Engine
}

func (s *EngineSuite) SetupTest() {
	s.storage = memory.New()
	s.engine = queue.NewEngine(s.storage, fakeTokens{}, nil)
}

// S1 — Retry then succeed.
func (s *EngineSuite) TestRetryThenSucceed() {
	var mu sync.Mutex
	var observedAttempts []int
	done := make(chan struct{})

	listener := queue.ListenerFunc(func(ctx context.Context, msg message.Message, delivery *queue.DeliveryContext) error {
		row, ok, err := s.storage.Get(ctx, "q", msg.MessageId())
		s.Require().NoError(err)
		s.Require().True(ok)

		mu.Lock()
		observedAttempts = append(observedAttempts, row.Attempts)
		attempt := len(observedAttempts)
		mu.Unlock()

		if attempt < 3 {
			return nil // not acknowledged
		}
		delivery.Acknowledge()
		close(done)
		return nil
	})

	q, err := s.engine.Create(context.Background(), "q", listener, queue.Options{
		ConcurrencyLimit: 1,
		MaxAttempts:      3,
		RetryDelay:       50 * time.Millisecond,
	})
	s.Require().NoError(err)
	defer q.Close()

	start := time.Now()
	s.Require().NoError(q.Enqueue(context.Background(), newMessage("m1"), security.Principal{Subject: "sender"}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("timed out waiting for acknowledgement")
	}
	elapsed := time.Since(start)

	_, ok, err := s.storage.Get(context.Background(), "q", "m1")
	s.Require().NoError(err)
	s.False(ok, "acknowledged row must be deleted")

	mu.Lock()
	defer mu.Unlock()
	s.Equal([]int{1, 2, 3}, observedAttempts)
	s.GreaterOrEqual(elapsed, 100*time.Millisecond)
}

// S2 — Dead-letter.
func (s *EngineSuite) TestDeadLetter() {
	listener := queue.ListenerFunc(func(ctx context.Context, msg message.Message, delivery *queue.DeliveryContext) error {
		return nil // never acknowledges
	})

	q, err := s.engine.Create(context.Background(), "q2", listener, queue.Options{
		ConcurrencyLimit: 1,
		MaxAttempts:      3,
		RetryDelay:       20 * time.Millisecond,
	})
	s.Require().NoError(err)
	defer q.Close()

	s.Require().NoError(q.Enqueue(context.Background(), newMessage("m2"), security.Principal{Subject: "sender"}))

	s.Require().Eventually(func() bool {
		row, ok, err := s.storage.Get(context.Background(), "q2", "m2")
		return err == nil && ok && row.Abandoned
	}, 2*time.Second, 10*time.Millisecond)

	row, ok, err := s.storage.Get(context.Background(), "q2", "m2")
	s.Require().NoError(err)
	s.Require().True(ok)
	s.Equal(3, row.Attempts)
}

// S3 — Crash recovery: a pending row present before Create is picked up and
// dispatched without re-running Enqueue.
func (s *EngineSuite) TestCrashRecovery() {
	s.Require().NoError(s.storage.Insert(context.Background(), "q3", newMessage("m3")))

	delivered := make(chan struct{})
	listener := queue.ListenerFunc(func(ctx context.Context, msg message.Message, delivery *queue.DeliveryContext) error {
		delivery.Acknowledge()
		close(delivered)
		return nil
	})

	q, err := s.engine.Create(context.Background(), "q3", listener, queue.Options{ConcurrencyLimit: 1})
	s.Require().NoError(err)
	defer q.Close()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		s.FailNow("pending row from before Create was never dispatched")
	}
}

func (s *EngineSuite) TestEnqueueFailsWhenHandoffBufferSaturated() {
	block := make(chan struct{})
	listener := queue.ListenerFunc(func(ctx context.Context, msg message.Message, delivery *queue.DeliveryContext) error {
		<-block
		delivery.Acknowledge()
		return nil
	})

	q, err := s.engine.Create(context.Background(), "q4", listener, queue.Options{
		ConcurrencyLimit:  1,
		HandoffBufferSize: 1,
	})
	s.Require().NoError(err)
	defer func() {
		close(block)
		q.Close()
	}()

	s.Require().NoError(q.Enqueue(context.Background(), newMessage("a"), security.Principal{}))
	// Give the single worker a moment to pick "a" up so the buffer is empty
	// again before we fill it, then saturate it with one row the worker
	// can't yet take because it's blocked in the listener.
	time.Sleep(50 * time.Millisecond)
	s.Require().NoError(q.Enqueue(context.Background(), newMessage("b"), security.Principal{}))

	err = q.Enqueue(context.Background(), newMessage("c"), security.Principal{})
	s.Require().Error(err)
	var full *queue.QueueFull
	s.Require().ErrorAs(err, &full)
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}
