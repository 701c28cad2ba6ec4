// Package memory provides an in-memory subscription.Storage for tests.
package memory

import (
	"context"
	"sync"

	"github.com/nickmkk/Platibus/pkg/subscription"
)

type key struct {
	topic      string
	subscriber string
}

// Storage is a subscription.Storage backed by a guarded map.
type Storage struct {
	mu   sync.Mutex
	rows map[key]subscription.Subscription
}

// New returns an empty in-memory Storage.
func New() *Storage {
	return &Storage{rows: make(map[key]subscription.Subscription)}
}

var _ subscription.Storage = (*Storage)(nil)

func (s *Storage) Upsert(ctx context.Context, sub subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key{topic: sub.Topic, subscriber: sub.SubscriberURI}] = sub
	return nil
}

func (s *Storage) Delete(ctx context.Context, topic, subscriber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, key{topic: topic, subscriber: subscriber})
	return nil
}

func (s *Storage) ListByTopic(ctx context.Context, topic string) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []subscription.Subscription
	for k, row := range s.rows {
		if k.topic == topic {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *Storage) All(ctx context.Context) ([]subscription.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]subscription.Subscription, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row)
	}
	return out, nil
}

func (s *Storage) Close() error { return nil }
