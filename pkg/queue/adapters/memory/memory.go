// Package memory provides an in-memory queue.Storage, used for fast tests
// and for the bounded handoff case where durability is not required.
package memory

import (
	"context"
	"sync"

	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/queue"
)

type rowKey struct {
	queue     string
	messageId string
}

// Storage is a queue.Storage backed by a guarded map. It does not persist
// across process restart; Pending survives only within the process.
type Storage struct {
	mu    sync.Mutex
	rows  map[rowKey]*queue.Row
	order map[string][]string // queue -> messageId insertion order
}

// New returns an empty in-memory Storage.
func New() *Storage {
	return &Storage{
		rows:  make(map[rowKey]*queue.Row),
		order: make(map[string][]string),
	}
}

var _ queue.Storage = (*Storage)(nil)

func (s *Storage) Insert(ctx context.Context, q string, msg message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rowKey{queue: q, messageId: msg.MessageId()}
	if _, exists := s.rows[key]; exists {
		return errors.New(errors.CodeAlreadyExists, "message already enqueued", nil)
	}
	s.rows[key] = &queue.Row{MessageId: msg.MessageId(), Message: msg, Attempts: 0}
	s.order[q] = append(s.order[q], msg.MessageId())
	return nil
}

func (s *Storage) Get(ctx context.Context, q, messageId string) (queue.Row, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[rowKey{queue: q, messageId: messageId}]
	if !ok {
		return queue.Row{}, false, nil
	}
	return *row, true, nil
}

func (s *Storage) Pending(ctx context.Context, q string) ([]queue.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []queue.Row
	for _, id := range s.order[q] {
		row, ok := s.rows[rowKey{queue: q, messageId: id}]
		if !ok || row.Acknowledged || row.Abandoned {
			continue
		}
		out = append(out, *row)
	}
	return out, nil
}

func (s *Storage) UpdateAttempts(ctx context.Context, q, messageId string, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[rowKey{queue: q, messageId: messageId}]
	if !ok {
		return errors.New(errors.CodeNotFound, "queue row not found", nil)
	}
	row.Attempts = attempts
	return nil
}

func (s *Storage) Acknowledge(ctx context.Context, q, messageId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, rowKey{queue: q, messageId: messageId})
	order := s.order[q]
	for i, id := range order {
		if id == messageId {
			s.order[q] = append(order[:i], order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Storage) Abandon(ctx context.Context, q, messageId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[rowKey{queue: q, messageId: messageId}]
	if !ok {
		return errors.New(errors.CodeNotFound, "queue row not found", nil)
	}
	row.Abandoned = true
	return nil
}

func (s *Storage) Close() error { return nil }
