// Package memory provides an in-memory journal.Journal for tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nickmkk/Platibus/pkg/journal"
	"github.com/nickmkk/Platibus/pkg/message"
)

// Journal is a journal.Journal backed by an append-only guarded slice.
type Journal struct {
	mu      sync.Mutex
	entries []journal.Entry
	next    int64
}

// New returns an empty in-memory Journal.
func New() *Journal {
	return &Journal{}
}

var _ journal.Journal = (*Journal)(nil)

func (j *Journal) Append(ctx context.Context, category journal.Category, topic string, msg message.Message) (journal.Position, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.next++
	entry := journal.Entry{
		Position:  journal.Position(j.next),
		Timestamp: time.Now().UTC(),
		Category:  category,
		Topic:     topic,
		Message:   msg,
	}
	j.entries = append(j.entries, entry)
	return entry.Position, nil
}

func (j *Journal) Read(ctx context.Context, start journal.Position, count int, filter journal.Filter) (journal.Page, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var matched []journal.Entry
	lastPos := start
	i := 0
	for ; i < len(j.entries); i++ {
		entry := j.entries[i]
		if entry.Position < start {
			continue
		}
		if len(matched) >= count {
			break
		}
		if filter.Matches(entry) {
			matched = append(matched, entry)
		}
		lastPos = entry.Position
	}

	endOfJournal := i >= len(j.entries)
	next := lastPos + 1
	if len(matched) == 0 {
		next = start
	}
	return journal.Page{Entries: matched, Next: next, EndOfJournal: endOfJournal}, nil
}

func (j *Journal) GetBeginningOfJournal(ctx context.Context) (journal.Position, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == 0 {
		return journal.NoPosition, nil
	}
	return j.entries[0].Position, nil
}
