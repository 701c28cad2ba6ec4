// Package journal implements the append-only, ordered, filterable log of
// sent/received/published messages.
package journal

import (
	"context"
	"strconv"
	"time"

	"github.com/nickmkk/Platibus/pkg/message"
)

// Category classifies why an entry was journaled.
type Category string

const (
	Sent      Category = "Sent"
	Received  Category = "Received"
	Published Category = "Published"
)

// Position totally orders journal entries. It is backed by the storage
// layer's auto-increment id; callers must treat it as opaque except for
// the ordering guarantee A < B implied by insertion order A before B.
type Position int64

// String renders p for persistence in a saved-position file or resume
// token; ParsePosition reverses it.
func (p Position) String() string {
	return strconv.FormatInt(int64(p), 10)
}

// ParsePosition parses a string produced by Position.String.
func ParsePosition(s string) (Position, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Position(v), nil
}

// NoPosition is the zero value, returned when a journal is empty.
const NoPosition Position = 0

// Entry is one journaled occurrence.
type Entry struct {
	Position  Position
	Timestamp time.Time
	Category  Category
	Topic     string
	Message   message.Message
}

// Filter restricts Read to entries matching every non-empty field
// (conjunctive: category AND topic, when both are given).
type Filter struct {
	Categories []Category
	Topics     []string
}

// Matches reports whether e satisfies f. An empty Filter matches everything.
func (f Filter) Matches(e Entry) bool {
	if len(f.Categories) > 0 && !containsCategory(f.Categories, e.Category) {
		return false
	}
	if len(f.Topics) > 0 && !containsString(f.Topics, e.Topic) {
		return false
	}
	return true
}

func containsCategory(set []Category, c Category) bool {
	for _, v := range set {
		if v == c {
			return true
		}
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Page is the result of one Read call.
type Page struct {
	Entries      []Entry
	Next         Position
	EndOfJournal bool
}

// Journal is the append-only, ordered, filterable log.
type Journal interface {
	// Append writes one entry with a newly allocated Position.
	Append(ctx context.Context, category Category, topic string, msg message.Message) (Position, error)

	// Read returns up to count entries at or after start matching filter.
	// A read is repeatable: identical (start, count, filter) returns
	// identical entries in identical order, provided no entries with a
	// Position < the last one returned have since been appended (they
	// cannot be, since Position is monotonic).
	Read(ctx context.Context, start Position, count int, filter Filter) (Page, error)

	// GetBeginningOfJournal returns the earliest valid Position, or
	// NoPosition if the journal is empty.
	GetBeginningOfJournal(ctx context.Context) (Position, error)
}
