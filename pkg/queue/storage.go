package queue

import (
	"context"

	"github.com/nickmkk/Platibus/pkg/message"
)

// Row is one persisted queue row. A row with Acknowledged == false and
// Abandoned == false is pending.
type Row struct {
	MessageId    string
	Message      message.Message
	Attempts     int
	Acknowledged bool
	Abandoned    bool
}

// Storage is the durable backing store for a queue's rows. Implementations
// must make Insert/UpdateAttempts/Acknowledge/Abandon safe for concurrent
// use across queue names; the engine serializes access to a single row via
// its own in-memory in-flight set, so Storage need not provide row-level
// locking itself.
type Storage interface {
	// Insert persists a new row with Attempts=0. MessageId must be unique
	// within queue.
	Insert(ctx context.Context, queue string, msg message.Message) error

	// Get returns the row for (queue, messageId), or ok=false if absent.
	Get(ctx context.Context, queue, messageId string) (row Row, ok bool, err error)

	// Pending returns every non-terminal row for queue, in insertion order.
	Pending(ctx context.Context, queue string) ([]Row, error)

	// UpdateAttempts sets the row's Attempts counter.
	UpdateAttempts(ctx context.Context, queue, messageId string, attempts int) error

	// Acknowledge deletes the row; it is terminal and will not reappear.
	Acknowledge(ctx context.Context, queue, messageId string) error

	// Abandon marks the row Abandoned; it is retained for forensic reads.
	Abandon(ctx context.Context, queue, messageId string) error

	Close() error
}
