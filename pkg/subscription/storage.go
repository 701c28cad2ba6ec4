package subscription

import "context"

// Storage is the durable backing store for subscriptions; it is the source
// of truth the registry's cache is reconstructed from on init.
type Storage interface {
	// Upsert inserts or updates the (Topic, SubscriberURI) row.
	Upsert(ctx context.Context, sub Subscription) error

	// Delete removes the row for (topic, subscriber), if present.
	Delete(ctx context.Context, topic, subscriber string) error

	// ListByTopic returns every row for topic, expired or not; the caller
	// filters by Expires.
	ListByTopic(ctx context.Context, topic string) ([]Subscription, error)

	// All returns every row across every topic, used to populate the
	// registry's cache on init.
	All(ctx context.Context) ([]Subscription, error)

	Close() error
}
