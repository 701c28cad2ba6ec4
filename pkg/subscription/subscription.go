// Package subscription implements the durable (topic, subscriber URI,
// expiry) registry queried on every publish.
package subscription

import (
	"context"
	"time"
)

// farFuture stands in for a non-expiring subscription: a TTL of zero or
// negative is stored as this sentinel rather than a nullable column.
var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// Subscription is one (topic, subscriber) record.
type Subscription struct {
	Topic         string
	SubscriberURI string
	Expires       time.Time
}

// Expired reports whether the subscription's Expires instant is before now.
func (s Subscription) Expired(now time.Time) bool {
	return s.Expires.Before(now)
}

// Registry is the durable subscription set plus its read-through cache.
type Registry interface {
	// AddSubscription upserts (topic, subscriber) with Expires computed
	// from ttl: now+ttl if ttl > 0, else non-expiring. Re-adding an
	// existing pair refreshes Expires.
	AddSubscription(ctx context.Context, topic, subscriber string, ttl time.Duration) error

	// RemoveSubscription deletes (topic, subscriber), if present.
	RemoveSubscription(ctx context.Context, topic, subscriber string) error

	// GetSubscribers returns every subscriber URI for topic whose most
	// recent Add has not expired and which has not since been removed.
	GetSubscribers(ctx context.Context, topic string) ([]string, error)
}
