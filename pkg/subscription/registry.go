package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/nickmkk/Platibus/pkg/cache"
	"github.com/nickmkk/Platibus/pkg/concurrency"
	"github.com/nickmkk/Platibus/pkg/errors"
)

// CacheRegistry is a Registry backed by Storage for durability and cache
// for lock-free reads. The backing store is the source of truth: cache is
// rebuilt from storage on NewCacheRegistry and kept in lockstep by every
// mutation.
type CacheRegistry struct {
	storage Storage
	cache   cache.Cache

	locksMu sync.Mutex
	locks   map[string]*concurrency.SmartRWMutex
}

var _ Registry = (*CacheRegistry)(nil)

// NewCacheRegistry scans storage and populates c with one entry per topic,
// then returns a Registry backed by both.
func NewCacheRegistry(ctx context.Context, storage Storage, c cache.Cache) (*CacheRegistry, error) {
	r := &CacheRegistry{
		storage: storage,
		cache:   c,
		locks:   make(map[string]*concurrency.SmartRWMutex),
	}

	all, err := storage.All(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load subscriptions for cache warm-up")
	}
	byTopic := make(map[string][]Subscription)
	for _, sub := range all {
		byTopic[sub.Topic] = append(byTopic[sub.Topic], sub)
	}
	for topic, subs := range byTopic {
		if err := c.Set(ctx, cacheKey(topic), subs, 0); err != nil {
			return nil, errors.Wrap(err, "warm subscription cache")
		}
	}
	return r, nil
}

func cacheKey(topic string) string { return "subscription:" + topic }

func (r *CacheRegistry) lockFor(topic string) *concurrency.SmartRWMutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	l, ok := r.locks[topic]
	if !ok {
		l = concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "subscription:" + topic})
		r.locks[topic] = l
	}
	return l
}

func (r *CacheRegistry) AddSubscription(ctx context.Context, topic, subscriber string, ttl time.Duration) error {
	expires := farFuture
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	lock := r.lockFor(topic)
	lock.Lock()
	defer lock.Unlock()

	if err := r.storage.Upsert(ctx, Subscription{Topic: topic, SubscriberURI: subscriber, Expires: expires}); err != nil {
		return errors.Wrap(err, "upsert subscription")
	}
	return r.refreshCacheLocked(ctx, topic)
}

func (r *CacheRegistry) RemoveSubscription(ctx context.Context, topic, subscriber string) error {
	lock := r.lockFor(topic)
	lock.Lock()
	defer lock.Unlock()

	if err := r.storage.Delete(ctx, topic, subscriber); err != nil {
		return errors.Wrap(err, "delete subscription")
	}
	return r.refreshCacheLocked(ctx, topic)
}

// refreshCacheLocked recomputes topic's cached row set from storage, expired
// rows included — expiry is filtered on read, not on write, per the
// registry's adopted open-question answer. Called with the topic's lock
// held.
func (r *CacheRegistry) refreshCacheLocked(ctx context.Context, topic string) error {
	rows, err := r.storage.ListByTopic(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "list subscriptions by topic")
	}
	if err := r.cache.Set(ctx, cacheKey(topic), rows, 0); err != nil {
		return errors.Wrap(err, "update subscription cache")
	}
	return nil
}

// GetSubscribers is lock-free: it reads the cache, falling back to storage
// and repopulating the cache on a miss (e.g. a topic never mutated since
// process start but present from a concurrent writer on another node).
func (r *CacheRegistry) GetSubscribers(ctx context.Context, topic string) ([]string, error) {
	var rows []Subscription
	if err := r.cache.Get(ctx, cacheKey(topic), &rows); err != nil {
		var loadErr error
		rows, loadErr = r.storage.ListByTopic(ctx, topic)
		if loadErr != nil {
			return nil, errors.Wrap(loadErr, "list subscriptions by topic")
		}
		_ = r.cache.Set(ctx, cacheKey(topic), rows, 0)
	}

	now := time.Now()
	var subscribers []string
	for _, row := range rows {
		if !row.Expired(now) {
			subscribers = append(subscribers, row.SubscriberURI)
		}
	}
	return subscribers, nil
}
