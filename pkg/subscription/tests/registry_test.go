package tests

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cachemem "github.com/nickmkk/Platibus/pkg/cache/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/subscription"
	submem "github.com/nickmkk/Platibus/pkg/subscription/adapters/memory"
)

type RegistrySuite struct {
	suite.Suite
	storage  *submem.Storage
	registry *subscription.CacheRegistry
}

func (s *RegistrySuite) SetupTest() {
	s.storage = submem.New()
	reg, err := subscription.NewCacheRegistry(context.Background(), s.storage, cachemem.New())
	s.Require().NoError(err)
	s.registry = reg
}

func (s *RegistrySuite) TestAddAndGetSubscribers() {
	ctx := context.Background()
	s.Require().NoError(s.registry.AddSubscription(ctx, "orders", "http://a.example", time.Hour))
	s.Require().NoError(s.registry.AddSubscription(ctx, "orders", "http://b.example", 0))

	subs, err := s.registry.GetSubscribers(ctx, "orders")
	s.Require().NoError(err)
	sort.Strings(subs)
	s.Equal([]string{"http://a.example", "http://b.example"}, subs)
}

func (s *RegistrySuite) TestRemoveSubscriptionTakesEffectImmediately() {
	ctx := context.Background()
	s.Require().NoError(s.registry.AddSubscription(ctx, "orders", "http://a.example", 0))
	s.Require().NoError(s.registry.RemoveSubscription(ctx, "orders", "http://a.example"))

	subs, err := s.registry.GetSubscribers(ctx, "orders")
	s.Require().NoError(err)
	s.Empty(subs)
}

func (s *RegistrySuite) TestExpiredSubscriptionIsFilteredOnRead() {
	ctx := context.Background()
	s.Require().NoError(s.registry.AddSubscription(ctx, "orders", "http://a.example", time.Millisecond))
	time.Sleep(10 * time.Millisecond)

	subs, err := s.registry.GetSubscribers(ctx, "orders")
	s.Require().NoError(err)
	s.Empty(subs, "expired subscription should not be returned, even though the row may still exist in storage")

	rows, err := s.storage.ListByTopic(ctx, "orders")
	s.Require().NoError(err)
	s.Len(rows, 1, "expired row is retained in storage until a sweeper (if any) removes it")
}

func (s *RegistrySuite) TestReAddRefreshesExpiry() {
	ctx := context.Background()
	s.Require().NoError(s.registry.AddSubscription(ctx, "orders", "http://a.example", time.Millisecond))
	time.Sleep(10 * time.Millisecond)
	s.Require().NoError(s.registry.AddSubscription(ctx, "orders", "http://a.example", time.Hour))

	subs, err := s.registry.GetSubscribers(ctx, "orders")
	s.Require().NoError(err)
	s.Equal([]string{"http://a.example"}, subs)
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}
