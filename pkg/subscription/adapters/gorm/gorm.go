// Package gorm provides a subscription.Storage backed by GORM.
package gorm

import (
	"context"
	"time"

	"gorm.io/gorm/clause"

	"github.com/nickmkk/Platibus/pkg/database"
	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/subscription"
)

// SubscriptionRow is the GORM model for the Subscriptions table.
type SubscriptionRow struct {
	TopicName  string `gorm:"primaryKey;size:256"`
	Subscriber string `gorm:"primaryKey;size:512"`
	Expires    time.Time
}

func (SubscriptionRow) TableName() string { return "subscriptions" }

// Storage is a subscription.Storage backed by a GORM connection manager.
type Storage struct {
	db database.DB
}

// New returns a Storage over db. Callers must run AutoMigrate (or an
// equivalent migration) for SubscriptionRow before first use.
func New(db database.DB) *Storage {
	return &Storage{db: db}
}

var _ subscription.Storage = (*Storage)(nil)

// Migrate creates or updates the subscriptions table.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.db.Get(ctx).AutoMigrate(&SubscriptionRow{})
}

func (s *Storage) Upsert(ctx context.Context, sub subscription.Subscription) error {
	row := SubscriptionRow{TopicName: sub.Topic, Subscriber: sub.SubscriberURI, Expires: sub.Expires}
	err := s.db.Get(ctx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "topic_name"}, {Name: "subscriber"}},
			DoUpdates: clause.AssignmentColumns([]string{"expires"}),
		}).
		Create(&row).Error
	if err != nil {
		return errors.Wrap(err, "upsert subscription")
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, topic, subscriber string) error {
	err := s.db.Get(ctx).WithContext(ctx).
		Where("topic_name = ? AND subscriber = ?", topic, subscriber).
		Delete(&SubscriptionRow{}).Error
	if err != nil {
		return errors.Wrap(err, "delete subscription")
	}
	return nil
}

func (s *Storage) ListByTopic(ctx context.Context, topic string) ([]subscription.Subscription, error) {
	var rows []SubscriptionRow
	err := s.db.Get(ctx).WithContext(ctx).Where("topic_name = ?", topic).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list subscriptions by topic")
	}
	return toSubscriptions(rows), nil
}

func (s *Storage) All(ctx context.Context) ([]subscription.Subscription, error) {
	var rows []SubscriptionRow
	if err := s.db.Get(ctx).WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "list all subscriptions")
	}
	return toSubscriptions(rows), nil
}

func toSubscriptions(rows []SubscriptionRow) []subscription.Subscription {
	out := make([]subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		out = append(out, subscription.Subscription{
			Topic:         row.TopicName,
			SubscriberURI: row.Subscriber,
			Expires:       row.Expires,
		})
	}
	return out
}

func (s *Storage) Close() error {
	return s.db.Close()
}
