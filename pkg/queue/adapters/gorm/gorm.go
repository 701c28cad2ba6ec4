// Package gorm provides a queue.Storage backed by GORM, durable across
// process restart. It stores headers using the RFC-822-style blob codec
// from pkg/message so the row's denormalized columns (MessageName,
// Origination, Destination, ...) stay queryable without re-parsing the
// blob, matching the persisted storage layout.
package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/nickmkk/Platibus/pkg/database"
	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/queue"
)

// QueuedMessage is the GORM model for the QueuedMessages table. Seq is a
// monotonically increasing insertion order, independent of MessageId (a
// UUID, not sortable), so Pending can recover rows in the order they
// arrived rather than in arbitrary id order.
type QueuedMessage struct {
	Seq         int64  `gorm:"primaryKey;autoIncrement"`
	MessageId   string `gorm:"size:64;uniqueIndex:idx_queued_messages_message_id_queue_name"`
	QueueName   string `gorm:"size:128;index;uniqueIndex:idx_queued_messages_message_id_queue_name"`
	MessageName string `gorm:"size:256"`
	Origination string `gorm:"size:512"`
	Destination string `gorm:"size:512"`
	ReplyTo     string `gorm:"size:512"`
	Expires     *time.Time
	ContentType string `gorm:"size:128"`
	Headers     []byte
	Content     []byte
	Acknowledged *time.Time
	Abandoned    *time.Time
	Attempts     int
}

func (QueuedMessage) TableName() string { return "queued_messages" }

// Storage is a queue.Storage backed by a GORM connection manager.
type Storage struct {
	db database.DB
}

// New returns a Storage over db. Callers must run AutoMigrate (or an
// equivalent migration) for QueuedMessage before first use.
func New(db database.DB) *Storage {
	return &Storage{db: db}
}

var _ queue.Storage = (*Storage)(nil)

// Migrate creates or updates the queued_messages table.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.db.Get(ctx).AutoMigrate(&QueuedMessage{})
}

func toModel(q string, msg message.Message) QueuedMessage {
	headers := msg.Headers()
	model := QueuedMessage{
		MessageId:   msg.MessageId(),
		QueueName:   q,
		Destination: msg.Destination(),
		ContentType: msg.ContentType(),
		Headers:     message.EncodeHeaders(headers),
		Content:     msg.Content(),
	}
	if v, ok := headers.Get(message.HeaderMessageName); ok {
		model.MessageName = v
	}
	if v, ok := headers.Get(message.HeaderOrigination); ok {
		model.Origination = v
	}
	if v, ok := headers.Get(message.HeaderReplyTo); ok {
		model.ReplyTo = v
	}
	if exp, ok := msg.Expires(); ok {
		model.Expires = &exp
	}
	return model
}

func fromModel(model QueuedMessage) (queue.Row, error) {
	headers, err := message.DecodeHeaders(model.Headers)
	if err != nil {
		return queue.Row{}, errors.Wrap(err, "decode queue row headers")
	}
	msg := message.New(headers, model.Content)
	return queue.Row{
		MessageId:    model.MessageId,
		Message:      msg,
		Attempts:     model.Attempts,
		Acknowledged: model.Acknowledged != nil,
		Abandoned:    model.Abandoned != nil,
	}, nil
}

func (s *Storage) Insert(ctx context.Context, q string, msg message.Message) error {
	model := toModel(q, msg)
	if err := s.db.Get(ctx).WithContext(ctx).Create(&model).Error; err != nil {
		return errors.Wrap(err, "insert queued message")
	}
	return nil
}

func (s *Storage) Get(ctx context.Context, q, messageId string) (queue.Row, bool, error) {
	var model QueuedMessage
	err := s.db.Get(ctx).WithContext(ctx).
		Where("message_id = ? AND queue_name = ?", messageId, q).
		First(&model).Error
	if err == gorm.ErrRecordNotFound {
		return queue.Row{}, false, nil
	}
	if err != nil {
		return queue.Row{}, false, errors.Wrap(err, "get queued message")
	}
	row, err := fromModel(model)
	if err != nil {
		return queue.Row{}, false, err
	}
	return row, true, nil
}

func (s *Storage) Pending(ctx context.Context, q string) ([]queue.Row, error) {
	var models []QueuedMessage
	err := s.db.Get(ctx).WithContext(ctx).
		Where("queue_name = ? AND acknowledged IS NULL AND abandoned IS NULL", q).
		Order("seq").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "select pending queued messages")
	}
	rows := make([]queue.Row, 0, len(models))
	for _, model := range models {
		row, err := fromModel(model)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Storage) UpdateAttempts(ctx context.Context, q, messageId string, attempts int) error {
	err := s.db.Get(ctx).WithContext(ctx).Model(&QueuedMessage{}).
		Where("message_id = ? AND queue_name = ?", messageId, q).
		Update("attempts", attempts).Error
	if err != nil {
		return errors.Wrap(err, "update attempts")
	}
	return nil
}

func (s *Storage) Acknowledge(ctx context.Context, q, messageId string) error {
	err := s.db.Get(ctx).WithContext(ctx).
		Where("message_id = ? AND queue_name = ?", messageId, q).
		Delete(&QueuedMessage{}).Error
	if err != nil {
		return errors.Wrap(err, "delete acknowledged queued message")
	}
	return nil
}

func (s *Storage) Abandon(ctx context.Context, q, messageId string) error {
	now := time.Now().UTC()
	err := s.db.Get(ctx).WithContext(ctx).Model(&QueuedMessage{}).
		Where("message_id = ? AND queue_name = ?", messageId, q).
		Update("abandoned", &now).Error
	if err != nil {
		return errors.Wrap(err, "abandon queued message")
	}
	return nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}
