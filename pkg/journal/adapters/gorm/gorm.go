// Package gorm provides a journal.Journal backed by GORM, with Position
// implemented as the table's auto-increment primary key.
package gorm

import (
	"context"
	"time"

	"github.com/nickmkk/Platibus/pkg/database"
	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/journal"
	"github.com/nickmkk/Platibus/pkg/message"
)

// JournalEntry is the GORM model for the MessageJournal table.
type JournalEntry struct {
	Position  int64 `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time
	Category  string `gorm:"size:32;index"`
	Topic     string `gorm:"size:256;index"`
	Headers   []byte
	Content   []byte
}

func (JournalEntry) TableName() string { return "message_journal" }

// Journal is a journal.Journal backed by a GORM connection manager.
type Journal struct {
	db database.DB
}

// New returns a Journal over db. Callers must run AutoMigrate (or an
// equivalent migration) for JournalEntry before first use.
func New(db database.DB) *Journal {
	return &Journal{db: db}
}

var _ journal.Journal = (*Journal)(nil)

// Migrate creates or updates the message_journal table.
func (j *Journal) Migrate(ctx context.Context) error {
	return j.db.Get(ctx).AutoMigrate(&JournalEntry{})
}

func (j *Journal) Append(ctx context.Context, category journal.Category, topic string, msg message.Message) (journal.Position, error) {
	row := JournalEntry{
		Timestamp: time.Now().UTC(),
		Category:  string(category),
		Topic:     topic,
		Headers:   message.EncodeHeaders(msg.Headers()),
		Content:   msg.Content(),
	}
	if err := j.db.Get(ctx).WithContext(ctx).Create(&row).Error; err != nil {
		return 0, errors.Wrap(err, "append journal entry")
	}
	return journal.Position(row.Position), nil
}

func (j *Journal) Read(ctx context.Context, start journal.Position, count int, filter journal.Filter) (journal.Page, error) {
	q := j.db.Get(ctx).WithContext(ctx).Model(&JournalEntry{}).
		Where("position >= ?", int64(start)).
		Order("position ASC").
		Limit(count)
	if len(filter.Categories) > 0 {
		cats := make([]string, 0, len(filter.Categories))
		for _, c := range filter.Categories {
			cats = append(cats, string(c))
		}
		q = q.Where("category IN ?", cats)
	}
	if len(filter.Topics) > 0 {
		q = q.Where("topic IN ?", filter.Topics)
	}

	var rows []JournalEntry
	if err := q.Find(&rows).Error; err != nil {
		return journal.Page{}, errors.Wrap(err, "read journal")
	}

	entries := make([]journal.Entry, 0, len(rows))
	for _, row := range rows {
		headers, err := message.DecodeHeaders(row.Headers)
		if err != nil {
			return journal.Page{}, errors.Wrap(err, "decode journal entry headers")
		}
		entries = append(entries, journal.Entry{
			Position:  journal.Position(row.Position),
			Timestamp: row.Timestamp,
			Category:  journal.Category(row.Category),
			Topic:     row.Topic,
			Message:   message.New(headers, row.Content),
		})
	}

	next := start
	endOfJournal := len(rows) < count
	if len(rows) > 0 {
		next = journal.Position(rows[len(rows)-1].Position) + 1
	}
	if !endOfJournal {
		remaining := j.db.Get(ctx).WithContext(ctx).Model(&JournalEntry{}).Where("position >= ?", int64(next))
		if len(filter.Categories) > 0 {
			cats := make([]string, 0, len(filter.Categories))
			for _, c := range filter.Categories {
				cats = append(cats, string(c))
			}
			remaining = remaining.Where("category IN ?", cats)
		}
		if len(filter.Topics) > 0 {
			remaining = remaining.Where("topic IN ?", filter.Topics)
		}
		var total int64
		if err := remaining.Count(&total).Error; err == nil && total == 0 {
			endOfJournal = true
		}
	}
	return journal.Page{Entries: entries, Next: next, EndOfJournal: endOfJournal}, nil
}

func (j *Journal) GetBeginningOfJournal(ctx context.Context) (journal.Position, error) {
	var row JournalEntry
	err := j.db.Get(ctx).WithContext(ctx).Order("position ASC").Limit(1).Find(&row).Error
	if err != nil {
		return journal.NoPosition, errors.Wrap(err, "get beginning of journal")
	}
	return journal.Position(row.Position), nil
}
