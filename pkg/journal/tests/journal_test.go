package tests

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/nickmkk/Platibus/pkg/journal"
	"github.com/nickmkk/Platibus/pkg/journal/adapters/memory"
	"github.com/nickmkk/Platibus/pkg/message"
)

func newEntryMessage(id string) message.Message {
	h := message.NewHeaders()
	h.Set(message.HeaderMessageId, id)
	return message.New(h, nil)
}

type JournalSuite struct {
	suite.Suite
	journal *memory.Journal
}

func (s *JournalSuite) SetupTest() {
	s.journal = memory.New()
}

// S6 — Journal paging and filtering.
func (s *JournalSuite) TestPagingAndFiltering() {
	ctx := context.Background()
	topics := []string{"Foo", "Foo", "Foo", "Foo", "Bar", "Bar", "Bar", "Bar",
		"Baz", "Baz", "Baz", "Baz", "Baz", "Baz", "Baz", "Baz"}
	topicIdx := 0

	appendN := func(n int, category journal.Category, withTopic bool) {
		for i := 0; i < n; i++ {
			topic := ""
			if withTopic {
				topic = topics[topicIdx]
				topicIdx++
			}
			_, err := s.journal.Append(ctx, category, topic, newEntryMessage(fmt.Sprintf("%s-%d", category, i)))
			s.Require().NoError(err)
		}
	}

	appendN(8, journal.Sent, true)
	appendN(16, journal.Received, false)
	appendN(8, journal.Published, true)
	// The 16 topics go to the Sent and Published entries, giving the
	// scenario's {Foo:4, Bar:4, Baz:8, none:16} split; Received entries
	// carry no topic.
	_ = topicIdx

	start, err := s.journal.GetBeginningOfJournal(ctx)
	s.Require().NoError(err)

	page1, err := s.journal.Read(ctx, start, 10, journal.Filter{Categories: []journal.Category{journal.Received}})
	s.Require().NoError(err)
	s.Len(page1.Entries, 10)
	s.False(page1.EndOfJournal)

	page2, err := s.journal.Read(ctx, page1.Next, 10, journal.Filter{Categories: []journal.Category{journal.Received}})
	s.Require().NoError(err)
	s.Len(page2.Entries, 6)
	s.True(page2.EndOfJournal)

	// Repeatability (invariant 6).
	page1Again, err := s.journal.Read(ctx, start, 10, journal.Filter{Categories: []journal.Category{journal.Received}})
	s.Require().NoError(err)
	s.Equal(page1.Entries, page1Again.Entries)
}

// Invariant 7: position strictly orders insertion.
func (s *JournalSuite) TestPositionIsMonotonic() {
	ctx := context.Background()
	p1, err := s.journal.Append(ctx, journal.Sent, "", newEntryMessage("a"))
	s.Require().NoError(err)
	p2, err := s.journal.Append(ctx, journal.Sent, "", newEntryMessage("b"))
	s.Require().NoError(err)
	s.Less(p1, p2)
}

func (s *JournalSuite) TestPositionRoundTripsThroughString() {
	ctx := context.Background()
	p, err := s.journal.Append(ctx, journal.Sent, "", newEntryMessage("a"))
	s.Require().NoError(err)

	parsed, err := journal.ParsePosition(p.String())
	s.Require().NoError(err)
	s.Equal(p, parsed)
}

func (s *JournalSuite) TestEmptyJournalBeginningIsNoPosition() {
	pos, err := s.journal.GetBeginningOfJournal(context.Background())
	s.Require().NoError(err)
	s.Equal(journal.NoPosition, pos)
}

func TestJournalSuite(t *testing.T) {
	suite.Run(t, new(JournalSuite))
}
