package tests

import (
	"testing"

	"github.com/nickmkk/Platibus/pkg/diagnostics"
)

type recordingSink struct {
	events []diagnostics.Event
}

func (r *recordingSink) Emit(e diagnostics.Event) {
	r.events = append(r.events, e)
}

func TestMultiSinkFansOutInOrder(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	multi := diagnostics.MultiSink{a, b}

	multi.Emit(diagnostics.Event{Type: diagnostics.DeadLetter, MessageId: "m1"})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both sinks to receive one event, got %d and %d", len(a.events), len(b.events))
	}
	if a.events[0].MessageId != "m1" {
		t.Fatalf("MessageId = %q; want m1", a.events[0].MessageId)
	}
}

func TestNopSinkDiscards(t *testing.T) {
	var s diagnostics.Sink = diagnostics.NopSink{}
	s.Emit(diagnostics.Event{Type: diagnostics.MessageEnqueued})
}
