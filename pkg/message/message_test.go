package message

import (
	"testing"
	"time"
)

func TestMessageIsImmutable(t *testing.T) {
	h := NewHeaders()
	h.Set(HeaderMessageId, "m1")
	content := []byte("hello")

	m := New(h, content)

	h.Set(HeaderMessageId, "mutated")
	content[0] = 'H'

	if m.MessageId() != "m1" {
		t.Fatalf("MessageId() = %q; want m1 (message mutated via header aliasing)", m.MessageId())
	}
	if string(m.Content()) != "hello" {
		t.Fatalf("Content() = %q; want hello (message mutated via content aliasing)", m.Content())
	}
}

func TestMessageImportanceDefaultsToNormal(t *testing.T) {
	m := New(NewHeaders(), nil)
	if m.Importance() != Normal {
		t.Fatalf("Importance() = %v; want Normal", m.Importance())
	}
}

func TestMessageExpiresParsing(t *testing.T) {
	h := NewHeaders()
	past := time.Now().Add(-time.Hour).UTC()
	h.Set(HeaderExpires, past.Format(time.RFC3339Nano))
	m := New(h, nil)

	exp, ok := m.Expires()
	if !ok {
		t.Fatalf("expected Expires to be set")
	}
	if !exp.Equal(past) {
		t.Fatalf("Expires() = %v; want %v", exp, past)
	}
	if !m.IsExpired(time.Now()) {
		t.Fatalf("expected message with past Expires to be expired")
	}
}

func TestMessageWithHeadersPreservesContent(t *testing.T) {
	h := NewHeaders()
	h.Set(HeaderDestination, "http://a.example")
	m := New(h, []byte("payload"))

	clone := m.Headers()
	clone.Set(HeaderDestination, "http://b.example")
	m2 := WithHeaders(m, clone)

	if m2.Destination() != "http://b.example" {
		t.Fatalf("Destination() = %q; want http://b.example", m2.Destination())
	}
	if string(m2.Content()) != "payload" {
		t.Fatalf("Content() = %q; want payload", m2.Content())
	}
}
