package message

import "testing"

func TestHeadersCaseInsensitiveLookup(t *testing.T) {
	h := NewHeaders()
	h.Set("MessageId", "abc-123")

	if v, ok := h.Get("messageid"); !ok || v != "abc-123" {
		t.Fatalf("Get(messageid) = %q, %v; want abc-123, true", v, ok)
	}
	if v, ok := h.Get("MESSAGEID"); !ok || v != "abc-123" {
		t.Fatalf("Get(MESSAGEID) = %q, %v; want abc-123, true", v, ok)
	}
}

func TestHeadersSetPreservesFirstCasing(t *testing.T) {
	h := NewHeaders()
	h.Set("ContentType", "text/plain")
	h.Set("contenttype", "application/json")

	names := h.Names()
	if len(names) != 1 || names[0] != "ContentType" {
		t.Fatalf("names = %v; want [ContentType]", names)
	}
	v, _ := h.Get("ContentType")
	if v != "application/json" {
		t.Fatalf("value = %q; want application/json", v)
	}
}

func TestHeadersDeletePreservesOrder(t *testing.T) {
	h := NewHeaders()
	h.Set("A", "1")
	h.Set("B", "2")
	h.Set("C", "3")
	h.Delete("B")

	if got := h.Names(); len(got) != 2 || got[0] != "A" || got[1] != "C" {
		t.Fatalf("names after delete = %v; want [A C]", got)
	}
	h.Set("D", "4")
	if got := h.Names(); len(got) != 3 || got[2] != "D" {
		t.Fatalf("names after re-add = %v; want [A C D]", got)
	}
}

func TestHeadersCloneIsIndependent(t *testing.T) {
	h := NewHeaders()
	h.Set("Topic", "orders")
	clone := h.Clone()
	clone.Set("Topic", "shipments")

	v, _ := h.Get("Topic")
	if v != "orders" {
		t.Fatalf("original mutated by clone: %q", v)
	}
}

func TestHeadersEqual(t *testing.T) {
	a := NewHeaders()
	a.Set("X", "1")
	a.Set("Y", "2")

	b := NewHeaders()
	b.Set("Y", "2")
	b.Set("X", "1")

	if !a.Equal(b) {
		t.Fatalf("expected headers with same entries in different order to be equal")
	}

	b.Set("Y", "3")
	if a.Equal(b) {
		t.Fatalf("expected headers with differing values to be unequal")
	}
}
