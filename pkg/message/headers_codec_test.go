package message

import "testing"

func TestHeadersRoundTrip(t *testing.T) {
	h := NewHeaders()
	h.Set("MessageId", "11111111-1111-1111-1111-111111111111")
	h.Set("MessageName", "OrderPlaced")
	h.Set("Destination", "http://peer.example/platibus")
	h.Set("EmptyValue", "")
	h.Set("MixedCase", "value-with-Mixed-Case")
	h.Set("MultiLine", "first line\nsecond line\nthird line")

	blob := EncodeHeaders(h)
	decoded, err := DecodeHeaders(blob)
	if err != nil {
		t.Fatalf("DecodeHeaders: %v", err)
	}
	if !h.Equal(decoded) {
		t.Fatalf("round trip mismatch:\noriginal: %+v\ndecoded:  %+v", h, decoded)
	}
}

func TestDecodeHeadersIgnoresCommentLines(t *testing.T) {
	blob := []byte("# reserved metadata\nMessageId: abc\n\n")
	h, err := DecodeHeaders(blob)
	if err != nil {
		t.Fatalf("DecodeHeaders: %v", err)
	}
	v, ok := h.Get("MessageId")
	if !ok || v != "abc" {
		t.Fatalf("Get(MessageId) = %q, %v; want abc, true", v, ok)
	}
}

func TestDecodeHeadersAcceptsTabOrSpaceContinuation(t *testing.T) {
	blob := []byte("MultiLine: first\n\tsecond\n    third\n\n")
	h, err := DecodeHeaders(blob)
	if err != nil {
		t.Fatalf("DecodeHeaders: %v", err)
	}
	v, _ := h.Get("MultiLine")
	if v != "first\nsecond\nthird" {
		t.Fatalf("value = %q; want %q", v, "first\nsecond\nthird")
	}
}

func TestDecodeHeadersRejectsMissingColon(t *testing.T) {
	_, err := DecodeHeaders([]byte("NotAHeaderLine\n\n"))
	if err == nil {
		t.Fatalf("expected error for line with no colon")
	}
}

func TestDecodeHeadersRejectsLeadingColon(t *testing.T) {
	_, err := DecodeHeaders([]byte(": value\n\n"))
	if err == nil {
		t.Fatalf("expected error for line with colon at position zero")
	}
}

func TestEncodeHeadersEmitsFourSpaceContinuation(t *testing.T) {
	h := NewHeaders()
	h.Set("X", "a\nb")
	blob := string(EncodeHeaders(h))
	want := "X: a\n    b\n\n"
	if blob != want {
		t.Fatalf("blob = %q; want %q", blob, want)
	}
}
