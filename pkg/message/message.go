// Package message defines the canonical in-memory representation of a bus
// message, its header set, and the RFC-822-style wire encoding used to store
// and transmit that header set.
package message

import "time"

// Importance tags the delivery policy a message should receive.
type Importance int

const (
	// Low and Normal messages are delivered best-effort inline.
	Low Importance = iota
	Normal
	// Critical messages are enqueued for durable, retried delivery.
	Critical
)

func (i Importance) String() string {
	switch i {
	case Low:
		return "Low"
	case Critical:
		return "Critical"
	default:
		return "Normal"
	}
}

// ParseImportance parses the canonical header value for Importance,
// defaulting to Normal for an empty or unrecognized value.
func ParseImportance(s string) Importance {
	switch s {
	case "Low":
		return Low
	case "Critical":
		return Critical
	default:
		return Normal
	}
}

// Recognized header field names. Headers are case-insensitive on lookup;
// these constants give the canonical casing used when encoding.
const (
	HeaderMessageId     = "MessageId"
	HeaderMessageName   = "MessageName"
	HeaderOrigination   = "Origination"
	HeaderDestination   = "Destination"
	HeaderReplyTo       = "ReplyTo"
	HeaderRelatedTo     = "RelatedTo"
	HeaderSent          = "Sent"
	HeaderReceived      = "Received"
	HeaderPublished     = "Published"
	HeaderExpires       = "Expires"
	HeaderTopic         = "Topic"
	HeaderContentType   = "ContentType"
	HeaderImportance    = "Importance"
	HeaderSecurityToken = "SecurityToken"
)

// Message is an immutable envelope of headers plus an opaque content body.
// Construct one with New; there is no way to mutate a Message in place,
// matching the spec's "immutable after construction" requirement — callers
// that need a variant (e.g. a fan-out clone with a new Destination) build a
// new Headers set and call New again.
type Message struct {
	headers Headers
	content []byte
}

// New returns a Message with a defensive copy of headers and content.
func New(headers Headers, content []byte) Message {
	buf := make([]byte, len(content))
	copy(buf, content)
	return Message{headers: headers.Clone(), content: buf}
}

// Headers returns a copy of the message's header set. Mutating the
// returned Headers does not affect m.
func (m Message) Headers() Headers {
	return m.headers.Clone()
}

// Content returns the message's opaque body. Callers must not mutate the
// returned slice.
func (m Message) Content() []byte {
	return m.content
}

// MessageId returns the required MessageId header, or "" if unset.
func (m Message) MessageId() string {
	v, _ := m.headers.Get(HeaderMessageId)
	return v
}

// Destination returns the Destination header, or "" if unset.
func (m Message) Destination() string {
	v, _ := m.headers.Get(HeaderDestination)
	return v
}

// Topic returns the Topic header, or "" if unset.
func (m Message) Topic() string {
	v, _ := m.headers.Get(HeaderTopic)
	return v
}

// ContentType returns the ContentType header, or "" if unset.
func (m Message) ContentType() string {
	v, _ := m.headers.Get(HeaderContentType)
	return v
}

// Importance returns the parsed Importance header, defaulting to Normal.
func (m Message) Importance() Importance {
	v, _ := m.headers.Get(HeaderImportance)
	return ParseImportance(v)
}

// Expires returns the parsed Expires header and whether it was set.
func (m Message) Expires() (time.Time, bool) {
	v, ok := m.headers.Get(HeaderExpires)
	if !ok || v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsExpired reports whether the message has an Expires header in the past
// relative to now.
func (m Message) IsExpired(now time.Time) bool {
	exp, ok := m.Expires()
	return ok && exp.Before(now)
}

// WithHeaders returns a new Message with headers replaced and the same
// content. It exists for the common case of deriving a variant of an
// existing message — a fan-out clone, a re-issued security token — without
// constructing the content byte-for-byte again.
func WithHeaders(m Message, headers Headers) Message {
	return New(headers, m.content)
}
