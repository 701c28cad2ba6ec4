// Package security issues and validates the opaque security tokens a sender
// attaches to an outgoing message so a receiving endpoint can recover the
// principal that originated it. It does not perform authorization; callers
// decide what a given principal is allowed to do with the claims returned.
package security

import (
	"context"
	"time"
)

// Principal identifies the party a message was sent on behalf of.
type Principal struct {
	Subject string
	Issuer  string
	Roles   []string
	Claims  map[string]string
}

// TokenService issues opaque tokens for a Principal and validates tokens
// received on incoming messages. Implementations are free to use whatever
// encoding they like; callers only ever see the opaque string.
type TokenService interface {
	// Issue mints an opaque token for principal that expires at expiresAt.
	Issue(ctx context.Context, principal Principal, expiresAt time.Time) (string, error)

	// Validate parses and verifies token, returning the Principal it was
	// issued for. It returns an error wrapping errors.CodeUnauthenticated
	// if the token is malformed, expired, or fails signature verification.
	Validate(ctx context.Context, token string) (Principal, error)
}
