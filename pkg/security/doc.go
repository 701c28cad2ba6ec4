/*
Package security issues and validates the opaque security tokens attached to
messages, and provides the adapters that implement TokenService.

Subpackages:

  - adapters/jwt: HMAC-signed JWT implementation of TokenService

Usage:

	import "github.com/nickmkk/Platibus/pkg/security/adapters/jwt"

	svc := jwt.New(jwt.Config{Secret: secret, Issuer: "platibus"})
	token, err := svc.Issue(ctx, security.Principal{Subject: "sender-1"}, time.Now().Add(time.Hour))
*/
package security
