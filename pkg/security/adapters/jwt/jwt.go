// Package jwt implements security.TokenService using signed JWTs.
package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nickmkk/Platibus/pkg/errors"
	"github.com/nickmkk/Platibus/pkg/security"
)

// Config configures the JWT token service.
type Config struct {
	Secret string `env:"JWT_SECRET"`
	Issuer string `env:"JWT_ISSUER" env-default:"platibus"`
}

type claims struct {
	Roles  []string          `json:"roles,omitempty"`
	Claims map[string]string `json:"claims,omitempty"`
	jwt.RegisteredClaims
}

// Service is a security.TokenService backed by HMAC-signed JWTs.
type Service struct {
	cfg Config
}

// New returns a Service configured with cfg. cfg.Secret must be non-empty.
func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

var _ security.TokenService = (*Service)(nil)

func (s *Service) Issue(ctx context.Context, principal security.Principal, expiresAt time.Time) (string, error) {
	now := time.Now()
	issuer := principal.Issuer
	if issuer == "" {
		issuer = s.cfg.Issuer
	}
	c := claims{
		Roles:  principal.Roles,
		Claims: principal.Claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.Subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}

func (s *Service) Validate(ctx context.Context, token string) (security.Principal, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return security.Principal{}, errors.New(errors.CodeUnauthenticated, "invalid security token", err)
	}
	if !parsed.Valid {
		return security.Principal{}, errors.New(errors.CodeUnauthenticated, "invalid security token", nil)
	}
	return security.Principal{
		Subject: c.Subject,
		Issuer:  c.Issuer,
		Roles:   c.Roles,
		Claims:  c.Claims,
	}, nil
}
