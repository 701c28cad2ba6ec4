package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/nickmkk/Platibus/pkg/security"
	"github.com/nickmkk/Platibus/pkg/security/adapters/jwt"
)

type JWTSuite struct {
	suite.Suite
	svc *jwt.Service
}

func (s *JWTSuite) SetupTest() {
	s.svc = jwt.New(jwt.Config{Secret: "test-secret", Issuer: "platibus-tests"})
}

func (s *JWTSuite) TestIssueAndValidateRoundTrip() {
	principal := security.Principal{
		Subject: "sender-1",
		Roles:   []string{"publisher"},
		Claims:  map[string]string{"tenant": "acme"},
	}
	token, err := s.svc.Issue(context.Background(), principal, time.Now().Add(time.Hour))
	s.Require().NoError(err)
	s.NotEmpty(token)

	got, err := s.svc.Validate(context.Background(), token)
	s.Require().NoError(err)
	s.Equal(principal.Subject, got.Subject)
	s.Equal(principal.Roles, got.Roles)
	s.Equal("acme", got.Claims["tenant"])
	s.Equal("platibus-tests", got.Issuer)
}

func (s *JWTSuite) TestValidateRejectsExpiredToken() {
	token, err := s.svc.Issue(context.Background(), security.Principal{Subject: "sender-1"}, time.Now().Add(-time.Minute))
	s.Require().NoError(err)

	_, err = s.svc.Validate(context.Background(), token)
	s.Error(err)
}

func (s *JWTSuite) TestValidateRejectsGarbage() {
	_, err := s.svc.Validate(context.Background(), "not-a-token")
	s.Error(err)
}

func TestJWTSuite(t *testing.T) {
	suite.Run(t, new(JWTSuite))
}
