package link

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"argus/pkg/platform/sentinel"
)

type IssuerSuite struct {
	suite.Suite
	now    time.Time
	issuer *Issuer
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.issuer = NewIssuer(WithTTL(time.Minute), WithClock(func() time.Time { return s.now }))
}

func (s *IssuerSuite) TestIssue() {
	s.Run("token shape", func() {
		token, err := s.issuer.Issue("acct-1")
		s.Require().NoError(err)
		s.Len(token, TokenLength)
		for _, r := range token {
			s.Contains(alphabet, string(r))
		}
	})

	s.Run("idempotent while live", func() {
		first, err := s.issuer.Issue("acct-2")
		s.Require().NoError(err)
		second, err := s.issuer.Issue("acct-2")
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("fresh token after expiry", func() {
		first, err := s.issuer.Issue("acct-3")
		s.Require().NoError(err)
		s.now = s.now.Add(2 * time.Minute)
		second, err := s.issuer.Issue("acct-3")
		s.Require().NoError(err)
		s.NotEqual(first, second)
	})

	s.Run("requires subject", func() {
		_, err := s.issuer.Issue("")
		s.Error(err)
	})
}

func (s *IssuerSuite) TestRedeem() {
	s.Run("consumes token", func() {
		token, err := s.issuer.Issue("acct-1")
		s.Require().NoError(err)

		subject, err := s.issuer.Redeem(" " + token + " ")
		s.Require().NoError(err)
		s.Equal("acct-1", subject)

		_, err = s.issuer.Redeem(token)
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("case insensitive", func() {
		token, err := s.issuer.Issue("acct-2")
		s.Require().NoError(err)
		_, err = s.issuer.Redeem(strings.ToLower(token))
		s.NoError(err)
	})

	s.Run("expired", func() {
		token, err := s.issuer.Issue("acct-3")
		s.Require().NoError(err)
		s.now = s.now.Add(time.Minute)
		_, err = s.issuer.Redeem(token)
		s.ErrorIs(err, sentinel.ErrExpired)
	})
}

func (s *IssuerSuite) TestSweep() {
	_, err := s.issuer.Issue("a")
	s.Require().NoError(err)
	s.now = s.now.Add(30 * time.Second)
	_, err = s.issuer.Issue("b")
	s.Require().NoError(err)

	s.now = s.now.Add(45 * time.Second)
	s.Equal(1, s.issuer.Sweep())
	s.Len(s.issuer.byToken, 1)
	s.Len(s.issuer.bySubject, 1)
}
