package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

var errGuildLookup = errors.New("discord: 503 Service Unavailable")

// BreakerSuite drives the breaker the way the role provider client does:
// ask Allow, make the lookup, record its outcome.
type BreakerSuite struct {
	suite.Suite
	now     time.Time
	dialed  int
	breaker *Breaker
}

func TestBreakerSuite(t *testing.T) {
	suite.Run(t, new(BreakerSuite))
}

func (s *BreakerSuite) SetupTest() {
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	s.dialed = 0
	s.breaker = New("discord",
		WithFailureThreshold(3),
		WithSuccessThreshold(2),
		WithCooldown(30*time.Second),
		withClock(func() time.Time { return s.now }),
	)
}

// lookup runs one guarded provider call that ends in result. It reports
// whether the call was let through.
func (s *BreakerSuite) lookup(result error) bool {
	if !s.breaker.Allow() {
		return false
	}
	s.dialed++
	if result != nil {
		s.breaker.RecordFailure()
	} else {
		s.breaker.RecordSuccess()
	}
	return true
}

func (s *BreakerSuite) wait(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *BreakerSuite) TestDefaults() {
	b := New("discord")
	s.Equal("discord", b.Name())
	s.Equal(StateClosed, b.State())
	s.Equal("closed", b.State().String())
	for range 4 {
		b.RecordFailure()
	}
	s.False(b.IsOpen(), "five failures open a default breaker")
	_, change := b.RecordFailure()
	s.True(change.Opened)
	s.Equal("open", b.State().String())
}

func (s *BreakerSuite) TestOutageStopsDialing() {
	for range 3 {
		s.True(s.lookup(errGuildLookup))
	}
	s.True(s.breaker.IsOpen())

	s.Run("lookups during the cooldown never reach the provider", func() {
		for range 10 {
			s.False(s.lookup(nil))
		}
		s.Equal(3, s.dialed)
	})

	s.Run("further failures do not reopen", func() {
		fallback, change := s.breaker.RecordFailure()
		s.True(fallback)
		s.False(change.Opened)
	})
}

func (s *BreakerSuite) TestIntermittentErrorsKeepItClosed() {
	for range 5 {
		s.lookup(errGuildLookup)
		s.lookup(errGuildLookup)
		s.lookup(nil)
	}
	s.False(s.breaker.IsOpen())
	s.Equal(15, s.dialed)
}

func (s *BreakerSuite) TestRecoveryAdmitsOneCallPerCooldown() {
	for range 3 {
		s.lookup(errGuildLookup)
	}

	s.wait(31 * time.Second)
	s.True(s.lookup(nil), "first call after cooldown")
	s.False(s.lookup(nil), "second call must wait for the next window")
	s.True(s.breaker.IsOpen(), "one success is not enough")

	s.wait(31 * time.Second)
	s.Require().True(s.breaker.Allow())
	usePrimary, change := s.breaker.RecordSuccess()
	s.True(usePrimary)
	s.True(change.Closed)
	s.True(s.lookup(nil))
}

func (s *BreakerSuite) TestFailedTrialCallRestartsRecovery() {
	for range 3 {
		s.lookup(errGuildLookup)
	}
	s.wait(31 * time.Second)
	s.True(s.lookup(nil))
	s.wait(31 * time.Second)
	s.True(s.lookup(errGuildLookup))
	s.True(s.breaker.IsOpen())

	s.wait(31 * time.Second)
	s.True(s.lookup(nil))
	s.True(s.breaker.IsOpen(), "the earlier success no longer counts")
	s.wait(31 * time.Second)
	s.True(s.lookup(nil))
	s.False(s.breaker.IsOpen())
}

func (s *BreakerSuite) TestReset() {
	for range 3 {
		s.lookup(errGuildLookup)
	}
	s.breaker.Reset()
	s.Equal(StateClosed, s.breaker.State())
	s.True(s.lookup(nil))
}
