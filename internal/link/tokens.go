// Package link issues the one-time tokens legacy players use to tie their game
// account to a provider account.
package link

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"argus/pkg/platform/sentinel"
)

const (
	TokenLength = 6
	// No 0/O or 1/I so tokens survive being read off a game screen.
	alphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	DefaultTTL = 15 * time.Minute
)

type entry struct {
	token   string
	subject string
	expires time.Time
}

// Issuer holds tokens in memory. Tokens do not survive a restart; the player
// simply reconnects for a new one.
type Issuer struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	bySubject map[string]entry
	byToken   map[string]entry
}

type Option func(*Issuer)

func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{
		ttl:       DefaultTTL,
		now:       time.Now,
		bySubject: make(map[string]entry),
		byToken:   make(map[string]entry),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue returns subject's live token, minting one if none is live.
func (i *Issuer) Issue(subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("link subject is required")
	}
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()

	if e, ok := i.bySubject[subject]; ok {
		if now.Before(e.expires) {
			return e.token, nil
		}
		i.dropLocked(e)
	}

	for range 8 {
		token, err := randomToken()
		if err != nil {
			return "", err
		}
		if _, taken := i.byToken[token]; taken {
			continue
		}
		e := entry{token: token, subject: subject, expires: now.Add(i.ttl)}
		i.bySubject[subject] = e
		i.byToken[token] = e
		return token, nil
	}
	return "", fmt.Errorf("could not mint a unique link token")
}

// Redeem consumes token and returns the subject it was issued to.
func (i *Issuer) Redeem(token string) (string, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	now := i.now()

	i.mu.Lock()
	defer i.mu.Unlock()

	e, ok := i.byToken[token]
	if !ok {
		return "", fmt.Errorf("link token: %w", sentinel.ErrNotFound)
	}
	i.dropLocked(e)
	if !now.Before(e.expires) {
		return "", fmt.Errorf("link token: %w", sentinel.ErrExpired)
	}
	return e.subject, nil
}

// Sweep drops expired tokens and returns how many it removed.
func (i *Issuer) Sweep() int {
	now := i.now()
	i.mu.Lock()
	defer i.mu.Unlock()
	removed := 0
	for _, e := range i.byToken {
		if !now.Before(e.expires) {
			i.dropLocked(e)
			removed++
		}
	}
	return removed
}

func (i *Issuer) dropLocked(e entry) {
	delete(i.byToken, e.token)
	if cur, ok := i.bySubject[e.subject]; ok && cur.token == e.token {
		delete(i.bySubject, e.subject)
	}
}

func randomToken() (string, error) {
	buf := make([]byte, TokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}
