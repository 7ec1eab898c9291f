// Package gate makes the connect-time access decision.
//
// Decide reads only materialized local state: the status snapshot (through an
// atomic pointer) and the in-memory link token issuer. It performs no I/O, so
// it is safe on the game server's connection-accept path.
package gate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"argus/internal/gate/metrics"
	"argus/internal/legacy"
	"argus/internal/membership"
	"argus/internal/snapshot"
	"argus/pkg/domain"
)

type Kind string

const (
	KindAllow         Kind = "allow"
	KindAllowWithKick Kind = "allow_with_kick"
	KindDeny          Kind = "deny"
)

type Reason string

const (
	ReasonOperator       Reason = "operator"
	ReasonWhitelisted    Reason = "whitelisted"
	ReasonLegacyUnlinked Reason = "legacy_unlinked"
	ReasonBanned         Reason = "banned"
	ReasonNotWhitelisted Reason = "not_whitelisted"
)

// TokenPlaceholder in Messages.LegacyLink is replaced with the link token.
const TokenPlaceholder = "{token}"

// Decision is the outcome of one connect attempt. Message is shown to the
// player for AllowWithKick and Deny.
type Decision struct {
	Kind    Kind
	Reason  Reason
	Message string
	Token   string
}

func (d Decision) Allowed() bool { return d.Kind != KindDeny }

// Messages are the player-facing texts.
type Messages struct {
	Apply      string
	Banned     string
	LegacyLink string
}

// StatusCache exposes the latest immutable snapshot.
type StatusCache interface {
	Current() *snapshot.State
}

// TokenIssuer mints one-time link tokens. Issue must not block.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

type Gate struct {
	cache    StatusCache
	tokens   TokenIssuer
	legacy   legacy.Importer
	messages Messages
	onDeny   func(domain.PlayerID) bool
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

// WithDenyHook registers a non-blocking callback run after a Deny for a known
// player. It reports false when the nudge was dropped.
func WithDenyHook(fn func(domain.PlayerID) bool) Option {
	return func(g *Gate) {
		g.onDeny = fn
	}
}

// WithLegacy lets DecideAccount consult the imported legacy whitelist.
func WithLegacy(importer legacy.Importer) Option {
	return func(g *Gate) {
		g.legacy = importer
	}
}

func New(cache StatusCache, tokens TokenIssuer, messages Messages, opts ...Option) (*Gate, error) {
	if cache == nil {
		return nil, fmt.Errorf("status cache is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	g := &Gate{
		cache:    cache,
		tokens:   tokens,
		messages: messages,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Decide evaluates, first match wins:
//  1. operators are allowed
//  2. a cached WHITELISTED membership is allowed
//  3. a legacy-whitelisted player is let in once to receive a link token
//  4. everyone else is denied with application instructions
func (g *Gate) Decide(player domain.PlayerID, isOp, isLegacyWhitelisted bool) Decision {
	return g.decide(player, player.String(), isOp, isLegacyWhitelisted)
}

// DecideAccount is Decide for a connecting game account. The account is mapped
// to its player through the snapshot, the legacy flag comes from the imported
// whitelist, and link tokens are issued to the account.
func (g *Gate) DecideAccount(account domain.GameAccountID, isOp bool) Decision {
	player, _ := g.ResolveAccount(account)
	isLegacy := g.legacy != nil && g.legacy.IsLegacyWhitelisted(account)
	return g.decide(player, account.String(), isOp, isLegacy)
}

// ResolveAccount maps a game account to the player that holds it.
func (g *Gate) ResolveAccount(account domain.GameAccountID) (domain.PlayerID, bool) {
	return g.cache.Current().PlayerForAccount(account)
}

func (g *Gate) decide(player domain.PlayerID, subject string, isOp, isLegacy bool) Decision {
	start := time.Now()
	d := g.evaluate(player, subject, isOp, isLegacy)
	g.metrics.ObserveDecideLatency(time.Since(start))
	g.metrics.IncrementDecision(string(d.Kind), string(d.Reason))

	if d.Kind == KindDeny && !player.IsNil() && g.onDeny != nil {
		if !g.onDeny(player) {
			g.metrics.IncrementNudgesDropped()
		}
	}
	return d
}

func (g *Gate) evaluate(player domain.PlayerID, subject string, isOp, isLegacy bool) Decision {
	if isOp {
		return Decision{Kind: KindAllow, Reason: ReasonOperator}
	}

	status, known := g.cache.Current().Status(player)
	if known && status == membership.StatusWhitelisted {
		return Decision{Kind: KindAllow, Reason: ReasonWhitelisted}
	}

	if isLegacy && subject != "" {
		token, err := g.tokens.Issue(subject)
		if err == nil {
			return Decision{
				Kind:    KindAllowWithKick,
				Reason:  ReasonLegacyUnlinked,
				Message: strings.ReplaceAll(g.messages.LegacyLink, TokenPlaceholder, token),
				Token:   token,
			}
		}
		// Without a token the kick message is useless; deny with the normal text.
		g.logger.Error("link token issue failed", "error", err)
	}

	if known && status == membership.StatusBanned {
		return Decision{Kind: KindDeny, Reason: ReasonBanned, Message: g.messages.Banned}
	}
	return Decision{Kind: KindDeny, Reason: ReasonNotWhitelisted, Message: g.messages.Apply}
}
