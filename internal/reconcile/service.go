// Package reconcile corrects cached membership status against the identity
// provider. It runs off the connect path: provider failures leave the cache as
// it is and the player is retried on the next pass.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"argus/internal/application"
	"argus/internal/membership"
	"argus/internal/provider"
	"argus/internal/reconcile/metrics"
	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
)

const DefaultProviderTimeout = 5 * time.Second

// Drift reasons recorded on corrective events.
const (
	ReasonRoleRemoved  = "role removed externally"
	ReasonLeftGuild    = "left guild"
	ReasonRoleRestored = "role restored"
)

type Outcome string

const (
	// OutcomeUnchanged: cache and provider agree.
	OutcomeUnchanged Outcome = "unchanged"
	// OutcomeCorrected: a StatusChanged event was appended.
	OutcomeCorrected Outcome = "corrected"
	// OutcomeSkipped: the provider could not answer; nothing was written.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeRepaired: a membership change implied by a stored application
	// decision was missing and has been appended.
	OutcomeRepaired Outcome = "repaired"
	// OutcomeNotApplicable: the status is not provider-driven (unknown,
	// PENDING, REJECTED, BANNED) and nothing is owed.
	OutcomeNotApplicable Outcome = "not_applicable"
)

type Service struct {
	roles   RoleSource
	members MembershipCommands
	cache   StatusCache
	timeout time.Duration
	now     func() time.Time
	flight  singleflight.Group
	tracer  trace.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithProviderTimeout bounds each provider lookup.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(roles RoleSource, members MembershipCommands, cache StatusCache, opts ...Option) (*Service, error) {
	if roles == nil {
		return nil, fmt.Errorf("role source is required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership repository is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("status cache is required")
	}
	s := &Service{
		roles:   roles,
		members: members,
		cache:   cache,
		timeout: DefaultProviderTimeout,
		now:     time.Now,
		tracer:  otel.Tracer("argus/reconcile"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Reconcile compares the player's cached status with the provider and appends
// a corrective StatusChanged when they disagree. A membership change owed by an
// application decision is issued first, without asking the provider.
// Concurrent calls for the same player share one provider round trip.
func (s *Service) Reconcile(ctx context.Context, player domain.PlayerID) (Outcome, error) {
	v, err, _ := s.flight.Do(player.String(), func() (any, error) {
		return s.reconcile(ctx, player)
	})
	outcome, _ := v.(Outcome)
	return outcome, err
}

func (s *Service) reconcile(ctx context.Context, player domain.PlayerID) (outcome Outcome, err error) {
	ctx, span := s.tracer.Start(ctx, "reconcile.Reconcile",
		trace.WithAttributes(attribute.String("player.id", player.String())))
	defer func() {
		span.SetAttributes(attribute.String("reconcile.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.metrics.IncrementOutcome(string(outcome))
	}()

	snap := s.cache.Current()
	if effect, owed := snap.OwedEffect(player); owed {
		return s.repair(ctx, player, effect)
	}
	cached, known := snap.Status(player)
	if !known || !providerDriven(cached) {
		return OutcomeNotApplicable, nil
	}

	state, err := s.lookup(ctx, player)
	if err != nil {
		s.logger.WarnContext(ctx, "reconcile skipped, provider unavailable",
			"player_id", player.String(),
			"error", err,
		)
		return OutcomeSkipped, err
	}

	target, reason := desiredStatus(cached, state)
	if target == cached {
		return OutcomeUnchanged, nil
	}

	appended := false
	_, _, err = s.members.Execute(ctx, membership.Stream(player), func(current membership.State) ([]membership.Event, error) {
		appended = false
		// The stream moved on since the snapshot was taken; the next pass
		// will compare against the new status.
		if current.Status != cached {
			return nil, nil
		}
		evt, err := membership.ChangeStatus(current, target, reason, "", s.now())
		if err != nil {
			return nil, err
		}
		appended = true
		return []membership.Event{evt}, nil
	})
	if err != nil {
		return OutcomeUnchanged, err
	}
	if !appended {
		return OutcomeUnchanged, nil
	}

	if _, err := s.cache.CatchUp(ctx); err != nil {
		// The event is durable; the cache's own loop will pick it up.
		s.logger.ErrorContext(ctx, "status cache catch-up after correction failed", "error", err)
	}
	s.logger.InfoContext(ctx, "membership corrected from provider",
		"player_id", player.String(),
		"from", string(cached),
		"to", string(target),
		"reason", reason,
	)
	return OutcomeCorrected, nil
}

// repair appends the membership change an application decision implied but
// that never landed. The membership must still be where the decision left it.
func (s *Service) repair(ctx context.Context, player domain.PlayerID, effect application.Effect) (Outcome, error) {
	appended := false
	_, _, err := s.members.Execute(ctx, membership.Stream(player), func(current membership.State) ([]membership.Event, error) {
		appended = false
		if current.Status != effect.From {
			return nil, nil
		}
		evt, err := membership.ChangeStatus(current, effect.Status, effect.Reason, effect.Actor, s.now())
		if err != nil {
			return nil, err
		}
		appended = true
		return []membership.Event{evt}, nil
	})
	if err != nil {
		return OutcomeUnchanged, err
	}
	if !appended {
		return OutcomeUnchanged, nil
	}
	if _, err := s.cache.CatchUp(ctx); err != nil {
		s.logger.ErrorContext(ctx, "status cache catch-up after repair failed", "error", err)
	}
	s.logger.InfoContext(ctx, "membership repaired from application decision",
		"player_id", player.String(),
		"from", string(effect.From),
		"to", string(effect.Status),
	)
	return OutcomeRepaired, nil
}

func (s *Service) lookup(ctx context.Context, player domain.PlayerID) (provider.RoleState, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	state, err := s.roles.CurrentRoleState(ctx, player)
	s.metrics.ObserveProviderLatency(time.Since(start))
	if err == nil {
		return state, nil
	}
	if errors.Is(err, provider.ErrProviderTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return state, dErrors.Wrap(asProviderError(err, provider.ErrorTimeout), dErrors.CodeProviderTimeout, "provider lookup timed out")
	}
	return state, dErrors.Wrap(asProviderError(err, provider.ErrorProviderOutage), dErrors.CodeProviderUnavailable, "provider lookup failed")
}

// asProviderError keeps provider errors as they are and wraps anything else so
// callers can match the provider sentinels.
func asProviderError(err error, category provider.ErrorCategory) error {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return provider.NewProviderError(category, "unknown", "role lookup", err)
}

func providerDriven(status membership.Status) bool {
	return status == membership.StatusWhitelisted || status == membership.StatusUnwhitelisted
}

func desiredStatus(cached membership.Status, state provider.RoleState) (membership.Status, string) {
	switch cached {
	case membership.StatusWhitelisted:
		if !state.InGuild {
			return membership.StatusUnwhitelisted, ReasonLeftGuild
		}
		if !state.HasAccessRole {
			return membership.StatusUnwhitelisted, ReasonRoleRemoved
		}
	case membership.StatusUnwhitelisted:
		if state.Entitled() {
			return membership.StatusWhitelisted, ReasonRoleRestored
		}
	}
	return cached, ""
}
