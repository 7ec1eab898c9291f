// Package whitelist dispatches moderator and player commands to the
// application and membership aggregates.
//
// An application decision and its membership effect are two appends to two
// streams. A crash between them leaves the membership behind; re-running the
// same decision issues the missing effect, and reconciliation repairs it from
// the snapshot if nobody does.
//
// Commands that open an application (Apply, Link, Reopen) are serialized per
// player and check the caught-up snapshot under that lock, so a player never
// holds two open applications.
package whitelist

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

	"argus/internal/application"
	"argus/internal/eventstore"
	"argus/internal/membership"
	"argus/internal/reconcile"
	"argus/internal/snapshot"
	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
	"argus/pkg/platform/sentinel"
)

const (
	ReasonSubmitted  = "application submitted"
	ReasonLegacyLink = "legacy whitelist link"
)

// MembershipCommands and ApplicationCommands run decide functions against one
// stream with optimistic-concurrency retry.
type MembershipCommands interface {
	Execute(ctx context.Context, stream eventstore.StreamID, decide func(membership.State) ([]membership.Event, error)) (membership.State, int64, error)
}

type ApplicationCommands interface {
	Execute(ctx context.Context, stream eventstore.StreamID, decide func(application.State) ([]application.Event, error)) (application.State, int64, error)
}

type StatusCache interface {
	Current() *snapshot.State
	CatchUp(ctx context.Context) (*snapshot.State, error)
}

// RoleQueue schedules provider role changes off the request path.
type RoleQueue interface {
	EnqueueRoleOp(player domain.PlayerID, op reconcile.RoleOp)
}

// TokenRedeemer consumes a link token and returns the game account it was
// issued to.
type TokenRedeemer interface {
	Redeem(token string) (string, error)
}

// LegacyAccounts is the imported pre-existing whitelist.
type LegacyAccounts interface {
	Username(account domain.GameAccountID) (string, bool)
	Remove(account domain.GameAccountID)
}

type Service struct {
	apps    ApplicationCommands
	members MembershipCommands
	cache   StatusCache
	players *eventstore.StreamLocks
	roles   RoleQueue
	tokens  TokenRedeemer
	legacy  LegacyAccounts
	now     func() time.Time
	tracer  trace.Tracer
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRoleQueue enables provider role grants and revokes after decisions.
func WithRoleQueue(q RoleQueue) Option {
	return func(s *Service) {
		s.roles = q
	}
}

// WithLegacyLinking enables Link.
func WithLegacyLinking(tokens TokenRedeemer, accounts LegacyAccounts) Option {
	return func(s *Service) {
		s.tokens = tokens
		s.legacy = accounts
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(apps ApplicationCommands, members MembershipCommands, cache StatusCache, opts ...Option) (*Service, error) {
	if apps == nil {
		return nil, fmt.Errorf("application repository is required")
	}
	if members == nil {
		return nil, fmt.Errorf("membership repository is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("status cache is required")
	}
	s := &Service{
		apps:    apps,
		members: members,
		cache:   cache,
		players: eventstore.NewStreamLocks(),
		now:     time.Now,
		tracer:  otel.Tracer("argus/whitelist"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type ApplyRequest struct {
	Player       domain.PlayerID
	GameAccount  domain.GameAccountID
	GameUsername string
	Details      string
}

type DecisionRequest struct {
	Application domain.ApplicationID
	Actor       domain.PlayerID
	Reason      string
	Notes       string
}

type ModerationRequest struct {
	Player domain.PlayerID
	Actor  domain.PlayerID
	Reason string
}

// Apply opens an application for the player, moving their membership to
// PENDING first. A player who is whitelisted, banned, or already waiting on an
// application cannot apply.
func (s *Service) Apply(ctx context.Context, req ApplyRequest) (app application.State, err error) {
	ctx, span := s.start(ctx, "whitelist.Apply", attribute.String("player.id", req.Player.String()))
	defer func() { s.end(span, err) }()

	if req.Player.IsNil() {
		return app, dErrors.New(dErrors.CodeInvalidInput, "player id is required")
	}
	unlock := s.players.Lock(membership.Stream(req.Player))
	defer unlock()
	if err := s.checkCanOpen(ctx, req.Player, req.GameAccount); err != nil {
		return app, err
	}
	id := domain.NewApplicationID()
	// Validate before the membership moves.
	if _, err := application.Submit(application.State{}, id, req.Player, req.GameAccount, req.GameUsername, req.Details, s.now()); err != nil {
		return app, err
	}
	if err := s.ensurePending(ctx, req.Player, req.Player); err != nil {
		return app, err
	}

	app, err = s.submit(ctx, id, req)
	if err != nil {
		return app, err
	}
	s.refresh(ctx)
	s.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID.String(),
		"player_id", req.Player.String(),
	)
	return app, nil
}

func (s *Service) submit(ctx context.Context, id domain.ApplicationID, req ApplyRequest) (application.State, error) {
	app, _, err := s.apps.Execute(ctx, application.Stream(id), func(st application.State) ([]application.Event, error) {
		evt, err := application.Submit(st, id, req.Player, req.GameAccount, req.GameUsername, req.Details, s.now())
		if err != nil {
			return nil, err
		}
		return []application.Event{evt}, nil
	})
	return app, err
}

// ensurePending creates the membership or moves it back to PENDING. Callers
// hold the player's lock and have checked there is no open application.
func (s *Service) ensurePending(ctx context.Context, player, actor domain.PlayerID) error {
	_, _, err := s.members.Execute(ctx, membership.Stream(player), func(st membership.State) ([]membership.Event, error) {
		switch {
		case !st.Exists():
			evt, err := membership.Create(st, player, membership.StatusPending, ReasonSubmitted, actor, s.now())
			if err != nil {
				return nil, err
			}
			return []membership.Event{evt}, nil
		case st.Status == membership.StatusPending:
			// Left behind by a submit that never landed.
			return nil, nil
		case st.Status == membership.StatusWhitelisted:
			return nil, dErrors.New(dErrors.CodeConflict, "player is already whitelisted")
		case st.Status == membership.StatusBanned:
			return nil, dErrors.New(dErrors.CodeConflict, "player is banned")
		}
		evt, err := membership.ChangeStatus(st, membership.StatusPending, ReasonSubmitted, actor, s.now())
		if err != nil {
			return nil, err
		}
		return []membership.Event{evt}, nil
	})
	return err
}

// checkCanOpen refuses a new application while the player has one open or the
// account belongs to someone else. It reads the snapshot after catching up, so
// under the player's lock it sees every earlier command.
func (s *Service) checkCanOpen(ctx context.Context, player domain.PlayerID, account domain.GameAccountID) error {
	snap, err := s.fresh(ctx)
	if err != nil {
		return err
	}
	if _, open := snap.OpenApplication(player); open {
		return dErrors.New(dErrors.CodeConflict, "player already has an open application")
	}
	if holder, ok := snap.PlayerForAccount(account); ok && holder != player {
		return dErrors.New(dErrors.CodeConflict, "game account is linked to another player")
	}
	return nil
}

func (s *Service) fresh(ctx context.Context) (*snapshot.State, error) {
	snap, err := s.cache.CatchUp(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read current status")
	}
	return snap, nil
}

// Approve approves a pending application and whitelists the applicant.
func (s *Service) Approve(ctx context.Context, req DecisionRequest) (app application.State, err error) {
	ctx, span := s.start(ctx, "whitelist.Approve", attribute.String("application.id", req.Application.String()))
	defer func() { s.end(span, err) }()

	app, effect, err := s.decide(ctx, req.Application, application.StatusApproved, func(st application.State) (application.Event, application.Effect, error) {
		return application.Approve(st, req.Actor, req.Notes, s.now())
	})
	if err != nil {
		return app, err
	}
	s.enqueueRole(effect.Player, reconcile.RoleGrant)
	return app, nil
}

// Reject rejects a pending application. A reason is required.
func (s *Service) Reject(ctx context.Context, req DecisionRequest) (app application.State, err error) {
	ctx, span := s.start(ctx, "whitelist.Reject", attribute.String("application.id", req.Application.String()))
	defer func() { s.end(span, err) }()

	app, _, err = s.decide(ctx, req.Application, application.StatusRejected, func(st application.State) (application.Event, application.Effect, error) {
		return application.Reject(st, req.Actor, req.Reason, req.Notes, s.now())
	})
	return app, err
}

// Reopen puts a rejected application back in the queue.
func (s *Service) Reopen(ctx context.Context, req DecisionRequest) (app application.State, err error) {
	ctx, span := s.start(ctx, "whitelist.Reopen", attribute.String("application.id", req.Application.String()))
	defer func() { s.end(span, err) }()

	snap, err := s.fresh(ctx)
	if err != nil {
		return app, err
	}
	if current, ok := snap.Application(req.Application); ok {
		unlock := s.players.Lock(membership.Stream(current.Player))
		defer unlock()
		if snap, err = s.fresh(ctx); err != nil {
			return app, err
		}
		if open, has := snap.OpenApplication(current.Player); has && open != req.Application {
			return app, dErrors.New(dErrors.CodeConflict, "player already has an open application")
		}
	}

	app, _, err = s.decide(ctx, req.Application, application.StatusPending, func(st application.State) (application.Event, application.Effect, error) {
		return application.Reopen(st, req.Actor, req.Reason, s.now())
	})
	return app, err
}

// decide stores an application decision and issues its membership effect.
// When the application already carries the decision, fn's refusal stands
// unless the membership never received the effect; then the stored effect is
// issued again so a retried command converges.
func (s *Service) decide(ctx context.Context, id domain.ApplicationID, settled application.Status, fn func(application.State) (application.Event, application.Effect, error)) (application.State, application.Effect, error) {
	var effect application.Effect
	if id.IsNil() {
		return application.State{}, effect, dErrors.New(dErrors.CodeInvalidInput, "application id is required")
	}
	var refused error
	app, _, err := s.apps.Execute(ctx, application.Stream(id), func(st application.State) ([]application.Event, error) {
		refused = nil
		evt, eff, err := fn(st)
		if err == nil {
			effect = eff
			return []application.Event{evt}, nil
		}
		if st.Status != settled || !dErrors.HasCode(err, dErrors.CodeInvalidTransition) {
			return nil, err
		}
		prior, ok := application.Settled(st)
		if !ok {
			return nil, err
		}
		effect, refused = prior, err
		return nil, nil
	})
	if err != nil {
		return app, effect, err
	}
	if refused != nil {
		return app, effect, s.reissue(ctx, effect, refused)
	}
	return app, effect, s.apply(ctx, effect)
}

// reissue appends a stored decision's effect when the membership is still
// where the decision found it. Otherwise the decision was already complete and
// refused is returned.
func (s *Service) reissue(ctx context.Context, effect application.Effect, refused error) error {
	_, _, err := s.members.Execute(ctx, membership.Stream(effect.Player), func(st membership.State) ([]membership.Event, error) {
		if st.Status != effect.From {
			return nil, refused
		}
		evt, err := membership.ChangeStatus(st, effect.Status, effect.Reason, effect.Actor, s.now())
		if err != nil {
			return nil, err
		}
		return []membership.Event{evt}, nil
	})
	if err != nil {
		return err
	}
	s.refresh(ctx)
	s.logger.InfoContext(ctx, "membership effect re-issued",
		"player_id", effect.Player.String(),
		"status", string(effect.Status),
	)
	return nil
}

// apply issues an application's membership effect. A membership already in
// the target status is left alone so a retried command converges.
func (s *Service) apply(ctx context.Context, effect application.Effect) error {
	_, _, err := s.members.Execute(ctx, membership.Stream(effect.Player), func(st membership.State) ([]membership.Event, error) {
		if !st.Exists() {
			evt, err := membership.Create(st, effect.Player, effect.Status, effect.Reason, effect.Actor, s.now())
			if err != nil {
				return nil, err
			}
			return []membership.Event{evt}, nil
		}
		if st.Status == effect.Status {
			return nil, nil
		}
		evt, err := membership.ChangeStatus(st, effect.Status, effect.Reason, effect.Actor, s.now())
		if err != nil {
			return nil, err
		}
		return []membership.Event{evt}, nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "membership effect failed after application decision",
			"player_id", effect.Player.String(),
			"status", string(effect.Status),
			"error", err,
		)
		// The decision itself is stored.
		s.refresh(ctx)
		return err
	}
	s.refresh(ctx)
	return nil
}

// Ban bans a whitelisted player and revokes their provider role.
func (s *Service) Ban(ctx context.Context, req ModerationRequest) (membership.State, error) {
	return s.moderate(ctx, "whitelist.Ban", req, membership.StatusBanned, reconcile.RoleRevoke)
}

// Unban restores a banned player to WHITELISTED.
func (s *Service) Unban(ctx context.Context, req ModerationRequest) (membership.State, error) {
	return s.moderate(ctx, "whitelist.Unban", req, membership.StatusWhitelisted, reconcile.RoleGrant)
}

// Remove takes a whitelisted player off the whitelist without banning them.
func (s *Service) Remove(ctx context.Context, req ModerationRequest) (membership.State, error) {
	return s.moderate(ctx, "whitelist.Remove", req, membership.StatusUnwhitelisted, reconcile.RoleRevoke)
}

func (s *Service) moderate(ctx context.Context, name string, req ModerationRequest, next membership.Status, op reconcile.RoleOp) (st membership.State, err error) {
	ctx, span := s.start(ctx, name, attribute.String("player.id", req.Player.String()))
	defer func() { s.end(span, err) }()

	if req.Player.IsNil() {
		return st, dErrors.New(dErrors.CodeInvalidInput, "player id is required")
	}
	if req.Reason == "" {
		return st, dErrors.New(dErrors.CodeInvalidInput, "reason is required")
	}
	st, _, err = s.members.Execute(ctx, membership.Stream(req.Player), func(current membership.State) ([]membership.Event, error) {
		// UNWHITELISTED may also move to WHITELISTED, but not through Unban.
		if next == membership.StatusWhitelisted && current.Exists() && current.Status != membership.StatusBanned {
			return nil, dErrors.New(dErrors.CodeInvalidTransition, "player is not banned")
		}
		evt, err := membership.ChangeStatus(current, next, req.Reason, req.Actor, s.now())
		if err != nil {
			return nil, err
		}
		return []membership.Event{evt}, nil
	})
	if err != nil {
		return st, err
	}
	s.refresh(ctx)
	s.enqueueRole(req.Player, op)
	s.logger.InfoContext(ctx, "membership moderated",
		"player_id", req.Player.String(),
		"status", string(next),
		"actor", req.Actor.String(),
	)
	return st, nil
}

// Link ties the game account a link token was issued to onto player. The
// account's legacy grant becomes an approved application, so the player is
// whitelisted through the normal event history.
func (s *Service) Link(ctx context.Context, token string, player domain.PlayerID) (app application.State, err error) {
	ctx, span := s.start(ctx, "whitelist.Link", attribute.String("player.id", player.String()))
	defer func() { s.end(span, err) }()

	if s.tokens == nil || s.legacy == nil {
		return app, dErrors.New(dErrors.CodeInternal, "legacy linking is not configured")
	}
	if player.IsNil() {
		return app, dErrors.New(dErrors.CodeInvalidInput, "player id is required")
	}
	subject, err := s.tokens.Redeem(token)
	if err != nil {
		if errors.Is(err, sentinel.ErrExpired) {
			return app, dErrors.Wrap(err, dErrors.CodeInvalidInput, "link token has expired")
		}
		return app, dErrors.Wrap(err, dErrors.CodeNotFound, "unknown link token")
	}
	account, err := domain.ParseGameAccountID(subject)
	if err != nil {
		return app, dErrors.Wrap(err, dErrors.CodeInvalidInput, "link token was not issued to a game account")
	}
	username, ok := s.legacy.Username(account)
	if !ok {
		return app, dErrors.New(dErrors.CodeNotFound, "game account is not on the legacy whitelist")
	}
	unlock := s.players.Lock(membership.Stream(player))
	defer unlock()
	if err := s.checkCanOpen(ctx, player, account); err != nil {
		return app, err
	}

	if err := s.ensurePending(ctx, player, ""); err != nil {
		return app, err
	}
	app, err = s.submit(ctx, domain.NewApplicationID(), ApplyRequest{
		Player:       player,
		GameAccount:  account,
		GameUsername: username,
		Details:      ReasonLegacyLink,
	})
	if err != nil {
		return app, err
	}

	app, _, err = s.decide(ctx, app.ID, application.StatusApproved, func(st application.State) (application.Event, application.Effect, error) {
		return application.Approve(st, "", ReasonLegacyLink, s.now())
	})
	if err != nil {
		return app, err
	}
	s.legacy.Remove(account)
	s.enqueueRole(player, reconcile.RoleGrant)
	s.logger.InfoContext(ctx, "legacy account linked",
		"player_id", player.String(),
		"game_account", account.String(),
	)
	return app, nil
}

func (s *Service) enqueueRole(player domain.PlayerID, op reconcile.RoleOp) {
	if s.roles != nil {
		s.roles.EnqueueRoleOp(player, op)
	}
}

// refresh brings the status cache up to the appended events. A failure is
// logged only; the cache's own loop catches up later.
func (s *Service) refresh(ctx context.Context) {
	if _, err := s.cache.CatchUp(ctx); err != nil {
		s.logger.ErrorContext(ctx, "status cache catch-up failed", "error", err)
	}
}

func (s *Service) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *Service) end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(dErrors.CodeOf(err))))
	}
	span.End()
}
