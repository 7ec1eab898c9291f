package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"argus/internal/application"
	"argus/internal/membership"
	"argus/internal/snapshot"
	"argus/internal/whitelist"
	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
	"argus/pkg/platform/httputil"
	"argus/pkg/requestcontext"
)

// WhitelistService is the command side of the whitelist.
type WhitelistService interface {
	Apply(ctx context.Context, req whitelist.ApplyRequest) (application.State, error)
	Approve(ctx context.Context, req whitelist.DecisionRequest) (application.State, error)
	Reject(ctx context.Context, req whitelist.DecisionRequest) (application.State, error)
	Reopen(ctx context.Context, req whitelist.DecisionRequest) (application.State, error)
	Ban(ctx context.Context, req whitelist.ModerationRequest) (membership.State, error)
	Unban(ctx context.Context, req whitelist.ModerationRequest) (membership.State, error)
	Remove(ctx context.Context, req whitelist.ModerationRequest) (membership.State, error)
	Link(ctx context.Context, token string, player domain.PlayerID) (application.State, error)
}

// StatusReader serves reads from the in-memory snapshot.
type StatusReader interface {
	Current() *snapshot.State
}

type WhitelistHandler struct {
	service WhitelistService
	status  StatusReader
	logger  *slog.Logger
}

func NewWhitelistHandler(service WhitelistService, status StatusReader, logger *slog.Logger) *WhitelistHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhitelistHandler{service: service, status: status, logger: logger}
}

// RegisterModeration mounts moderator-only endpoints.
func (h *WhitelistHandler) RegisterModeration(r chi.Router) {
	r.Post("/applications/{id}/approve", h.decision("approve", h.service.Approve))
	r.Post("/applications/{id}/reject", h.decision("reject", h.service.Reject))
	r.Post("/applications/{id}/reopen", h.decision("reopen", h.service.Reopen))
	r.Post("/members/{player}/ban", h.moderation("ban", h.service.Ban))
	r.Post("/members/{player}/unban", h.moderation("unban", h.service.Unban))
	r.Post("/members/{player}/remove", h.moderation("remove", h.service.Remove))
}

// RegisterPlayer mounts endpoints the chat bot calls on a player's behalf.
// linkGuard wraps only the link endpoint.
func (h *WhitelistHandler) RegisterPlayer(r chi.Router, linkGuard ...func(http.Handler) http.Handler) {
	r.Post("/applications", h.HandleApply)
	r.Get("/applications/{id}", h.HandleGetApplication)
	r.Get("/members/{player}", h.HandleGetMember)
	r.With(linkGuard...).Post("/link", h.HandleLink)
}

// HandleApply handles POST /v1/applications.
func (h *WhitelistHandler) HandleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[applyRequest](w, r, h.logger)
	if !ok {
		return
	}
	player, err := domain.ParsePlayerID(req.Player)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := domain.ParseGameAccountID(req.GameAccount)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	app, err := h.service.Apply(ctx, whitelist.ApplyRequest{
		Player:       player,
		GameAccount:  account,
		GameUsername: req.GameUsername,
		Details:      req.Details,
	})
	if err != nil {
		h.fail(ctx, "apply failed", err, "player_id", player)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "application submitted",
		"request_id", requestcontext.RequestID(ctx),
		"application_id", app.ID,
		"player_id", player,
	)
	httputil.WriteJSON(w, http.StatusCreated, fromApplication(app))
}

// HandleGetApplication handles GET /v1/applications/{id}.
func (h *WhitelistHandler) HandleGetApplication(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, ok := h.status.Current().Application(id)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "application not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromApplication(app))
}

// HandleGetMember handles GET /v1/members/{player}.
func (h *WhitelistHandler) HandleGetMember(w http.ResponseWriter, r *http.Request) {
	player, err := domain.ParsePlayerID(chi.URLParam(r, "player"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	member, ok := h.status.Current().Member(player)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "membership not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromMember(member))
}

// HandleLink handles POST /v1/link.
func (h *WhitelistHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[linkRequest](w, r, h.logger)
	if !ok {
		return
	}
	player, err := domain.ParsePlayerID(req.Player)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	app, err := h.service.Link(ctx, req.Token, player)
	if err != nil {
		h.fail(ctx, "link failed", err, "player_id", player)
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(ctx, "legacy account linked",
		"request_id", requestcontext.RequestID(ctx),
		"player_id", player,
		"game_account", app.GameAccount,
	)
	httputil.WriteJSON(w, http.StatusOK, fromApplication(app))
}

type decideFunc func(context.Context, whitelist.DecisionRequest) (application.State, error)

func (h *WhitelistHandler) decision(name string, fn decideFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := domain.ParseApplicationID(chi.URLParam(r, "id"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req, ok := httputil.Decode[decisionRequest](w, r, h.logger)
		if !ok {
			return
		}
		actor := requestcontext.Actor(ctx)
		app, err := fn(ctx, whitelist.DecisionRequest{
			Application: id,
			Actor:       actor,
			Reason:      req.Reason,
			Notes:       req.Notes,
		})
		if err != nil {
			h.fail(ctx, name+" failed", err, "application_id", id, "actor", actor)
			httputil.WriteError(w, err)
			return
		}
		h.logger.InfoContext(ctx, "application "+name,
			"request_id", requestcontext.RequestID(ctx),
			"application_id", id,
			"actor", actor,
			"status", app.Status,
		)
		httputil.WriteJSON(w, http.StatusOK, fromApplication(app))
	}
}

type moderateFunc func(context.Context, whitelist.ModerationRequest) (membership.State, error)

func (h *WhitelistHandler) moderation(name string, fn moderateFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		player, err := domain.ParsePlayerID(chi.URLParam(r, "player"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req, ok := httputil.Decode[moderationRequest](w, r, h.logger)
		if !ok {
			return
		}
		actor := requestcontext.Actor(ctx)
		member, err := fn(ctx, whitelist.ModerationRequest{Player: player, Actor: actor, Reason: req.Reason})
		if err != nil {
			h.fail(ctx, name+" failed", err, "player_id", player, "actor", actor)
			httputil.WriteError(w, err)
			return
		}
		h.logger.InfoContext(ctx, "member "+name,
			"request_id", requestcontext.RequestID(ctx),
			"player_id", player,
			"actor", actor,
			"status", member.Status,
		)
		httputil.WriteJSON(w, http.StatusOK, fromMember(member))
	}
}

// fail logs client errors at warn and everything else at error.
func (h *WhitelistHandler) fail(ctx context.Context, msg string, err error, args ...any) {
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	if httputil.StatusFor(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.WarnContext(ctx, msg, args...)
		return
	}
	h.logger.ErrorContext(ctx, msg, args...)
}
