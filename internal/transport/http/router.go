package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"argus/internal/ratelimit"
	"argus/pkg/platform/httputil"
	authmw "argus/pkg/platform/middleware/auth"
	request "argus/pkg/platform/middleware/request"
)

// RouterConfig carries the cross-cutting pieces of the admin API.
type RouterConfig struct {
	Logger    *slog.Logger
	Validator authmw.JWTValidator
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health reports readiness at /healthz; nil means always healthy.
	Health func(ctx context.Context) error
	// RateLimit throttles /v1 per caller when set.
	RateLimit *ratelimit.Middleware
}

// Handlers groups the endpoint sets. Reconcile is nil when no role provider is configured.
type Handlers struct {
	Whitelist *WhitelistHandler
	Gate      *GateHandler
	Reconcile *ReconcileHandler
	Audit     *AuditHandler
}

// NewRouter wires the admin API. Everything under /v1 requires a bearer token;
// each group admits the roles that use it.
func NewRouter(cfg RouterConfig, h Handlers) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(request.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "error", err)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authmw.RequireAuth(cfg.Validator, logger))
		var linkGuard []func(http.Handler) http.Handler
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.RateLimit(ratelimit.ClassAPI))
			linkGuard = append(linkGuard, cfg.RateLimit.RateLimit(ratelimit.ClassLink))
		}

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(logger, authmw.RoleModerator))
			if h.Whitelist != nil {
				h.Whitelist.RegisterModeration(r)
			}
			if h.Reconcile != nil {
				h.Reconcile.Register(r)
			}
			if h.Audit != nil {
				h.Audit.Register(r)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(logger, authmw.RoleModerator, authmw.RoleBot))
			if h.Whitelist != nil {
				h.Whitelist.RegisterPlayer(r, linkGuard...)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(authmw.RequireRole(logger, authmw.RoleModerator, authmw.RolePlugin))
			if h.Gate != nil {
				h.Gate.Register(r)
			}
		})
	})
	return r
}
