package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"argus/internal/reconcile"
	"argus/pkg/domain"
	"argus/pkg/platform/httputil"
	"argus/pkg/requestcontext"
)

type Reconciler interface {
	Reconcile(ctx context.Context, player domain.PlayerID) (reconcile.Outcome, error)
}

type ReconcileHandler struct {
	reconciler Reconciler
	logger     *slog.Logger
}

func NewReconcileHandler(reconciler Reconciler, logger *slog.Logger) *ReconcileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReconcileHandler{reconciler: reconciler, logger: logger}
}

func (h *ReconcileHandler) Register(r chi.Router) {
	r.Post("/members/{player}/reconcile", h.HandleReconcile)
}

// HandleReconcile handles POST /v1/members/{player}/reconcile. A provider
// failure is reported to the caller; the membership is left as it was.
func (h *ReconcileHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	player, err := domain.ParsePlayerID(chi.URLParam(r, "player"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	outcome, err := h.reconciler.Reconcile(ctx, player)
	if err != nil {
		h.logger.WarnContext(ctx, "on-demand reconcile failed",
			"request_id", requestcontext.RequestID(ctx),
			"player_id", player,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, reconcileResponse{Player: player.String(), Outcome: string(outcome)})
}
