package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"argus/internal/gate"
	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
	"argus/pkg/platform/httputil"
	"argus/pkg/requestcontext"
)

// Decider answers connect attempts from the snapshot.
type Decider interface {
	Decide(player domain.PlayerID, isOp, isLegacyWhitelisted bool) gate.Decision
	DecideAccount(account domain.GameAccountID, isOp bool) gate.Decision
}

type GateHandler struct {
	gate   Decider
	logger *slog.Logger
}

func NewGateHandler(g Decider, logger *slog.Logger) *GateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GateHandler{gate: g, logger: logger}
}

func (h *GateHandler) Register(r chi.Router) {
	r.Post("/gate/decide", h.HandleDecide)
}

// HandleDecide handles POST /v1/gate/decide. Decisions are always 200; only a
// malformed request is an error.
func (h *GateHandler) HandleDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[gateRequest](w, r, h.logger)
	if !ok {
		return
	}

	var d gate.Decision
	switch {
	case req.GameAccount != "":
		account, err := domain.ParseGameAccountID(req.GameAccount)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		d = h.gate.DecideAccount(account, req.IsOp)
	case req.Player != "":
		player, err := domain.ParsePlayerID(req.Player)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		d = h.gate.Decide(player, req.IsOp, req.IsLegacy)
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "game_account or player is required"))
		return
	}

	h.logger.DebugContext(ctx, "connect decided",
		"request_id", requestcontext.RequestID(ctx),
		"kind", d.Kind,
		"reason", d.Reason,
	)
	httputil.WriteJSON(w, http.StatusOK, fromDecision(d))
}
