package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"argus/internal/audit"
	dErrors "argus/pkg/domain-errors"
	"argus/pkg/platform/httputil"
	"argus/pkg/requestcontext"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

type AuditReader interface {
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

type AuditHandler struct {
	store  AuditReader
	logger *slog.Logger
}

func NewAuditHandler(store AuditReader, logger *slog.Logger) *AuditHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditHandler{store: store, logger: logger}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Get("/audit", h.HandleList)
}

// HandleList handles GET /v1/audit?subject=&after=&limit=.
func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := audit.Filter{Subject: q.Get("subject"), Limit: defaultAuditLimit}
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseInt(v, 10, 64)
		if err != nil || after < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "after must be a non-negative integer"))
			return
		}
		filter.AfterSeq = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > maxAuditLimit {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be between 1 and 1000"))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.store.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "audit list failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	next := filter.AfterSeq
	if len(entries) > 0 {
		next = entries[len(entries)-1].Seq
	}
	httputil.WriteJSON(w, http.StatusOK, auditResponse{Entries: entries, Next: next})
}
