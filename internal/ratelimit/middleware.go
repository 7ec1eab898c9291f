// Package ratelimit throttles admin API callers per actor and endpoint class.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"argus/internal/ratelimit/bucket"
	"argus/internal/ratelimit/metrics"
	"argus/pkg/platform/httputil"
	request "argus/pkg/platform/middleware/request"
	"argus/pkg/requestcontext"
)

// Class groups endpoints that share a budget.
type Class string

const (
	// ClassLink guards token redemption, which is guessable by brute force.
	ClassLink Class = "link"
	// ClassAPI is the general per-caller budget for the admin API.
	ClassAPI Class = "api"
)

type Limit struct {
	Requests int
	Window   time.Duration
}

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

type Middleware struct {
	store   *bucket.InMemoryBucketStore
	limits  map[Class]Limit
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

// WithLimit sets the budget for class. A class without a limit is not throttled.
func WithLimit(class Class, limit Limit) Option {
	return func(m *Middleware) {
		if limit.Requests > 0 && limit.Window > 0 {
			m.limits[class] = limit
		}
	}
}

func New(store *bucket.InMemoryBucketStore, opts ...Option) *Middleware {
	m := &Middleware{
		store:  store,
		limits: make(map[Class]Limit),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RateLimit throttles by authenticated actor, falling back to the remote
// address. Runs after auth.RequireAuth.
func (m *Middleware) RateLimit(class Class) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limit, ok := m.limits[class]
		if !ok {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			caller := requestcontext.Actor(ctx).String()
			if caller == "" {
				caller = r.RemoteAddr
			}

			result := m.store.Allow(string(class)+":"+caller, limit.Requests, limit.Window)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := int(math.Ceil(result.RetryAfter(time.Now()).Seconds()))
				m.metrics.IncrementRejected(string(class))
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"caller", caller,
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
					Error:      "rate_limit_exceeded",
					Message:    "Too many requests. Please try again later.",
					RetryAfter: retry,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
