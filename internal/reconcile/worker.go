package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"argus/internal/membership"
	"argus/internal/reconcile/metrics"
	"argus/pkg/domain"
)

const (
	DefaultSweepInterval = 10 * time.Minute
	DefaultQueueSize     = 256
	DefaultRate          = rate.Limit(5)
	DefaultBurst         = 5
)

type RoleOp string

const (
	RoleGrant  RoleOp = "grant"
	RoleRevoke RoleOp = "revoke"
)

// Reconciler is the per-player check the worker drives.
type Reconciler interface {
	Reconcile(ctx context.Context, player domain.PlayerID) (Outcome, error)
}

// Worker owns every provider call: periodic sweeps, deny-triggered checks and
// role assignment after moderator decisions. Failures are left for the next
// sweep; nothing is retried inline.
type Worker struct {
	reconciler Reconciler
	roles      RoleAssigner
	cache      StatusCache
	limiter    *rate.Limiter
	interval   time.Duration
	queue      chan domain.PlayerID
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu      sync.Mutex
	queued  map[domain.PlayerID]struct{}
	pending map[domain.PlayerID]RoleOp
}

type WorkerOption func(*Worker)

func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

func WithWorkerMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

func WithSweepInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithRate paces provider calls across sweeps and queued checks.
func WithRate(limit rate.Limit, burst int) WorkerOption {
	return func(w *Worker) {
		w.limiter = rate.NewLimiter(limit, burst)
	}
}

func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan domain.PlayerID, n)
		}
	}
}

func NewWorker(reconciler Reconciler, roles RoleAssigner, cache StatusCache, opts ...WorkerOption) (*Worker, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler is required")
	}
	if roles == nil {
		return nil, fmt.Errorf("role assigner is required")
	}
	if cache == nil {
		return nil, fmt.Errorf("status cache is required")
	}
	w := &Worker{
		reconciler: reconciler,
		roles:      roles,
		cache:      cache,
		limiter:    rate.NewLimiter(DefaultRate, DefaultBurst),
		interval:   DefaultSweepInterval,
		queue:      make(chan domain.PlayerID, DefaultQueueSize),
		logger:     slog.Default(),
		queued:     make(map[domain.PlayerID]struct{}),
		pending:    make(map[domain.PlayerID]RoleOp),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Enqueue asks for a prompt check of player. It never blocks and reports false
// when the request was dropped. A player already waiting is not queued twice.
func (w *Worker) Enqueue(player domain.PlayerID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.queued[player]; ok {
		return true
	}
	select {
	case w.queue <- player:
		w.queued[player] = struct{}{}
		return true
	default:
		w.metrics.IncrementQueueDropped()
		return false
	}
}

// EnqueueRoleOp records that player's provider role must be granted or revoked.
// A later op for the same player replaces an earlier one. Until it succeeds the
// player is excluded from drift checks.
func (w *Worker) EnqueueRoleOp(player domain.PlayerID, op RoleOp) {
	w.mu.Lock()
	w.pending[player] = op
	w.mu.Unlock()
	w.Enqueue(player)
}

// PendingRoleOp reports the role op still owed to player, if any.
func (w *Worker) PendingRoleOp(player domain.PlayerID) (RoleOp, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	op, ok := w.pending[player]
	return op, ok
}

// Run processes the queue and sweeps every interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case player := <-w.queue:
				w.mu.Lock()
				delete(w.queued, player)
				w.mu.Unlock()
				w.process(ctx, player)
			}
		}
	})
	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				w.Sweep(ctx)
			}
		}
	})
	return g.Wait()
}

// Sweep retries owed role ops, then checks every provider-driven member.
func (w *Worker) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() { w.metrics.ObserveSweep(time.Since(start)) }()

	w.mu.Lock()
	owed := make([]domain.PlayerID, 0, len(w.pending))
	for player := range w.pending {
		owed = append(owed, player)
	}
	w.mu.Unlock()
	for _, player := range owed {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, player)
	}

	snap := w.cache.Current()
	players := append(snap.PlayersOwingEffects(),
		snap.PlayersWithStatus(membership.StatusWhitelisted, membership.StatusUnwhitelisted)...)
	checked := 0
	for _, player := range players {
		if ctx.Err() != nil {
			return
		}
		if _, owed := w.PendingRoleOp(player); owed {
			continue
		}
		w.process(ctx, player)
		checked++
	}
	w.logger.InfoContext(ctx, "reconcile sweep finished",
		"checked", checked,
		"role_ops", len(owed),
		"duration", time.Since(start).String(),
	)
}

func (w *Worker) process(ctx context.Context, player domain.PlayerID) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	if op, ok := w.PendingRoleOp(player); ok {
		w.applyRoleOp(ctx, player, op)
		return
	}
	outcome, err := w.reconciler.Reconcile(ctx, player)
	if err != nil {
		w.logger.WarnContext(ctx, "reconcile failed",
			"player_id", player.String(),
			"outcome", string(outcome),
			"error", err,
		)
		return
	}
	// A repaired approval still owes the provider role.
	if outcome == OutcomeRepaired {
		if status, _ := w.cache.Current().Status(player); status == membership.StatusWhitelisted {
			w.EnqueueRoleOp(player, RoleGrant)
		}
	}
}

func (w *Worker) applyRoleOp(ctx context.Context, player domain.PlayerID, op RoleOp) {
	var err error
	switch op {
	case RoleGrant:
		err = w.roles.GrantRole(ctx, player)
	case RoleRevoke:
		err = w.roles.RevokeRole(ctx, player)
	default:
		err = fmt.Errorf("unknown role op %q", op)
	}
	w.metrics.IncrementRoleOp(string(op), err == nil)
	if err != nil {
		w.logger.WarnContext(ctx, "provider role op failed, retrying next sweep",
			"player_id", player.String(),
			"op", string(op),
			"error", err,
		)
		return
	}

	w.mu.Lock()
	// A newer op may have been queued while this one was in flight.
	if w.pending[player] == op {
		delete(w.pending, player)
	}
	w.mu.Unlock()
}
