// Package app wires argus's components from configuration and runs them.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"argus/internal/aggregate"
	"argus/internal/application"
	"argus/internal/audit"
	"argus/internal/audit/publishers/stream"
	auditmemory "argus/internal/audit/store/memory"
	auditpostgres "argus/internal/audit/store/postgres"
	"argus/internal/eventstore"
	"argus/internal/eventstore/memory"
	esmetrics "argus/internal/eventstore/metrics"
	espostgres "argus/internal/eventstore/postgres"
	"argus/internal/eventstore/sqlite"
	"argus/internal/gate"
	gatemetrics "argus/internal/gate/metrics"
	jwttoken "argus/internal/jwt_token"
	"argus/internal/legacy"
	"argus/internal/link"
	"argus/internal/membership"
	"argus/internal/platform/config"
	"argus/internal/platform/httpserver"
	platformmetrics "argus/internal/platform/metrics"
	platformredis "argus/internal/platform/redis"
	"argus/internal/provider/discord"
	"argus/internal/ratelimit"
	"argus/internal/ratelimit/bucket"
	ratelimitmetrics "argus/internal/ratelimit/metrics"
	"argus/internal/reconcile"
	reconcilemetrics "argus/internal/reconcile/metrics"
	"argus/internal/snapshot"
	"argus/internal/snapshot/redismirror"
	httptransport "argus/internal/transport/http"
	"argus/internal/whitelist"
)

const sweepInterval = time.Minute

// App holds the wired components. Optional parts are nil when not configured.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Store      eventstore.Store
	Cache      *snapshot.Cache
	Source     snapshot.Source
	Gate       *gate.Gate
	Whitelist  *whitelist.Service
	Links      *link.Issuer
	Buckets    *bucket.InMemoryBucketStore
	Legacy     *legacy.Set
	Tokens     *jwttoken.JWTService
	AuditStore audit.Store
	Audit      *audit.Worker
	Server     *http.Server

	Reconciler *reconcile.Service
	Worker     *reconcile.Worker
	Redis      *platformredis.Client
	Mirror     *redismirror.Mirror
	Stream     *stream.Publisher

	closers []func() error
}

// Bootstrap opens storage, rebuilds the status cache and wires every service.
// A log that cannot be read is an error; the process must not start.
func Bootstrap(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: platformmetrics.NewRegistry(),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}
	if err := a.openRedis(ctx); err != nil {
		return nil, err
	}
	if err := a.bootstrapCache(ctx); err != nil {
		return nil, err
	}

	repoOpts := []aggregate.Option{aggregate.WithLogger(logger)}
	apps, err := application.NewRepository(a.Store, repoOpts...)
	if err != nil {
		return nil, err
	}
	members, err := membership.NewRepository(a.Store, repoOpts...)
	if err != nil {
		return nil, err
	}

	a.Links = link.NewIssuer(link.WithTTL(cfg.Link.TTL))
	if err := a.loadLegacy(ctx); err != nil {
		return nil, err
	}
	if err := a.wireReconcile(members); err != nil {
		return nil, err
	}

	wlOpts := []whitelist.Option{
		whitelist.WithLogger(logger),
		whitelist.WithLegacyLinking(a.Links, a.Legacy),
	}
	if a.Worker != nil {
		wlOpts = append(wlOpts, whitelist.WithRoleQueue(a.Worker))
	}
	if a.Whitelist, err = whitelist.New(apps, members, a.Cache, wlOpts...); err != nil {
		return nil, err
	}

	gateOpts := []gate.Option{
		gate.WithLogger(logger),
		gate.WithMetrics(gatemetrics.New(a.Registry)),
		gate.WithLegacy(a.Legacy),
	}
	if a.Worker != nil {
		gateOpts = append(gateOpts, gate.WithDenyHook(a.Worker.Enqueue))
	}
	a.Gate, err = gate.New(a.Cache, a.Links, gate.Messages{
		Apply:      cfg.Messages.Apply,
		Banned:     cfg.Messages.Banned,
		LegacyLink: cfg.Messages.LegacyLink,
	}, gateOpts...)
	if err != nil {
		return nil, err
	}

	if err := a.wireAudit(ctx); err != nil {
		return nil, err
	}

	a.Tokens = jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	a.Server = httpserver.New(cfg.Server.Addr, a.router())
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	var store eventstore.Store
	switch a.Config.Store.Backend {
	case config.StoreMemory:
		a.Logger.WarnContext(ctx, "using in-memory event log; history is lost on exit")
		store = memory.New()
	case config.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(a.Config.Store.SQLitePath), 0o755); err != nil {
			return fmt.Errorf("create event log directory: %w", err)
		}
		s, err := sqlite.Open(a.Config.Store.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, s.Close)
		store = s
	case config.StorePostgres:
		db, err := openPostgres(ctx, a.Config.Store.PostgresDSN)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		s := espostgres.New(db)
		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate event log: %w", err)
		}
		store = s
	default:
		return fmt.Errorf("unknown store backend %q", a.Config.Store.Backend)
	}
	a.Store = eventstore.Instrument(store, esmetrics.New(a.Registry))
	return nil
}

func openPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (a *App) openRedis(ctx context.Context) error {
	client, err := platformredis.New(ctx, a.Config.Redis)
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)
	a.Mirror = redismirror.New(client, redismirror.WithKey(a.Config.Redis.Key), redismirror.WithLogger(a.Logger))
	return nil
}

func (a *App) bootstrapCache(ctx context.Context) error {
	files, err := snapshot.NewFileStore(a.Config.Snapshot.Path, snapshot.WithFileLogger(a.Logger))
	if err != nil {
		return err
	}
	opts := []snapshot.Option{snapshot.WithLogger(a.Logger)}
	if a.Mirror != nil {
		opts = append(opts, snapshot.WithSwapHook(a.Mirror.Notify))
	}
	a.Cache, a.Source, err = snapshot.Bootstrap(ctx, a.Store, files, opts...)
	if err != nil {
		return fmt.Errorf("bootstrap status cache: %w", err)
	}
	return nil
}

func (a *App) loadLegacy(ctx context.Context) error {
	a.Legacy = legacy.NewSet()
	path := a.Config.Legacy.WhitelistPath
	if path == "" {
		return nil
	}
	loaded, skipped, err := a.Legacy.LoadWhitelistFile(path)
	if err != nil {
		return fmt.Errorf("load legacy whitelist: %w", err)
	}
	a.Logger.InfoContext(ctx, "legacy whitelist loaded", "path", path, "loaded", loaded, "skipped", skipped)
	return nil
}

func (a *App) wireReconcile(members *membership.Repository) error {
	cfg := a.Config
	if !cfg.Discord.Enabled() {
		a.Logger.Warn("no discord bot token; role reconciliation is disabled")
		return nil
	}
	client, err := discord.New(discord.Config{
		BotToken: cfg.Discord.BotToken,
		GuildID:  cfg.Discord.GuildID,
		RoleID:   cfg.Discord.RoleID,
		Timeout:  cfg.Discord.Timeout,
	}, discord.WithLogger(a.Logger))
	if err != nil {
		return err
	}

	m := reconcilemetrics.New(a.Registry)
	a.Reconciler, err = reconcile.NewService(client, members, a.Cache,
		reconcile.WithLogger(a.Logger),
		reconcile.WithMetrics(m),
		reconcile.WithProviderTimeout(cfg.Discord.Timeout),
	)
	if err != nil {
		return err
	}
	a.Worker, err = reconcile.NewWorker(a.Reconciler, client, a.Cache,
		reconcile.WithWorkerLogger(a.Logger),
		reconcile.WithWorkerMetrics(m),
		reconcile.WithSweepInterval(cfg.Reconcile.Interval),
		reconcile.WithRate(rate.Limit(cfg.Reconcile.Rate), cfg.Reconcile.Burst),
		reconcile.WithQueueSize(cfg.Reconcile.QueueSize),
	)
	return err
}

func (a *App) wireAudit(ctx context.Context) error {
	cfg := a.Config
	if cfg.Audit.PostgresDSN != "" {
		db, err := openPostgres(ctx, cfg.Audit.PostgresDSN)
		if err != nil {
			return fmt.Errorf("audit store: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store := auditpostgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate audit store: %w", err)
		}
		a.AuditStore = store
	} else {
		a.AuditStore = auditmemory.NewInMemoryStore()
	}

	opts := []audit.WorkerOption{audit.WithLogger(a.Logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := stream.New(cfg.Kafka.Brokers, stream.WithTopic(cfg.Kafka.Topic), stream.WithLogger(a.Logger))
		if err != nil {
			return err
		}
		a.Stream = pub
		a.closers = append(a.closers, pub.Close)
		if err := pub.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.Replicas); err != nil {
			return fmt.Errorf("ensure audit topic: %w", err)
		}
		opts = append(opts, audit.WithSink(pub, 0))
	}

	var err error
	a.Audit, err = audit.NewWorker(a.Store, a.AuditStore, opts...)
	return err
}

func (a *App) router() http.Handler {
	handlers := httptransport.Handlers{
		Whitelist: httptransport.NewWhitelistHandler(a.Whitelist, a.Cache, a.Logger),
		Gate:      httptransport.NewGateHandler(a.Gate, a.Logger),
		Audit:     httptransport.NewAuditHandler(a.AuditStore, a.Logger),
	}
	if a.Reconciler != nil {
		handlers.Reconcile = httptransport.NewReconcileHandler(a.Reconciler, a.Logger)
	}
	rl := a.Config.RateLimit
	a.Buckets = bucket.NewInMemoryBucketStore()
	limiter := ratelimit.New(a.Buckets,
		ratelimit.WithLogger(a.Logger),
		ratelimit.WithMetrics(ratelimitmetrics.New(a.Registry)),
		ratelimit.WithLimit(ratelimit.ClassLink, ratelimit.Limit{Requests: rl.LinkRequests, Window: rl.LinkWindow}),
		ratelimit.WithLimit(ratelimit.ClassAPI, ratelimit.Limit{Requests: rl.APIRequests, Window: rl.APIWindow}),
	)
	return httptransport.NewRouter(httptransport.RouterConfig{
		Logger:    a.Logger,
		Validator: a.Tokens,
		Metrics:   platformmetrics.Handler(a.Registry),
		Health:    a.Health,
		RateLimit: limiter,
	}, handlers)
}

// Health checks the event log and, when configured, Redis.
func (a *App) Health(ctx context.Context) error {
	if _, err := a.Store.ReadAll(ctx, a.Cache.Current().Seq, 1); err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Run starts the background loops and the admin server, and blocks until ctx
// is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Cache.Run(ctx, a.Config.Snapshot.PersistInterval) })
	g.Go(func() error { return a.Audit.Run(ctx, a.Config.Audit.Interval) })
	g.Go(func() error { return a.sweep(ctx) })
	if a.Worker != nil {
		g.Go(func() error { return a.Worker.Run(ctx) })
	}
	if a.Mirror != nil {
		a.Mirror.Notify(a.Cache.Current())
		g.Go(func() error { return a.Mirror.Run(ctx) })
	}
	g.Go(func() error {
		a.Logger.InfoContext(ctx, "admin server listening", "addr", a.Server.Addr)
		return httpserver.Serve(ctx, a.Server, a.Config.Server.ShutdownTimeout)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sweep drops expired link tokens and idle rate limit buckets.
func (a *App) sweep(ctx context.Context) error {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.Links.Sweep(); n > 0 {
				a.Logger.DebugContext(ctx, "expired link tokens dropped", "count", n)
			}
			a.Buckets.Prune()
		}
	}
}

// Close releases storage and clients in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Error("close failed", "error", err)
		}
	}
	a.closers = nil
}
