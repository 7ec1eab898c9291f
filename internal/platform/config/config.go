// Package config loads process configuration from ARGUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Server    Server    `envPrefix:"SERVER_"`
	Auth      Auth      `envPrefix:"AUTH_"`
	Store     Store     `envPrefix:"STORE_"`
	Snapshot  Snapshot  `envPrefix:"SNAPSHOT_"`
	Redis     Redis     `envPrefix:"REDIS_"`
	Kafka     Kafka     `envPrefix:"KAFKA_"`
	Discord   Discord   `envPrefix:"DISCORD_"`
	Reconcile Reconcile `envPrefix:"RECONCILE_"`
	Audit     Audit     `envPrefix:"AUDIT_"`
	Link      Link      `envPrefix:"LINK_"`
	RateLimit RateLimit `envPrefix:"RATELIMIT_"`
	Messages  Messages  `envPrefix:"MESSAGE_"`
	Legacy    Legacy    `envPrefix:"LEGACY_"`
	Log       Log       `envPrefix:"LOG_"`
}

// Server captures admin HTTP server configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type Auth struct {
	// Dev default; override in production.
	SigningKey string `env:"SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer     string `env:"ISSUER" envDefault:"argus"`
	Audience   string `env:"AUDIENCE" envDefault:"argus-admin"`
}

type Store struct {
	Backend     string `env:"BACKEND" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"data/events.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

type Snapshot struct {
	Path            string        `env:"PATH" envDefault:"data/snapshot.json"`
	PersistInterval time.Duration `env:"PERSIST_INTERVAL" envDefault:"30s"`
}

// Redis configures the optional status mirror. An empty URL disables it.
type Redis struct {
	URL          string        `env:"URL"`
	Key          string        `env:"KEY" envDefault:"argus:membership"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures the audit stream sink. No brokers disables it.
type Kafka struct {
	Brokers    []string `env:"BROKERS" envSeparator:","`
	Topic      string   `env:"TOPIC" envDefault:"argus.audit"`
	Partitions int32    `env:"PARTITIONS" envDefault:"1"`
	Replicas   int16    `env:"REPLICAS" envDefault:"1"`
}

// Discord configures the role provider. An empty token disables reconciliation.
type Discord struct {
	BotToken string        `env:"BOT_TOKEN"`
	GuildID  string        `env:"GUILD_ID"`
	RoleID   string        `env:"ROLE_ID"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

func (d Discord) Enabled() bool { return d.BotToken != "" }

type Reconcile struct {
	Interval  time.Duration `env:"INTERVAL" envDefault:"10m"`
	Rate      float64       `env:"RATE" envDefault:"5"`
	Burst     int           `env:"BURST" envDefault:"5"`
	QueueSize int           `env:"QUEUE_SIZE" envDefault:"256"`
}

type Audit struct {
	Interval    time.Duration `env:"INTERVAL" envDefault:"2s"`
	PostgresDSN string        `env:"POSTGRES_DSN"`
}

type Link struct {
	TTL time.Duration `env:"TTL" envDefault:"10m"`
}

// RateLimit budgets admin API callers. Zero requests disables a class.
type RateLimit struct {
	LinkRequests int           `env:"LINK_REQUESTS" envDefault:"5"`
	LinkWindow   time.Duration `env:"LINK_WINDOW" envDefault:"1m"`
	APIRequests  int           `env:"API_REQUESTS" envDefault:"600"`
	APIWindow    time.Duration `env:"API_WINDOW" envDefault:"1m"`
}

// Messages are the connect-time texts shown to denied players.
type Messages struct {
	Apply      string `env:"APPLY" envDefault:"You are not whitelisted. Apply on our Discord server."`
	Banned     string `env:"BANNED" envDefault:"You are banned from this server."`
	LegacyLink string `env:"LEGACY_LINK" envDefault:"Link your Discord account with /link {token} to keep playing."`
}

type Legacy struct {
	WhitelistPath string `env:"WHITELIST_PATH"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses ARGUS_* variables and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ARGUS_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			errs = append(errs, errors.New("ARGUS_STORE_SQLITE_PATH is required for the sqlite backend"))
		}
	case StorePostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, errors.New("ARGUS_STORE_POSTGRES_DSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("ARGUS_AUTH_SIGNING_KEY must not be empty"))
	}
	if c.Discord.Enabled() && (c.Discord.GuildID == "" || c.Discord.RoleID == "") {
		errs = append(errs, errors.New("ARGUS_DISCORD_GUILD_ID and ARGUS_DISCORD_ROLE_ID are required with a bot token"))
	}
	if !strings.Contains(c.Messages.LegacyLink, "{token}") {
		errs = append(errs, errors.New("ARGUS_MESSAGE_LEGACY_LINK must contain {token}"))
	}
	if c.Reconcile.Rate <= 0 || c.Reconcile.Burst <= 0 {
		errs = append(errs, errors.New("reconcile rate and burst must be positive"))
	}
	if c.Reconcile.QueueSize <= 0 {
		errs = append(errs, errors.New("ARGUS_RECONCILE_QUEUE_SIZE must be positive"))
	}
	return errors.Join(errs...)
}
