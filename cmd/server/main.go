package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"argus/internal/app"
	jwttoken "argus/internal/jwt_token"
	"argus/internal/platform/config"
	"argus/internal/platform/logger"
	"argus/pkg/domain"
	authmw "argus/pkg/platform/middleware/auth"
)

// main loads configuration, wires the application and runs it until SIGINT or
// SIGTERM. With -mint-token it prints an admin API token and exits.
func main() {
	mintFor := flag.String("mint-token", "", "print an admin API token for this actor id and exit")
	role := flag.String("role", authmw.RoleModerator, "role for -mint-token (moderator, bot, plugin)")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime for -mint-token")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	if *mintFor != "" {
		if err := mintToken(cfg, *mintFor, *role, *ttl); err != nil {
			fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Bootstrap(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	log.InfoContext(ctx, "argus started",
		"store", cfg.Store.Backend,
		"snapshot_source", string(a.Source),
		"reconcile", a.Worker != nil,
	)
	if err := a.Run(ctx); err != nil {
		log.Error("argus stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	log.Info("argus stopped")
}

func mintToken(cfg config.Config, actor, role string, ttl time.Duration) error {
	switch role {
	case authmw.RoleModerator, authmw.RoleBot, authmw.RolePlugin:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	id, err := domain.ParsePlayerID(actor)
	if err != nil {
		return err
	}
	tokens := jwttoken.NewJWTService(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
	token, err := tokens.GenerateAccessToken(id, role, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
