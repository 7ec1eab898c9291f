package app

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"argus/internal/gate"
	"argus/internal/platform/config"
	"argus/internal/whitelist"
	"argus/pkg/domain"
)

type AppSuite struct {
	suite.Suite
	cfg    config.Config
	logger *slog.Logger
}

func TestAppSuite(t *testing.T) {
	suite.Run(t, new(AppSuite))
}

func (s *AppSuite) SetupTest() {
	dir := s.T().TempDir()
	cfg, err := config.Load()
	s.Require().NoError(err)
	cfg.Store.Backend = config.StoreSQLite
	cfg.Store.SQLitePath = filepath.Join(dir, "events.db")
	cfg.Snapshot.Path = filepath.Join(dir, "snapshot.json")
	cfg.Snapshot.PersistInterval = 50 * time.Millisecond
	cfg.Audit.Interval = 50 * time.Millisecond
	cfg.Server.Addr = freeAddr(s.T())
	s.cfg = cfg
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return addr
}

func (s *AppSuite) TestBootstrapWithoutOptionalParts() {
	a, err := Bootstrap(context.Background(), s.cfg, s.logger)
	s.Require().NoError(err)
	defer a.Close()

	s.Nil(a.Worker)
	s.Nil(a.Reconciler)
	s.Nil(a.Mirror)
	s.Nil(a.Stream)
	s.NotNil(a.Gate)
	s.NotNil(a.Server)
	s.NoError(a.Health(context.Background()))
}

func (s *AppSuite) TestStateSurvivesRestart() {
	ctx := context.Background()
	player := domain.PlayerID("100000000000000001")
	account := domain.GameAccountID("069a79f4-44e9-4726-a5be-fca90e38aaf5")

	a, err := Bootstrap(ctx, s.cfg, s.logger)
	s.Require().NoError(err)
	submitted, err := a.Whitelist.Apply(ctx, whitelist.ApplyRequest{Player: player, GameAccount: account, GameUsername: "steve"})
	s.Require().NoError(err)
	_, err = a.Whitelist.Approve(ctx, whitelist.DecisionRequest{Application: submitted.ID, Actor: "900000000000000009"})
	s.Require().NoError(err)
	s.Require().NoError(a.Cache.Persist())
	a.Close()

	b, err := Bootstrap(ctx, s.cfg, s.logger)
	s.Require().NoError(err)
	defer b.Close()
	s.Equal(gate.KindAllow, b.Gate.DecideAccount(account, false).Kind)
}

func (s *AppSuite) TestRunStopsOnCancel() {
	a, err := Bootstrap(context.Background(), s.cfg, s.logger)
	s.Require().NoError(err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(5 * time.Second):
		s.Fail("Run did not stop")
	}
}

func (s *AppSuite) TestUnreachablePostgresFailsStartup() {
	s.cfg.Store.Backend = config.StorePostgres
	s.cfg.Store.PostgresDSN = "postgres://argus@127.0.0.1:1/argus?sslmode=disable&connect_timeout=1"
	_, err := Bootstrap(context.Background(), s.cfg, s.logger)
	s.Error(err)
}
