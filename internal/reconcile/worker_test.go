package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"argus/internal/application"
	"argus/internal/membership"
	"argus/internal/reconcile/metrics"
	"argus/internal/reconcile/mocks"
	"argus/internal/snapshot"
	"argus/pkg/domain"
)

type recordingReconciler struct {
	mu    sync.Mutex
	calls []domain.PlayerID
	done  chan domain.PlayerID
	// react, when set, runs on each call and picks the outcome.
	react func(domain.PlayerID) Outcome
}

func (r *recordingReconciler) Reconcile(_ context.Context, player domain.PlayerID) (Outcome, error) {
	r.mu.Lock()
	r.calls = append(r.calls, player)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- player
	}
	if r.react != nil {
		return r.react(player), nil
	}
	return OutcomeUnchanged, nil
}

func (r *recordingReconciler) seen() []domain.PlayerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.PlayerID(nil), r.calls...)
}

type staticCache struct{ state *snapshot.State }

func (c staticCache) Current() *snapshot.State { return c.state }

func (c staticCache) CatchUp(context.Context) (*snapshot.State, error) { return c.state, nil }

type WorkerSuite struct {
	suite.Suite
	ctx        context.Context
	ctrl       *gomock.Controller
	roles      *mocks.MockRoleAssigner
	reconciler *recordingReconciler
	state      *snapshot.State
	metrics    *metrics.Metrics
	worker     *Worker
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.roles = mocks.NewMockRoleAssigner(s.ctrl)
	s.reconciler = &recordingReconciler{}
	s.state = snapshot.Empty()
	s.metrics = metrics.New(prometheus.NewRegistry())

	w, err := NewWorker(s.reconciler, s.roles, staticCache{s.state},
		WithWorkerLogger(discard),
		WithWorkerMetrics(s.metrics),
		WithRate(rate.Inf, 1),
		WithQueueSize(2),
	)
	s.Require().NoError(err)
	s.worker = w
}

func (s *WorkerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *WorkerSuite) setStatus(player domain.PlayerID, status membership.Status) {
	s.state.Members[player] = membership.State{ID: domain.MembershipIDFor(player), Status: status}
}

func (s *WorkerSuite) TestEnqueueNeverBlocks() {
	s.True(s.worker.Enqueue(alice))
	s.True(s.worker.Enqueue(alice), "duplicate is absorbed")
	s.True(s.worker.Enqueue(bob))
	s.False(s.worker.Enqueue("100000000000000003"), "queue full")
	s.Equal(1.0, testutil.ToFloat64(s.metrics.QueueDropped))
}

func (s *WorkerSuite) TestSweepChecksProviderDrivenMembers() {
	s.setStatus(alice, membership.StatusWhitelisted)
	s.setStatus(bob, membership.StatusUnwhitelisted)
	s.setStatus("100000000000000003", membership.StatusBanned)
	s.setStatus("100000000000000004", membership.StatusPending)

	s.worker.Sweep(s.ctx)
	s.ElementsMatch([]domain.PlayerID{alice, bob}, s.reconciler.seen())
}

func (s *WorkerSuite) TestSweepRepairsLostApprovalAndGrantsRole() {
	s.setStatus(alice, membership.StatusPending)
	id := domain.NewApplicationID()
	s.state.Applications[id] = application.State{
		ID:        id,
		Player:    alice,
		Status:    application.StatusApproved,
		LastActor: bob,
		DecidedAt: now,
	}
	s.reconciler.react = func(player domain.PlayerID) Outcome {
		s.setStatus(player, membership.StatusWhitelisted)
		return OutcomeRepaired
	}

	s.worker.Sweep(s.ctx)
	s.Equal([]domain.PlayerID{alice}, s.reconciler.seen())
	op, owed := s.worker.PendingRoleOp(alice)
	s.True(owed)
	s.Equal(RoleGrant, op)
}

func (s *WorkerSuite) TestRoleOpsRetryOnNextSweep() {
	s.setStatus(alice, membership.StatusWhitelisted)

	gomock.InOrder(
		s.roles.EXPECT().GrantRole(gomock.Any(), alice).Return(errors.New("503")),
		s.roles.EXPECT().GrantRole(gomock.Any(), alice).Return(nil),
	)
	s.worker.EnqueueRoleOp(alice, RoleGrant)

	s.worker.Sweep(s.ctx)
	op, owed := s.worker.PendingRoleOp(alice)
	s.True(owed)
	s.Equal(RoleGrant, op)
	s.Empty(s.reconciler.seen(), "owed players skip drift checks")

	s.worker.Sweep(s.ctx)
	_, owed = s.worker.PendingRoleOp(alice)
	s.False(owed)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RoleOps.WithLabelValues("grant", "error")))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.RoleOps.WithLabelValues("grant", "ok")))
}

func (s *WorkerSuite) TestLaterRoleOpReplacesEarlier() {
	s.worker.EnqueueRoleOp(alice, RoleGrant)
	s.worker.EnqueueRoleOp(alice, RoleRevoke)

	s.roles.EXPECT().RevokeRole(gomock.Any(), alice).Return(nil)
	s.worker.Sweep(s.ctx)
	_, owed := s.worker.PendingRoleOp(alice)
	s.False(owed)
}

func (s *WorkerSuite) TestRunDrainsQueue() {
	s.reconciler.done = make(chan domain.PlayerID, 1)
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.worker.Run(ctx) }()

	s.Require().True(s.worker.Enqueue(bob))
	select {
	case got := <-s.reconciler.done:
		s.Equal(bob, got)
	case <-time.After(2 * time.Second):
		s.Fail("queued player was not reconciled")
	}

	cancel()
	s.NoError(<-errc)
}

func (s *WorkerSuite) TestNewRequiresDependencies() {
	_, err := NewWorker(nil, s.roles, staticCache{s.state})
	s.Error(err)
	_, err = NewWorker(s.reconciler, nil, staticCache{s.state})
	s.Error(err)
	_, err = NewWorker(s.reconciler, s.roles, nil)
	s.Error(err)
}
