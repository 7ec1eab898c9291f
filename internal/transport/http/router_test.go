package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"argus/internal/application"
	"argus/internal/audit"
	auditmemory "argus/internal/audit/store/memory"
	"argus/internal/eventstore/memory"
	"argus/internal/gate"
	jwttoken "argus/internal/jwt_token"
	"argus/internal/legacy"
	"argus/internal/link"
	"argus/internal/membership"
	"argus/internal/ratelimit"
	"argus/internal/ratelimit/bucket"
	"argus/internal/reconcile"
	"argus/internal/snapshot"
	"argus/internal/whitelist"
	"argus/pkg/domain"
	dErrors "argus/pkg/domain-errors"
	authmw "argus/pkg/platform/middleware/auth"
	"argus/pkg/testutil"
)

const (
	player    = domain.PlayerID("100000000000000001")
	moderator = domain.PlayerID("900000000000000009")
	bot       = domain.PlayerID("800000000000000008")
	sidecar   = domain.PlayerID("700000000000000007")
	account   = "069a79f4-44e9-4726-a5be-fca90e38aaf5"
)

type stubReconciler struct {
	outcome reconcile.Outcome
	err     error
}

func (s stubReconciler) Reconcile(context.Context, domain.PlayerID) (reconcile.Outcome, error) {
	return s.outcome, s.err
}

type RouterSuite struct {
	suite.Suite
	ctx        context.Context
	store      *memory.Store
	cache      *snapshot.Cache
	legacy     *legacy.Set
	audit      *audit.Worker
	reconciler *stubReconciler
	jwt        *jwttoken.JWTService
	routerCfg  RouterConfig
	handlers   Handlers
	handler    http.Handler
	healthErr  error
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.ctx = context.Background()
	s.healthErr = nil
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = memory.New()
	s.legacy = legacy.NewSet()
	issuer := link.NewIssuer()

	apps, err := application.NewRepository(s.store)
	s.Require().NoError(err)
	members, err := membership.NewRepository(s.store)
	s.Require().NoError(err)
	s.cache, _, err = snapshot.Bootstrap(s.ctx, s.store, nil, snapshot.WithLogger(discard))
	s.Require().NoError(err)

	svc, err := whitelist.New(apps, members, s.cache,
		whitelist.WithLogger(discard),
		whitelist.WithLegacyLinking(issuer, s.legacy),
	)
	s.Require().NoError(err)
	g, err := gate.New(s.cache, issuer, gate.Messages{
		Apply:      "apply first",
		Banned:     "banned",
		LegacyLink: "link with {token}",
	}, gate.WithLogger(discard), gate.WithLegacy(s.legacy))
	s.Require().NoError(err)

	entries := auditmemory.NewInMemoryStore()
	s.audit, err = audit.NewWorker(s.store, entries, audit.WithLogger(discard))
	s.Require().NoError(err)

	s.reconciler = &stubReconciler{outcome: reconcile.OutcomeUnchanged}
	s.jwt = jwttoken.NewJWTService("test-key", "argus", "argus-admin")
	s.routerCfg = RouterConfig{
		Logger:    discard,
		Validator: s.jwt,
		Metrics:   http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
		Health:    func(context.Context) error { return s.healthErr },
	}
	s.handlers = Handlers{
		Whitelist: NewWhitelistHandler(svc, s.cache, discard),
		Gate:      NewGateHandler(g, discard),
		Reconcile: NewReconcileHandler(s.reconciler, discard),
		Audit:     NewAuditHandler(entries, discard),
	}
	s.handler = NewRouter(s.routerCfg, s.handlers)
}

func (s *RouterSuite) token(actor domain.PlayerID, role string) string {
	tok, err := s.jwt.GenerateAccessToken(actor, role, time.Hour)
	s.Require().NoError(err)
	return tok
}

func (s *RouterSuite) do(method, path, token string, body any) *httptest.ResponseRecorder {
	req := testutil.WithBearer(testutil.NewJSONRequest(s.T(), method, path, body), token)
	return testutil.DoRequest(s.handler, req)
}

func decode[T any](s *RouterSuite, w *httptest.ResponseRecorder) T {
	return *testutil.UnmarshalResponse[T](s.T(), w)
}

func (s *RouterSuite) apply() applicationResponse {
	w := s.do(http.MethodPost, "/v1/applications", s.token(bot, authmw.RoleBot), applyRequest{
		Player:       player.String(),
		GameAccount:  account,
		GameUsername: "steve",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	return decode[applicationResponse](s, w)
}

func (s *RouterSuite) TestHealthAndMetricsArePublic() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/metrics", "", nil).Code)

	s.healthErr = errors.New("store down")
	s.Equal(http.StatusServiceUnavailable, s.do(http.MethodGet, "/healthz", "", nil).Code)
}

func (s *RouterSuite) TestAuthAndRoles() {
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/v1/audit", "", nil).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodGet, "/v1/audit", "garbage", nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodGet, "/v1/audit", s.token(bot, authmw.RoleBot), nil).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/v1/gate/decide", s.token(bot, authmw.RoleBot), gateRequest{Player: "1"}).Code)
	s.Equal(http.StatusForbidden, s.do(http.MethodPost, "/v1/applications", s.token(sidecar, authmw.RolePlugin), applyRequest{}).Code)
}

func (s *RouterSuite) TestApplyApproveThenGateAllows() {
	app := s.apply()
	s.Equal(string(application.StatusPending), app.Status)

	w := s.do(http.MethodPost, "/v1/gate/decide", s.token(sidecar, authmw.RolePlugin), gateRequest{GameAccount: account})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(string(gate.KindDeny), decode[decisionResponse](s, w).Kind)

	w = s.do(http.MethodPost, "/v1/applications/"+app.ID+"/approve", s.token(moderator, authmw.RoleModerator), decisionRequest{Notes: "welcome"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	approved := decode[applicationResponse](s, w)
	s.Equal(string(application.StatusApproved), approved.Status)
	s.Equal(moderator.String(), approved.LastActor)
	s.NotNil(approved.DecidedAt)

	w = s.do(http.MethodPost, "/v1/gate/decide", s.token(sidecar, authmw.RolePlugin), gateRequest{GameAccount: account})
	d := decode[decisionResponse](s, w)
	s.Equal(string(gate.KindAllow), d.Kind)
	s.Equal(string(gate.ReasonWhitelisted), d.Reason)

	w = s.do(http.MethodGet, "/v1/members/"+player.String(), s.token(bot, authmw.RoleBot), nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(membership.StatusWhitelisted.String(), decode[memberResponse](s, w).Status)

	w = s.do(http.MethodPost, "/v1/applications/"+app.ID+"/approve", s.token(moderator, authmw.RoleModerator), decisionRequest{})
	s.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (s *RouterSuite) TestBanRequiresReasonAndDenies() {
	app := s.apply()
	mod := s.token(moderator, authmw.RoleModerator)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/v1/applications/"+app.ID+"/approve", mod, decisionRequest{}).Code)

	w := s.do(http.MethodPost, "/v1/members/"+player.String()+"/ban", mod, moderationRequest{})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/v1/members/"+player.String()+"/ban", mod, moderationRequest{Reason: "griefing"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	member := decode[memberResponse](s, w)
	s.Equal(membership.StatusBanned.String(), member.Status)
	s.Equal("griefing", member.Reason)

	w = s.do(http.MethodPost, "/v1/gate/decide", s.token(sidecar, authmw.RolePlugin), gateRequest{Player: player.String()})
	d := decode[decisionResponse](s, w)
	s.Equal(string(gate.KindDeny), d.Kind)
	s.Equal(string(gate.ReasonBanned), d.Reason)
}

func (s *RouterSuite) TestLegacyLinkFlow() {
	s.legacy.Add(domain.GameAccountID(account), "steve")

	w := s.do(http.MethodPost, "/v1/gate/decide", s.token(sidecar, authmw.RolePlugin), gateRequest{GameAccount: account})
	d := decode[decisionResponse](s, w)
	s.Require().Equal(string(gate.KindAllowWithKick), d.Kind)
	s.Require().NotEmpty(d.Token)

	w = s.do(http.MethodPost, "/v1/link", s.token(bot, authmw.RoleBot), linkRequest{Token: d.Token, Player: player.String()})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Equal(string(application.StatusApproved), decode[applicationResponse](s, w).Status)

	w = s.do(http.MethodPost, "/v1/link", s.token(bot, authmw.RoleBot), linkRequest{Token: d.Token, Player: player.String()})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *RouterSuite) TestBadInput() {
	bearer := s.token(moderator, authmw.RoleModerator)
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodPost, "/v1/applications/not-a-uuid/approve", bearer, decisionRequest{}), http.StatusBadRequest, "invalid_input")
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/members/abc/ban", bearer, moderationRequest{Reason: "x"}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/gate/decide", bearer, gateRequest{}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/v1/applications", bearer, map[string]string{"unknown": "field"}).Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/audit?limit=0", bearer, nil).Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/members/123", bearer, nil).Code)
}

func (s *RouterSuite) TestAuditListsProjectedHistory() {
	app := s.apply()
	mod := s.token(moderator, authmw.RoleModerator)
	s.Require().Equal(http.StatusOK, s.do(http.MethodPost, "/v1/applications/"+app.ID+"/approve", mod, decisionRequest{}).Code)
	_, err := s.audit.Step(s.ctx)
	s.Require().NoError(err)

	w := s.do(http.MethodGet, "/v1/audit?subject="+player.String(), mod, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	page := decode[auditResponse](s, w)
	s.NotEmpty(page.Entries)
	for _, e := range page.Entries {
		s.Equal(player, e.Player)
	}
	s.Equal(page.Entries[len(page.Entries)-1].Seq, page.Next)

	w = s.do(http.MethodGet, "/v1/audit?after=1000", mod, nil)
	s.Empty(decode[auditResponse](s, w).Entries)
}

func (s *RouterSuite) TestReconcile() {
	mod := s.token(moderator, authmw.RoleModerator)
	s.reconciler.outcome = reconcile.OutcomeCorrected
	w := s.do(http.MethodPost, "/v1/members/"+player.String()+"/reconcile", mod, nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(string(reconcile.OutcomeCorrected), decode[reconcileResponse](s, w).Outcome)

	s.reconciler.err = dErrors.New(dErrors.CodeProviderUnavailable, "discord unreachable")
	w = s.do(http.MethodPost, "/v1/members/"+player.String()+"/reconcile", mod, nil)
	s.Equal(http.StatusBadGateway, w.Code)
}

func (s *RouterSuite) TestLinkIsRateLimitedPerCaller() {
	cfg := s.routerCfg
	cfg.RateLimit = ratelimit.New(bucket.NewInMemoryBucketStore(),
		ratelimit.WithLimit(ratelimit.ClassLink, ratelimit.Limit{Requests: 1, Window: time.Minute}),
	)
	s.handler = NewRouter(cfg, s.handlers)
	guess := linkRequest{Token: "ABC123", Player: player.String()}

	s.Equal(http.StatusNotFound, s.do(http.MethodPost, "/v1/link", s.token(bot, authmw.RoleBot), guess).Code)
	s.Equal(http.StatusTooManyRequests, s.do(http.MethodPost, "/v1/link", s.token(bot, authmw.RoleBot), guess).Code)
	s.Equal(http.StatusCreated, s.do(http.MethodPost, "/v1/applications", s.token(bot, authmw.RoleBot), applyRequest{
		Player:       player.String(),
		GameAccount:  account,
		GameUsername: "steve",
	}).Code)
}
