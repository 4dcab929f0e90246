package webapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"rentgate/internal/audit"
	"rentgate/internal/auth"
	"rentgate/internal/config"
	"rentgate/internal/directory"
	"rentgate/internal/observability"
	"rentgate/internal/subscription"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeLookup struct {
	users map[string]directory.User
	err   error
}

func (f *fakeLookup) FindUserByID(ctx context.Context, id string) (directory.User, error) {
	if f.err != nil {
		return directory.User{}, f.err
	}
	user, ok := f.users[id]
	if !ok {
		return directory.User{}, directory.ErrUserNotFound
	}
	return user, nil
}

type fakeSubStore struct {
	records map[string]subscription.Record
	findErr error
	finds   int
	marks   int
}

func (f *fakeSubStore) FindByOrganization(ctx context.Context, orgID string) (subscription.Record, error) {
	f.finds++
	if f.findErr != nil {
		return subscription.Record{}, f.findErr
	}
	rec, ok := f.records[orgID]
	if !ok {
		return subscription.Record{}, subscription.ErrNotFound
	}
	return rec, nil
}

func (f *fakeSubStore) MarkExpired(ctx context.Context, orgID string, expiredAt time.Time) error {
	f.marks++
	rec := f.records[orgID]
	rec.Status = subscription.StatusExpired
	rec.ExpiredAt = sql.NullTime{Time: expiredAt, Valid: true}
	f.records[orgID] = rec
	return nil
}

func (f *fakeSubStore) GrantLifetime(ctx context.Context, orgID string) (subscription.Record, error) {
	rec := f.records[orgID]
	rec.OrgID = orgID
	rec.Status = subscription.StatusActive
	rec.IsLifetime = true
	f.records[orgID] = rec
	return rec, nil
}

func (f *fakeSubStore) RevokeLifetime(ctx context.Context, orgID string) (subscription.Record, error) {
	rec, ok := f.records[orgID]
	if !ok {
		return subscription.Record{}, subscription.ErrNotFound
	}
	rec.Status = subscription.StatusInactive
	rec.IsLifetime = false
	f.records[orgID] = rec
	return rec, nil
}

func (f *fakeSubStore) SetStatus(ctx context.Context, orgID string, status subscription.Status, planID string, periodEnd, trialEnd sql.NullTime) (subscription.Record, error) {
	rec := f.records[orgID]
	rec.OrgID = orgID
	rec.Status = status
	if planID != "" {
		rec.PlanID = planID
	}
	rec.CurrentPeriodEndsAt = periodEnd
	if trialEnd.Valid {
		rec.TrialExpiresAt = trialEnd
	}
	f.records[orgID] = rec
	return rec, nil
}

func (f *fakeSubStore) CreateTrial(ctx context.Context, orgID, planID string, trialExpiresAt time.Time) (subscription.Record, error) {
	rec := subscription.Record{
		OrgID:          orgID,
		PlanID:         planID,
		Status:         subscription.StatusTrialing,
		TrialExpiresAt: sql.NullTime{Time: trialExpiresAt, Valid: true},
	}
	f.records[orgID] = rec
	return rec, nil
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeRecorder) Record(ctx context.Context, event audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeRevocations struct {
	revoked map[string]bool
}

func (f *fakeRevocations) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if f.revoked == nil {
		f.revoked = make(map[string]bool)
	}
	f.revoked[tokenID] = true
	return nil
}

func (f *fakeRevocations) IsTokenRevoked(ctx context.Context, tokenID string) bool {
	return f.revoked[tokenID]
}

type testEnv struct {
	handler     *Handler
	lookup      *fakeLookup
	subs        *fakeSubStore
	recorder    *fakeRecorder
	revocations *fakeRevocations
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.Default()
	cfg.Security.TokenSigningKey = "webapi-test-key"
	cfg.Auth.Issuer = "rentgate"

	logger := log.New(io.Discard, "", 0)

	verifier := auth.NewVerifier(cfg)
	verifier.Now = func() time.Time { return testNow }

	lookup := &fakeLookup{users: make(map[string]directory.User)}
	subs := &fakeSubStore{records: make(map[string]subscription.Record)}
	recorder := &fakeRecorder{}
	revocations := &fakeRevocations{}

	evaluator := subscription.NewEvaluator(subs, logger)
	evaluator.Now = func() time.Time { return testNow }
	admin := subscription.NewManager(subs, 7)
	admin.Now = func() time.Time { return testNow }

	handler := NewHandler(cfg, nil,
		verifier,
		directory.NewResolver(lookup, nil),
		evaluator,
		admin,
		audit.NewSink(recorder, logger),
		observability.NewDecisionObserver(logger),
		revocations,
		logger)

	return &testEnv{
		handler:     handler,
		lookup:      lookup,
		subs:        subs,
		recorder:    recorder,
		revocations: revocations,
	}
}

func (e *testEnv) addUser(t *testing.T, id string, role directory.Role, status directory.AccountStatus, orgID string) {
	t.Helper()
	e.lookup.users[id] = directory.User{ID: id, Email: id + "@example.com", Role: role, Status: status, OrgID: orgID}
}

func (e *testEnv) token(t *testing.T, userID string, role directory.Role, orgID string) string {
	t.Helper()
	token, err := e.handler.Verifier.Issue(userID, role, orgID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (e *testEnv) gatedRequest(t *testing.T, token string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	reached := false
	gate := e.handler.RequireAccess(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, req)
	return rec, reached
}

func denyReason(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode deny body: %v", err)
	}
	if body.Message == "" {
		t.Fatalf("deny body missing message: %s", rec.Body.String())
	}
	return body.Reason
}

func TestRequireAccessEntitled(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleLandlord, directory.StatusActive, "org-1")
	env.subs.records["org-1"] = subscription.Record{
		OrgID:               "org-1",
		Status:              subscription.StatusActive,
		CurrentPeriodEndsAt: sql.NullTime{Time: testNow.Add(24 * time.Hour), Valid: true},
	}

	rec, reached := env.gatedRequest(t, env.token(t, "user-1", directory.RoleLandlord, "org-1"))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, code=%d reached=%v", rec.Code, reached)
	}
	if rec.Header().Get(accessWarningHeader) != "" {
		t.Fatalf("clean allow must not carry a warning header")
	}
	if env.recorder.count() != 1 {
		t.Fatalf("expected one audit event, got %d", env.recorder.count())
	}
}

func TestRequireAccessNoToken(t *testing.T) {
	env := newTestEnv(t)
	rec, reached := env.gatedRequest(t, "")
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d reached=%v", rec.Code, reached)
	}
	if reason := denyReason(t, rec); reason != "NO_TOKEN" {
		t.Fatalf("reason %q", reason)
	}
}

func TestRequireAccessExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleLandlord, directory.StatusActive, "org-1")

	env.handler.Verifier.Now = func() time.Time { return testNow.Add(-2 * time.Hour) }
	token := env.token(t, "user-1", directory.RoleLandlord, "org-1")
	env.handler.Verifier.Now = func() time.Time { return testNow }

	rec, reached := env.gatedRequest(t, token)
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d reached=%v", rec.Code, reached)
	}
	if reason := denyReason(t, rec); reason != "EXPIRED_TOKEN" {
		t.Fatalf("reason %q", reason)
	}
}

func TestRequireAccessRevokedToken(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleLandlord, directory.StatusActive, "org-1")
	token := env.token(t, "user-1", directory.RoleLandlord, "org-1")

	claims, err := env.handler.Verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	_ = env.revocations.RevokeToken(context.Background(), claims.TokenID, time.Hour)

	rec, reached := env.gatedRequest(t, token)
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d reached=%v", rec.Code, reached)
	}
	if reason := denyReason(t, rec); reason != "INVALID_TOKEN" {
		t.Fatalf("reason %q", reason)
	}
}

func TestRequireAccessDeletedUser(t *testing.T) {
	env := newTestEnv(t)
	rec, reached := env.gatedRequest(t, env.token(t, "ghost", directory.RoleLandlord, "org-1"))
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("code=%d reached=%v", rec.Code, reached)
	}
	if reason := denyReason(t, rec); reason != "USER_NOT_FOUND" {
		t.Fatalf("reason %q", reason)
	}
}

func TestRequireAccessSuspendedUser(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleLandlord, directory.StatusSuspended, "org-1")
	env.subs.records["org-1"] = subscription.Record{OrgID: "org-1", Status: subscription.StatusActive, IsLifetime: true}

	rec, reached := env.gatedRequest(t, env.token(t, "user-1", directory.RoleLandlord, "org-1"))
	if reached || rec.Code != http.StatusUnauthorized {
		t.Fatalf("suspension must deny even with a healthy subscription, code=%d", rec.Code)
	}
	if reason := denyReason(t, rec); reason != "ACCOUNT_INACTIVE" {
		t.Fatalf("reason %q", reason)
	}
}

func TestRequireAccessExpiredSubscription(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleLandlord, directory.StatusActive, "org-1")
	env.subs.records["org-1"] = subscription.Record{
		OrgID:          "org-1",
		Status:         subscription.StatusTrialing,
		TrialExpiresAt: sql.NullTime{Time: testNow.Add(-24 * time.Hour), Valid: true},
	}

	rec, reached := env.gatedRequest(t, env.token(t, "user-1", directory.RoleLandlord, "org-1"))
	if reached || rec.Code != http.StatusForbidden {
		t.Fatalf("expired subscription must yield 403, got %d", rec.Code)
	}
	if reason := denyReason(t, rec); reason != "SUBSCRIPTION_EXPIRED" {
		t.Fatalf("reason %q", reason)
	}
	if env.subs.marks != 1 {
		t.Fatalf("evaluation must have persisted the expiry, marks=%d", env.subs.marks)
	}
}

func TestRequireAccessSuperAdminBypassesSubscription(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "admin-1", directory.RoleSuperAdmin, directory.StatusActive, "org-1")
	env.subs.records["org-1"] = subscription.Record{OrgID: "org-1", Status: subscription.StatusCanceled}

	rec, reached := env.gatedRequest(t, env.token(t, "admin-1", directory.RoleSuperAdmin, "org-1"))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("superadmin must bypass, code=%d reached=%v", rec.Code, reached)
	}
	if env.subs.finds != 0 {
		t.Fatalf("elevated roles must never trigger a subscription read, finds=%d", env.subs.finds)
	}
}

func TestRequireAccessDegradesOnSubscriptionFailure(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleLandlord, directory.StatusActive, "org-1")
	env.subs.findErr = errors.New("billing store down")

	rec, reached := env.gatedRequest(t, env.token(t, "user-1", directory.RoleLandlord, "org-1"))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("missing subscription data must degrade, code=%d reached=%v", rec.Code, reached)
	}
	if got := rec.Header().Get(accessWarningHeader); got != "SUBSCRIPTION_UNKNOWN" {
		t.Fatalf("warning header %q", got)
	}
}

func TestRequireAccessNoOrgPassesWithWarning(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "user-1", directory.RoleTenant, directory.StatusActive, "")

	rec, reached := env.gatedRequest(t, env.token(t, "user-1", directory.RoleTenant, ""))
	if !reached || rec.Code != http.StatusOK {
		t.Fatalf("org-less user must pass, code=%d", rec.Code)
	}
	if got := rec.Header().Get(accessWarningHeader); got != "NO_ORG" {
		t.Fatalf("warning header %q", got)
	}
	if env.subs.finds != 0 {
		t.Fatalf("no org means no subscription read, finds=%d", env.subs.finds)
	}
}
