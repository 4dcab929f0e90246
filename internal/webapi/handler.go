package webapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"rentgate/internal/audit"
	"rentgate/internal/auth"
	"rentgate/internal/config"
	"rentgate/internal/directory"
	"rentgate/internal/observability"
	"rentgate/internal/store"
	"rentgate/internal/subscription"
)

// RevocationList is the token blacklist contract; backed by Redis in
// production and by fakes in tests.
type RevocationList interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) bool
}

type Handler struct {
	Config      config.Config
	Store       *store.Store
	Verifier    *auth.Verifier
	Resolver    *directory.Resolver
	Evaluator   *subscription.Evaluator
	Admin       *subscription.Manager
	Audit       *audit.Sink
	Observer    *observability.DecisionObserver
	Revocations RevocationList
	Logger      *log.Logger
}

func NewHandler(cfg config.Config, st *store.Store, verifier *auth.Verifier, resolver *directory.Resolver,
	evaluator *subscription.Evaluator, admin *subscription.Manager, sink *audit.Sink,
	observer *observability.DecisionObserver, revocations RevocationList, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		Config:      cfg,
		Store:       st,
		Verifier:    verifier,
		Resolver:    resolver,
		Evaluator:   evaluator,
		Admin:       admin,
		Audit:       sink,
		Observer:    observer,
		Revocations: revocations,
		Logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/orgs", h.handleCreateOrg)
	mux.Handle("/v1/me", h.RequireAccess(http.HandlerFunc(h.handleMe)))
	mux.Handle("/v1/subscriptions/current", h.RequireAccess(http.HandlerFunc(h.handleCurrentSubscription)))
	mux.Handle("/v1/admin/organizations/", h.RequireAccess(http.HandlerFunc(h.handleAdminOrganizations)))
	mux.Handle("/v1/admin/tokens/revoke", h.RequireAccess(http.HandlerFunc(h.handleRevokeToken)))
}

// handleCreateOrg is the registration surface: it provisions the
// organization, its first landlord account, and the 7-day trial
// subscription in one call.
func (h *Handler) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name   string `json:"name"`
		Email  string `json:"email"`
		PlanID string `json:"plan_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		http.Error(w, "missing name or email", http.StatusBadRequest)
		return
	}

	orgID, err := h.Store.CreateOrg(r.Context(), req.Name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	user, err := h.Store.CreateUser(r.Context(), req.Email, directory.RoleLandlord, directory.StatusActive, orgID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	rec, err := h.Admin.StartTrial(r.Context(), orgID, req.PlanID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"org_id":       orgID,
		"user_id":      user.ID,
		"subscription": subscriptionSummary(rec),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "no identity", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": identity.User.ID,
		"email":   identity.User.Email,
		"role":    identity.User.Role,
		"org_id":  identity.User.OrgID,
	})
}

func (h *Handler) handleCurrentSubscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "no identity", http.StatusUnauthorized)
		return
	}
	orgID := identity.User.OrgID
	if qp := strings.TrimSpace(r.URL.Query().Get("org_id")); qp != "" && identity.User.Role.Elevated() {
		orgID = qp
	}
	if orgID == "" {
		http.Error(w, "no organization", http.StatusNotFound)
		return
	}

	rec, err := h.Store.FindByOrganization(r.Context(), orgID)
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			http.Error(w, "subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionSummary(rec))
}

// setStatusSchema guards the admin status transition payload.
var setStatusSchema = jsonschema.MustCompileString("set_status.json", `{
	"type": "object",
	"required": ["status", "billing_cycle"],
	"properties": {
		"status": {"enum": ["trialing", "active", "inactive", "canceled", "past_due", "expired"]},
		"billing_cycle": {"enum": ["daily", "weekly", "monthly", "yearly"]},
		"plan_id": {"type": "string"}
	}
}`)

// handleAdminOrganizations routes /v1/admin/organizations/{id}/{action} for
// elevated callers.
func (h *Handler) handleAdminOrganizations(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || !identity.User.Role.Elevated() {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"reason":  "FORBIDDEN",
			"message": "platform operator role required",
		})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/admin/organizations/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	orgID, action := parts[0], parts[1]

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	switch action {
	case "grant-lifetime":
		h.adminTransition(w, r, identity, orgID, "lifetime_granted", func(ctx context.Context) (subscription.Record, error) {
			return h.Admin.GrantLifetime(ctx, orgID)
		})
	case "revoke-lifetime":
		h.adminTransition(w, r, identity, orgID, "lifetime_revoked", func(ctx context.Context) (subscription.Record, error) {
			return h.Admin.RevokeLifetime(ctx, orgID)
		})
	case "status":
		h.adminSetStatus(w, r, identity, orgID)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) adminSetStatus(w http.ResponseWriter, r *http.Request, identity auth.Identity, orgID string) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := setStatusSchema.Validate(payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	status := subscription.ParseStatus(stringField(payload, "status"))
	cadence := subscription.ParseCadence(stringField(payload, "billing_cycle"))
	planID := stringField(payload, "plan_id")

	h.adminTransition(w, r, identity, orgID, "status_"+string(status), func(ctx context.Context) (subscription.Record, error) {
		return h.Admin.SetStatus(ctx, orgID, status, cadence, planID)
	})
}

func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request, identity auth.Identity, orgID, action string,
	apply func(ctx context.Context) (subscription.Record, error)) {
	rec, err := apply(r.Context())
	if err != nil {
		if errors.Is(err, subscription.ErrNotFound) {
			http.Error(w, "subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.Audit.Emit(r.Context(), audit.Event{
		Actor:      identity.User.ID,
		OrgID:      orgID,
		Allowed:    true,
		Reason:     action,
		Path:       r.URL.Path,
		OccurredAt: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, subscriptionSummary(rec))
}

// handleRevokeToken blacklists a still-valid token for the remainder of its
// lifetime.
func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || !identity.User.Role.Elevated() {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"reason":  "FORBIDDEN",
			"message": "platform operator role required",
		})
		return
	}
	if h.Revocations == nil {
		http.Error(w, "revocation list not configured", http.StatusInternalServerError)
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	claims, err := h.Verifier.Verify(req.Token)
	if err != nil {
		http.Error(w, "token is not valid", http.StatusBadRequest)
		return
	}
	if claims.TokenID == "" {
		http.Error(w, "token has no id", http.StatusBadRequest)
		return
	}

	ttl := time.Until(claims.ExpiresAt)
	if err := h.Revocations.RevokeToken(r.Context(), claims.TokenID, ttl); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	h.Audit.Emit(r.Context(), audit.Event{
		Actor:      identity.User.ID,
		OrgID:      identity.User.OrgID,
		Allowed:    true,
		Reason:     "token_revoked",
		Path:       r.URL.Path,
		OccurredAt: time.Now().UTC(),
	})
	writeJSON(w, http.StatusOK, map[string]any{"revoked": claims.TokenID})
}

func subscriptionSummary(rec subscription.Record) map[string]any {
	summary := map[string]any{
		"org_id":      rec.OrgID,
		"status":      rec.Status,
		"is_lifetime": rec.IsLifetime,
	}
	if rec.PlanID != "" {
		summary["plan_id"] = rec.PlanID
	}
	if rec.TrialExpiresAt.Valid {
		summary["trial_expires_at"] = rec.TrialExpiresAt.Time
	}
	if rec.CurrentPeriodEndsAt.Valid {
		summary["current_period_ends_at"] = rec.CurrentPeriodEndsAt.Time
	}
	if rec.ExpiredAt.Valid {
		summary["expired_at"] = rec.ExpiredAt.Time
	}
	return summary
}

func stringField(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
