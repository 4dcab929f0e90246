package webapi

import (
	"net/http"
	"time"

	"rentgate/internal/access"
	"rentgate/internal/audit"
	"rentgate/internal/auth"
	"rentgate/internal/subscription"
)

// accessWarningHeader surfaces degrade warnings to downstream handlers and
// clients without blocking the request.
const accessWarningHeader = "X-Access-Warning"

// RequireAccess is the authorization gate every protected route passes
// through: verify token, re-read the live user record, evaluate the
// organization's subscription, decide. Elevated roles never trigger a
// subscription read.
func (h *Handler) RequireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.Verifier.VerifyHeader(r.Header.Get("Authorization"))
		if err != nil {
			h.deny(w, r, access.FromTokenError(err), claims.UserID, "")
			return
		}
		if h.Revocations != nil && claims.TokenID != "" && h.Revocations.IsTokenRevoked(r.Context(), claims.TokenID) {
			h.deny(w, r, access.Decision{Reason: access.ReasonInvalidToken}, claims.UserID, claims.OrgID)
			return
		}

		user, err := h.Resolver.Resolve(r.Context(), claims.UserID)
		if err != nil {
			h.deny(w, r, access.FromResolveError(err), claims.UserID, claims.OrgID)
			return
		}

		// The live record's org wins over whatever the token embedded.
		var outcome subscription.Outcome
		if !user.Role.Elevated() {
			outcome = h.Evaluator.Evaluate(r.Context(), user.OrgID)
		}

		decision := access.Decide(user.Role, user.Status, outcome)
		if !decision.Allowed {
			h.deny(w, r, decision, user.ID, user.OrgID)
			return
		}

		h.Observer.RecordAllow(user.ID, user.OrgID, string(decision.Reason), decision.Warning)
		h.Audit.Emit(r.Context(), audit.Event{
			Actor:      user.ID,
			OrgID:      user.OrgID,
			Allowed:    true,
			Reason:     string(decision.Reason),
			Warning:    decision.Warning,
			Path:       r.URL.Path,
			OccurredAt: time.Now().UTC(),
		})

		if decision.Warning != "" {
			w.Header().Set(accessWarningHeader, decision.Warning)
		}
		ctx := auth.WithIdentity(r.Context(), auth.Identity{Claims: claims, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) deny(w http.ResponseWriter, r *http.Request, decision access.Decision, actor, orgID string) {
	if actor == "" {
		actor = "anonymous"
	}
	h.Observer.RecordDeny(actor, orgID, string(decision.Reason))
	h.Audit.Emit(r.Context(), audit.Event{
		Actor:      actor,
		OrgID:      orgID,
		Allowed:    false,
		Reason:     string(decision.Reason),
		Path:       r.URL.Path,
		OccurredAt: time.Now().UTC(),
	})
	writeJSON(w, decision.HTTPStatus(), map[string]any{
		"reason":  decision.Reason,
		"message": denyMessage(decision.Reason),
	})
}

func denyMessage(reason access.Reason) string {
	switch reason {
	case access.ReasonNoToken:
		return "authorization token required"
	case access.ReasonInvalidToken:
		return "token is not valid"
	case access.ReasonExpiredToken:
		return "token expired, log in again"
	case access.ReasonUserNotFound:
		return "account no longer exists"
	case access.ReasonAccountInactive:
		return "account is not active, contact support"
	case access.ReasonSubscriptionExpired:
		return "subscription expired, renew to continue"
	case access.ReasonSubscriptionCanceled:
		return "subscription is not active"
	default:
		return "access denied"
	}
}
