package access

import (
	"errors"
	"net/http"

	"rentgate/internal/auth"
	"rentgate/internal/directory"
	"rentgate/internal/subscription"
)

// Reason is the machine-readable code attached to every decision so client
// UIs can tell "log in again" from "your subscription lapsed" from "contact
// support".
type Reason string

const (
	ReasonNoToken              Reason = "NO_TOKEN"
	ReasonInvalidToken         Reason = "INVALID_TOKEN"
	ReasonExpiredToken         Reason = "EXPIRED_TOKEN"
	ReasonUserNotFound         Reason = "USER_NOT_FOUND"
	ReasonAccountInactive      Reason = "ACCOUNT_INACTIVE"
	ReasonRoleBypass           Reason = "ROLE_BYPASS"
	ReasonAllowed              Reason = "ALLOWED"
	ReasonSubscriptionExpired  Reason = "SUBSCRIPTION_EXPIRED"
	ReasonSubscriptionCanceled Reason = "SUBSCRIPTION_CANCELED"
)

// Warnings attached to allow decisions for downstream observability.
const (
	WarningNoOrg               = "NO_ORG"
	WarningSubscriptionUnknown = "SUBSCRIPTION_UNKNOWN"
)

// Decision is the single allow/deny/degrade outcome per request.
type Decision struct {
	Allowed bool
	Reason  Reason
	Warning string
}

// HTTPStatus maps a decision to its response status: 401 for credential and
// identity failures, 403 for subscription gating, 200 pass-through otherwise.
func (d Decision) HTTPStatus() int {
	if d.Allowed {
		return http.StatusOK
	}
	switch d.Reason {
	case ReasonSubscriptionExpired, ReasonSubscriptionCanceled:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// FromTokenError maps a verifier failure to its deny decision.
func FromTokenError(err error) Decision {
	switch {
	case errors.Is(err, auth.ErrNoToken):
		return Decision{Reason: ReasonNoToken}
	case errors.Is(err, auth.ErrExpiredToken):
		return Decision{Reason: ReasonExpiredToken}
	default:
		return Decision{Reason: ReasonInvalidToken}
	}
}

// FromResolveError maps a directory failure to its deny decision. A
// transport error from the user directory is decisive: identity cannot be
// degraded the way subscription data can.
func FromResolveError(err error) Decision {
	if errors.Is(err, directory.ErrAccountInactive) {
		return Decision{Reason: ReasonAccountInactive}
	}
	return Decision{Reason: ReasonUserNotFound}
}

// Decide composes the resolved role, account status and subscription outcome
// into one decision. The precedence order is the contract: inactive accounts
// deny before anything else, elevated roles bypass before any subscription
// state is considered, and unknown subscription data degrades to a warning
// rather than a deny. Callers must short-circuit on Elevated roles without
// even reading the subscription store; Decide stays total so a cached
// outcome cannot change the answer.
func Decide(role directory.Role, status directory.AccountStatus, outcome subscription.Outcome) Decision {
	if status != directory.StatusActive {
		return Decision{Reason: ReasonAccountInactive}
	}
	if role.Elevated() {
		return Decision{Allowed: true, Reason: ReasonRoleBypass}
	}

	switch outcome.Kind {
	case subscription.OutcomeNoOrg:
		return Decision{Allowed: true, Reason: ReasonAllowed, Warning: WarningNoOrg}
	case subscription.OutcomeEntitled:
		return Decision{Allowed: true, Reason: ReasonAllowed}
	case subscription.OutcomeUnknown:
		return Decision{Allowed: true, Reason: ReasonAllowed, Warning: WarningSubscriptionUnknown}
	case subscription.OutcomeExpired:
		return Decision{Reason: ReasonSubscriptionExpired}
	case subscription.OutcomeNotEntitled:
		return Decision{Reason: ReasonSubscriptionCanceled}
	default:
		// Unrecognized outcomes degrade the same way missing data does.
		return Decision{Allowed: true, Reason: ReasonAllowed, Warning: WarningSubscriptionUnknown}
	}
}
