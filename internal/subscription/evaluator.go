package subscription

import (
	"context"
	"errors"
	"log"
	"time"

	"rentgate/internal/observability"
)

// OutcomeKind is the access tier the evaluator computed for an organization.
type OutcomeKind string

const (
	// OutcomeNoOrg means the account has no organization; the caller skips
	// the subscription gate but flags a warning.
	OutcomeNoOrg OutcomeKind = "no_org"
	// OutcomeEntitled means the organization currently holds access.
	OutcomeEntitled OutcomeKind = "entitled"
	// OutcomeExpired means the subscription ran past its period boundary.
	OutcomeExpired OutcomeKind = "expired"
	// OutcomeNotEntitled means the subscription is canceled or inactive.
	OutcomeNotEntitled OutcomeKind = "not_entitled"
	// OutcomeUnknown means subscription data was missing or unreadable.
	// Downstream policy degrades to allow-with-warning, never a deny.
	OutcomeUnknown OutcomeKind = "unknown"
)

// Outcome carries the computed tier plus the status that produced it.
type Outcome struct {
	Kind   OutcomeKind
	Status Status
}

// Store is the contract the evaluator needs from the subscription store.
type Store interface {
	// FindByOrganization returns ErrNotFound when no record exists.
	FindByOrganization(ctx context.Context, orgID string) (Record, error)
	// MarkExpired transitions an active/trialing/past_due record to expired
	// and stamps expired_at. Re-running it on an already expired record is
	// a no-op.
	MarkExpired(ctx context.Context, orgID string, expiredAt time.Time) error
}

// Evaluator computes an organization's access tier, lazily expiring records
// whose period boundary has passed. The mutation-on-read replaces a
// background scheduler: every authorization check opportunistically performs
// the transition.
type Evaluator struct {
	Store  Store
	Logger *log.Logger
	Now    func() time.Time
}

func NewEvaluator(store Store, logger *log.Logger) *Evaluator {
	if logger == nil {
		logger = log.Default()
	}
	return &Evaluator{
		Store:  store,
		Logger: logger,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate determines the current access tier for orgID. An empty orgID is a
// platform-level account with no organization. Store failures degrade to
// OutcomeUnknown rather than erroring: a billing-store hiccup must not be
// conflated with a lapsed subscription.
func (e *Evaluator) Evaluate(ctx context.Context, orgID string) Outcome {
	if orgID == "" {
		return Outcome{Kind: OutcomeNoOrg}
	}
	if e == nil || e.Store == nil {
		return Outcome{Kind: OutcomeUnknown}
	}

	rec, err := e.Store.FindByOrganization(ctx, orgID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			e.Logger.Printf("subscription read failed org_id=%s err=%v", orgID, err)
		}
		return Outcome{Kind: OutcomeUnknown}
	}

	if rec.IsLifetime {
		return Outcome{Kind: OutcomeEntitled, Status: rec.Status}
	}

	now := e.Now()
	switch rec.Status {
	case StatusTrialing:
		if rec.TrialExpiresAt.Valid && now.After(rec.TrialExpiresAt.Time) {
			return e.lazyExpire(ctx, orgID, now)
		}
		return Outcome{Kind: OutcomeEntitled, Status: rec.Status}
	case StatusActive:
		if rec.CurrentPeriodEndsAt.Valid && now.After(rec.CurrentPeriodEndsAt.Time) {
			return e.lazyExpire(ctx, orgID, now)
		}
		return Outcome{Kind: OutcomeEntitled, Status: rec.Status}
	case StatusPastDue:
		if rec.CurrentPeriodEndsAt.Valid && now.After(rec.CurrentPeriodEndsAt.Time) {
			return e.lazyExpire(ctx, orgID, now)
		}
		// Payment retry window: past_due inside its period keeps access.
		return Outcome{Kind: OutcomeEntitled, Status: rec.Status}
	case StatusExpired:
		return Outcome{Kind: OutcomeExpired, Status: rec.Status}
	case StatusCanceled, StatusInactive:
		return Outcome{Kind: OutcomeNotEntitled, Status: rec.Status}
	default:
		return Outcome{Kind: OutcomeNotEntitled, Status: rec.Status}
	}
}

// lazyExpire persists the expired transition. A failed write is logged and
// the computed outcome stands; concurrent writers all compute the same
// target state, so last-writer-wins is harmless.
func (e *Evaluator) lazyExpire(ctx context.Context, orgID string, now time.Time) Outcome {
	if err := e.Store.MarkExpired(ctx, orgID, now); err != nil {
		e.Logger.Printf("lazy expiry persist failed org_id=%s err=%v", orgID, err)
	} else {
		observability.RecordLazyExpiry()
	}
	return Outcome{Kind: OutcomeExpired, Status: StatusExpired}
}
