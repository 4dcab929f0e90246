package subscription

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AdminStore is the contract the administrative transition surface needs.
type AdminStore interface {
	Store
	// GrantLifetime upserts the organization's record with status active and
	// is_lifetime true. Idempotent.
	GrantLifetime(ctx context.Context, orgID string) (Record, error)
	// RevokeLifetime clears the lifetime flag and sets status inactive.
	RevokeLifetime(ctx context.Context, orgID string) (Record, error)
	// SetStatus replaces the record's status, plan and period boundaries.
	SetStatus(ctx context.Context, orgID string, status Status, planID string, periodEnd, trialEnd sql.NullTime) (Record, error)
	// CreateTrial inserts a fresh trialing record for a new organization.
	CreateTrial(ctx context.Context, orgID, planID string, trialExpiresAt time.Time) (Record, error)
}

// Manager exposes the administrative subscription transitions consumed by
// the admin endpoints. All mutations flow through the same store the
// evaluator reads.
type Manager struct {
	Store     AdminStore
	TrialDays int
	Now       func() time.Time
}

func NewManager(store AdminStore, trialDays int) *Manager {
	if trialDays <= 0 {
		trialDays = 7
	}
	return &Manager{
		Store:     store,
		TrialDays: trialDays,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartTrial provisions the trialing subscription created at organization
// registration.
func (m *Manager) StartTrial(ctx context.Context, orgID, planID string) (Record, error) {
	if orgID == "" {
		return Record{}, errors.New("missing org id")
	}
	expires := m.Now().AddDate(0, 0, m.TrialDays)
	return m.Store.CreateTrial(ctx, orgID, planID, expires)
}

// GrantLifetime makes the organization permanently entitled until explicitly
// revoked; the evaluator skips every date check for lifetime records.
func (m *Manager) GrantLifetime(ctx context.Context, orgID string) (Record, error) {
	if orgID == "" {
		return Record{}, errors.New("missing org id")
	}
	return m.Store.GrantLifetime(ctx, orgID)
}

// RevokeLifetime removes a lifetime grant and parks the record inactive.
func (m *Manager) RevokeLifetime(ctx context.Context, orgID string) (Record, error) {
	if orgID == "" {
		return Record{}, errors.New("missing org id")
	}
	return m.Store.RevokeLifetime(ctx, orgID)
}

// SetStatus applies a manual status change with a plan cadence. The new
// period boundary is computed from now using the cadence; a trialing status
// also resets trial_expires_at to the same boundary.
func (m *Manager) SetStatus(ctx context.Context, orgID string, status Status, cadence Cadence, planID string) (Record, error) {
	if orgID == "" {
		return Record{}, errors.New("missing org id")
	}
	if !status.Valid() {
		return Record{}, fmt.Errorf("invalid status %q", status)
	}
	if !cadence.Valid() {
		return Record{}, fmt.Errorf("invalid billing cadence %q", cadence)
	}

	boundary := cadence.NextBoundary(m.Now())
	periodEnd := sql.NullTime{Time: boundary, Valid: true}
	var trialEnd sql.NullTime
	if status == StatusTrialing {
		trialEnd = periodEnd
	}
	return m.Store.SetStatus(ctx, orgID, status, planID, periodEnd, trialEnd)
}
