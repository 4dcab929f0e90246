package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"rentgate/internal/subscription"
)

const subscriptionColumns = `id, org_id, plan_id, status, is_lifetime,
	trial_expires_at, current_period_ends_at, expired_at, canceled_at,
	external_id, created_at, updated_at`

// FindByOrganization returns subscription.ErrNotFound when the
// organization has no record. At most one record exists per org.
func (s *Store) FindByOrganization(ctx context.Context, orgID string) (subscription.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE org_id = $1
	`, orgID)
	rec, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subscription.Record{}, subscription.ErrNotFound
		}
		return subscription.Record{}, err
	}
	return rec, nil
}

// MarkExpired performs the lazy expiry transition. The status guard makes it
// idempotent: re-running it on an already expired record updates nothing,
// and concurrent writers all land on the same final state.
func (s *Store) MarkExpired(ctx context.Context, orgID string, expiredAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'expired', expired_at = $2, updated_at = now()
		WHERE org_id = $1 AND status IN ('trialing', 'active', 'past_due')
	`, orgID, expiredAt)
	return err
}

// CreateTrial inserts the trialing record provisioned at organization
// registration. The trial boundary doubles as the first period end.
func (s *Store) CreateTrial(ctx context.Context, orgID, planID string, trialExpiresAt time.Time) (subscription.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, org_id, plan_id, status, trial_expires_at, current_period_ends_at)
		VALUES ($1, $2, $3, 'trialing', $4, $4)
		RETURNING `+subscriptionColumns+`
	`, uuid.NewString(), orgID, nullIfEmpty(planID), trialExpiresAt)
	return scanSubscription(row)
}

// GrantLifetime upserts the record with a permanent entitlement. Idempotent:
// granting twice leaves the same state.
func (s *Store) GrantLifetime(ctx context.Context, orgID string) (subscription.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (id, org_id, status, is_lifetime)
		VALUES ($1, $2, 'active', TRUE)
		ON CONFLICT (org_id) DO UPDATE
		SET status = 'active', is_lifetime = TRUE, expired_at = NULL, updated_at = now()
		RETURNING `+subscriptionColumns+`
	`, uuid.NewString(), orgID)
	return scanSubscription(row)
}

// RevokeLifetime clears a lifetime grant and parks the record inactive.
func (s *Store) RevokeLifetime(ctx context.Context, orgID string) (subscription.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE subscriptions
		SET is_lifetime = FALSE, status = 'inactive', updated_at = now()
		WHERE org_id = $1
		RETURNING `+subscriptionColumns+`
	`, orgID)
	rec, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subscription.Record{}, subscription.ErrNotFound
		}
		return subscription.Record{}, err
	}
	return rec, nil
}

// SetStatus applies an administrative status change with recomputed period
// boundaries. trial_expires_at is only replaced when the transition sets it.
func (s *Store) SetStatus(ctx context.Context, orgID string, status subscription.Status, planID string, periodEnd, trialEnd sql.NullTime) (subscription.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE subscriptions
		SET status = $2,
		    plan_id = COALESCE($3, plan_id),
		    current_period_ends_at = $4,
		    trial_expires_at = COALESCE($5, trial_expires_at),
		    expired_at = CASE WHEN $2 = 'expired' THEN now() ELSE NULL END,
		    canceled_at = CASE WHEN $2 = 'canceled' THEN now() ELSE canceled_at END,
		    updated_at = now()
		WHERE org_id = $1
		RETURNING `+subscriptionColumns+`
	`, orgID, status, nullIfEmpty(planID), periodEnd, trialEnd)
	rec, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return subscription.Record{}, subscription.ErrNotFound
		}
		return subscription.Record{}, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (subscription.Record, error) {
	var rec subscription.Record
	var planID sql.NullString
	err := row.Scan(
		&rec.ID, &rec.OrgID, &planID, &rec.Status, &rec.IsLifetime,
		&rec.TrialExpiresAt, &rec.CurrentPeriodEndsAt, &rec.ExpiredAt, &rec.CanceledAt,
		&rec.ExternalID, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return subscription.Record{}, err
	}
	rec.PlanID = planID.String
	return rec, nil
}
