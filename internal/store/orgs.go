package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"rentgate/internal/audit"
)

// CreateOrg inserts an organization and returns its id.
func (s *Store) CreateOrg(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("missing organization name")
	}
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `INSERT INTO organizations (id, name) VALUES ($1, $2)`, id, name)
	if err != nil {
		return "", err
	}
	return id, nil
}

// OrgExists reports whether an organization id is known.
func (s *Store) OrgExists(ctx context.Context, id string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM organizations WHERE id = $1)`, id)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Record implements audit.Recorder against the audit_events table.
func (s *Store) Record(ctx context.Context, event audit.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor, org_id, allowed, reason, warning, path, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.NewString(), event.Actor, nullIfEmpty(event.OrgID), event.Allowed,
		event.Reason, nullIfEmpty(event.Warning), event.Path, event.OccurredAt)
	return err
}
