package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"rentgate/internal/directory"
)

// FindUserByID returns directory.ErrUserNotFound when no record exists, so
// unexpired tokens for deleted accounts resolve to a decisive deny.
func (s *Store) FindUserByID(ctx context.Context, id string) (directory.User, error) {
	var user directory.User
	var orgID sql.NullString
	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, role, status, org_id
		FROM users
		WHERE id = $1
	`, id)
	if err := row.Scan(&user.ID, &user.Email, &user.Role, &user.Status, &orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return directory.User{}, directory.ErrUserNotFound
		}
		return directory.User{}, err
	}
	user.OrgID = orgID.String
	return user, nil
}

// CreateUser inserts a directory record. Email is stored lowercased.
func (s *Store) CreateUser(ctx context.Context, email string, role directory.Role, status directory.AccountStatus, orgID string) (directory.User, error) {
	user := directory.User{
		ID:     uuid.NewString(),
		Email:  strings.ToLower(strings.TrimSpace(email)),
		Role:   role,
		Status: status,
		OrgID:  orgID,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, role, status, org_id)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, user.Email, user.Role, user.Status, nullIfEmpty(orgID))
	if err != nil {
		return directory.User{}, err
	}
	return user, nil
}

// UpdateUserStatus flips an account between active/suspended/pending.
func (s *Store) UpdateUserStatus(ctx context.Context, id string, status directory.AccountStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = $2, updated_at = now() WHERE id = $1
	`, id, status)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return directory.ErrUserNotFound
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
