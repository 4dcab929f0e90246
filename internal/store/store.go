package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sethvargo/go-retry"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WaitReady pings the database with backoff until it answers or the budget
// runs out. Startup-only; the request path never retries.
func (s *Store) WaitReady(ctx context.Context, maxWait time.Duration) error {
	backoff := retry.NewFibonacci(250 * time.Millisecond)
	backoff = retry.WithMaxDuration(maxWait, backoff)
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := s.db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
