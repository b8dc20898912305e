// Package store is the one piece of genuinely local durable state in
// this service: bookkeeping for execution jobs (one row per
// approval_requested log that perform has accepted), used to make
// perform idempotent across process restarts and to bound how many
// executions run concurrently. It is NOT where plans, tasks, skills,
// or logs live — that is the persistence service's job, per spec.md's
// explicit Non-goal.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations
var migrationsFS embed.FS

// JobStatus is the lifecycle state of a locally-tracked execution job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job is one row of execution_jobs.
type Job struct {
	LogID       string
	Status      JobStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Store wraps a pooled connection to the local durable store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects, runs migrations, and returns a ready Store.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := migrateUp(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func migrateUp(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("build migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Claim inserts a queued job for logID, or reports it already exists —
// the idempotency check of spec.md §4.8's closing note: perform for an
// already-processed log should be rejected upstream.
func (s *Store) Claim(ctx context.Context, logID string) (claimed bool, err error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO execution_jobs (log_id, status) VALUES ($1, $2) ON CONFLICT (log_id) DO NOTHING`,
		logID, JobQueued)
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", logID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkRunning transitions a job to running and increments its attempt
// counter.
func (s *Store) MarkRunning(ctx context.Context, logID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE execution_jobs SET status = $1, attempts = attempts + 1, updated_at = now() WHERE log_id = $2`,
		JobRunning, logID)
	if err != nil {
		return fmt.Errorf("mark job %s running: %w", logID, err)
	}
	return nil
}

// Finish records a job's terminal outcome.
func (s *Store) Finish(ctx context.Context, logID string, status JobStatus, lastErr error) error {
	var errText string
	if lastErr != nil {
		errText = lastErr.Error()
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE execution_jobs SET status = $1, last_error = $2, updated_at = now(), completed_at = now() WHERE log_id = $3`,
		status, errText, logID)
	if err != nil {
		return fmt.Errorf("finish job %s: %w", logID, err)
	}
	return nil
}

// Get fetches a job's current bookkeeping row.
func (s *Store) Get(ctx context.Context, logID string) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT log_id, status, attempts, COALESCE(last_error, ''), created_at, updated_at, completed_at
		 FROM execution_jobs WHERE log_id = $1`, logID)

	var j Job
	if err := row.Scan(&j.LogID, &j.Status, &j.Attempts, &j.LastError, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt); err != nil {
		return nil, fmt.Errorf("get job %s: %w", logID, err)
	}
	return &j, nil
}
