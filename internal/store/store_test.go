package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newTestStore(t *testing.T) *Store {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Open(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	return s
}

func TestStore_ClaimIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	claimed, err := s.Claim(ctx, "log-1")
	require.NoError(t, err)
	require.True(t, claimed)

	claimed, err = s.Claim(ctx, "log-1")
	require.NoError(t, err)
	require.False(t, claimed, "a second claim for the same log must be rejected")
}

func TestStore_RunningThenFinishRecordsOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Claim(ctx, "log-2")
	require.NoError(t, err)

	require.NoError(t, s.MarkRunning(ctx, "log-2"))

	job, err := s.Get(ctx, "log-2")
	require.NoError(t, err)
	require.Equal(t, JobRunning, job.Status)
	require.Equal(t, 1, job.Attempts)

	require.NoError(t, s.Finish(ctx, "log-2", JobFailed, errors.New("tool timed out")))

	job, err = s.Get(ctx, "log-2")
	require.NoError(t, err)
	require.Equal(t, JobFailed, job.Status)
	require.Equal(t, "tool timed out", job.LastError)
	require.NotNil(t, job.CompletedAt)
}
