package store

import (
	"context"
	"log/slog"
)

// Performer runs the approval & execution engine's perform flow for a
// single log-id. Satisfied by *engine.Engine.
type Performer interface {
	Perform(ctx context.Context, logID string) error
}

// WorkerPool bounds how many perform(log_id) calls run concurrently,
// per spec.md §5's MaxConcurrentExecutions, grounded on the teacher's
// worker-pool sizing in pkg/queue but simplified: HTTP is the single
// producer (via /api/perform), this pool is the single, bounded
// consumer.
type WorkerPool struct {
	store  *Store
	engine Performer
	sem    chan struct{}
	logger *slog.Logger
}

// NewWorkerPool builds a WorkerPool with the given concurrency bound.
func NewWorkerPool(s *Store, e Performer, maxConcurrent int) *WorkerPool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &WorkerPool{
		store:  s,
		engine: e,
		sem:    make(chan struct{}, maxConcurrent),
		logger: slog.Default().With("component", "store.workerpool"),
	}
}

// Submit claims logID (idempotent) and, if newly claimed, runs perform
// in a background goroutine bounded by the pool's concurrency limit.
// It returns immediately so the HTTP handler is never blocked on
// execution, per spec.md §4.8's async-friendly design.
func (p *WorkerPool) Submit(ctx context.Context, logID string) error {
	claimed, err := p.store.Claim(ctx, logID)
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Info("log already claimed, skipping duplicate perform", "log_id", logID)
		return nil
	}

	go p.run(logID)
	return nil
}

func (p *WorkerPool) run(logID string) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	ctx := context.Background()
	if err := p.store.MarkRunning(ctx, logID); err != nil {
		p.logger.Error("failed to mark job running", "log_id", logID, "error", err)
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("perform panicked, recovered", "log_id", logID, "panic", r)
			_ = p.store.Finish(ctx, logID, JobFailed, errPanic)
		}
	}()

	err := p.engine.Perform(ctx, logID)
	status := JobSucceeded
	if err != nil {
		status = JobFailed
		p.logger.Error("perform failed", "log_id", logID, "error", err)
	}
	if finishErr := p.store.Finish(ctx, logID, status, err); finishErr != nil {
		p.logger.Error("failed to record job completion", "log_id", logID, "error", finishErr)
	}
}

var errPanic = panicError{}

type panicError struct{}

func (panicError) Error() string { return "perform panicked" }
