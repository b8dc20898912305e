package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePerformer struct {
	calls int32
	block chan struct{}
}

func (f *fakePerformer) Perform(ctx context.Context, logID string) error {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	return nil
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	perf := &fakePerformer{block: make(chan struct{})}
	pool := &WorkerPool{engine: perf, sem: make(chan struct{}, 2), store: nil, logger: slog.Default()}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.sem <- struct{}{}
			defer func() { <-pool.sem }()
			_ = perf.Perform(context.Background(), "x")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.LessOrEqual(t, len(pool.sem), 2)
	close(perf.block)
	wg.Wait()
}
