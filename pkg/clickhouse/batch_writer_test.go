package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optionsflow/pkg/logger"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	err     error
}

func (r *recorder) flush(ctx context.Context, batch []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func newWriter(rec *recorder, size int, age time.Duration) *BatchWriter[string] {
	return NewBatchWriter(BatchWriterConfig[string]{
		FlushFunc:    rec.flush,
		TableName:    "options_flow_events",
		MaxBatchSize: size,
		MaxAge:       age,
		Logger:       logger.NewNop(),
	})
}

func TestBatchWriter_FlushOnMaxSize(t *testing.T) {
	rec := &recorder{}
	bw := newWriter(rec, 3, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, bw.Add(ctx, "AAPL-1", "AAPL-2"))
	assert.Equal(t, 2, bw.BufferSize())
	require.NoError(t, bw.Add(ctx, "SPY-1"))

	rec.mu.Lock()
	require.Len(t, rec.batches, 1)
	assert.Equal(t, []string{"AAPL-1", "AAPL-2", "SPY-1"}, rec.batches[0])
	rec.mu.Unlock()

	assert.Zero(t, bw.BufferSize())
}

func TestBatchWriter_FlushOnTimer(t *testing.T) {
	rec := &recorder{}
	bw := newWriter(rec, 100, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bw.Start(ctx)

	require.NoError(t, bw.Add(ctx, "a", "b"))

	assert.Eventually(t, func() bool { return rec.total() == 2 }, time.Second, 10*time.Millisecond)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, bw.Stop(stopCtx))
}

func TestBatchWriter_StopFlushesRemainder(t *testing.T) {
	rec := &recorder{}
	bw := newWriter(rec, 100, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bw.Start(ctx)

	require.NoError(t, bw.Add(ctx, "a", "b", "c"))

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, bw.Stop(stopCtx))

	assert.Equal(t, 3, rec.total())
}

func TestBatchWriter_StopWithoutStart(t *testing.T) {
	rec := &recorder{}
	bw := newWriter(rec, 100, time.Second)

	require.NoError(t, bw.Add(context.Background(), "a"))
	require.NoError(t, bw.Stop(context.Background()))
	assert.Equal(t, 1, rec.total())
}

func TestBatchWriter_FlushError(t *testing.T) {
	rec := &recorder{err: fmt.Errorf("connection refused")}
	bw := newWriter(rec, 2, time.Second)

	err := bw.Add(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Zero(t, bw.BufferSize())
}

func TestBatchWriter_ConcurrentAdds(t *testing.T) {
	rec := &recorder{}
	bw := newWriter(rec, 10, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bw.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_ = bw.Add(ctx, fmt.Sprintf("row-%d", idx))
		}(i)
	}
	wg.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, bw.Stop(stopCtx))

	assert.Equal(t, 50, rec.total())
}
