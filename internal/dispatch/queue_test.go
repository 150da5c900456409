package dispatch

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiosessions/internal/logger"
	"github.com/tphakala/audiosessions/internal/testutil"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC))}, opts...)
	q := New(opts...)
	t.Cleanup(q.Close)
	return q
}

func TestQueue_RunsInPostingOrder(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)

	var got []int
	for i := range 100 {
		require.True(t, q.Post(func() { got = append(got, i) }))
	}
	require.NoError(t, q.Flush(t.Context()))

	want := make([]int, 100)
	for i := range want {
		want[i] = i
	}
	assert.Equal(t, want, got)
}

func TestQueue_PostFromManyGoroutines(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)

	var count int // touched only on the queue goroutine
	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			for range 50 {
				q.Post(func() { count++ })
			}
		})
	}
	wg.Wait()

	var observed int
	require.NoError(t, q.Invoke(t.Context(), func() { observed = count }))
	assert.Equal(t, 16*50, observed)
}

func TestQueue_PostNeverBlocksBehindSlowTask(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)

	release := make(chan struct{})
	q.Post(func() { <-release })

	start := time.Now()
	for range 10_000 {
		q.Post(func() {})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Positive(t, q.Len())

	close(release)
	require.NoError(t, q.Flush(t.Context()))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_InvokeHonorsContext(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)

	release := make(chan struct{})
	q.Post(func() { <-release })

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	err := q.Invoke(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}

func TestQueue_CloseDrainsPendingTasks(t *testing.T) {
	t.Parallel()

	q := New(WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)))

	var ran atomic.Int32
	for range 25 {
		q.Post(func() { ran.Add(1) })
	}
	q.Close()

	assert.Equal(t, int32(25), ran.Load())
	assert.False(t, q.Post(func() {}))
	require.ErrorIs(t, q.Invoke(t.Context(), func() {}), ErrClosed)

	// second close returns immediately
	q.Close()
}

func TestQueue_RecoversFromPanickingTask(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)

	q.Post(func() { panic("boom") })

	var after bool
	require.NoError(t, q.Invoke(t.Context(), func() { after = true }))
	assert.True(t, after)

	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Recovered)
	assert.Equal(t, uint64(2), stats.Executed)
	assert.Equal(t, uint64(2), stats.Posted)
}

func TestQueue_DepthObserver(t *testing.T) {
	t.Parallel()

	var maxDepth, lastDepth atomic.Int64
	q := newTestQueue(t, WithName("depth"), WithDepthObserver(func(depth int) {
		lastDepth.Store(int64(depth))
		for {
			cur := maxDepth.Load()
			if int64(depth) <= cur || maxDepth.CompareAndSwap(cur, int64(depth)) {
				return
			}
		}
	}))

	release := make(chan struct{})
	q.Post(func() { <-release })
	q.Post(func() {})
	q.Post(func() {})

	close(release)
	require.NoError(t, q.Flush(t.Context()))

	assert.GreaterOrEqual(t, maxDepth.Load(), int64(2))
	assert.Eventually(t, func() bool { return lastDepth.Load() == 0 }, time.Second, time.Millisecond)
}

func TestQueue_PostNilTask(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)
	assert.False(t, q.Post(nil))
}

func TestQueue_PostReturnsBeforeTaskRuns(t *testing.T) {
	t.Parallel()

	q := newTestQueue(t)

	release := make(chan struct{})
	ran := make(chan struct{})
	require.True(t, q.Post(func() {
		<-release
		close(ran)
	}))

	// Post returned while the task is still parked
	close(release)
	testutil.WaitForChannel(t, ran, testutil.ShortTestTimeout, "posted task never ran")
}

func TestQueue_DoneClosesAfterDrain(t *testing.T) {
	t.Parallel()

	q := New(WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)))

	var ran atomic.Bool
	q.Post(func() {
		select {
		case <-q.Done():
			t.Error("Done closed while a task was running")
		default:
		}
		ran.Store(true)
	})
	q.Close()

	testutil.WaitForChannel(t, q.Done(), testutil.ShortTestTimeout, "Done not closed after Close")
	assert.True(t, ran.Load())
}
