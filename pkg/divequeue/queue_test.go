package divequeue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/engagement"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

func newTestQueue(t *testing.T, cfg Config) *Queue {
	t.Helper()
	limiter := engagement.NewLimiter(map[types.EngagementCategory]int{
		types.CategoryReply: 2,
	})
	q := New(cfg, limiter, nil)
	t.Cleanup(q.Shutdown)
	return q
}

func TestSubmitRunsTask(t *testing.T) {
	q := newTestQueue(t, Config{})

	res := <-q.Submit(func(ctx context.Context) (interface{}, error) {
		return "engaged", nil
	}, SubmitOptions{Name: "basic"})

	assert.True(t, res.Success)
	assert.Equal(t, "engaged", res.Result)
}

func TestSubmitErrorBecomesStructuredFailure(t *testing.T) {
	q := newTestQueue(t, Config{})

	res := <-q.Submit(func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("reply box not found")
	}, SubmitOptions{Name: "failing"})

	assert.False(t, res.Success)
	assert.Equal(t, "reply box not found", res.Error)
}

func TestSubmitPanicDoesNotKillWorker(t *testing.T) {
	q := newTestQueue(t, Config{})

	res := <-q.Submit(func(ctx context.Context) (interface{}, error) {
		panic("selector blew up")
	}, SubmitOptions{Name: "panicking"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "selector blew up")

	// Worker must still be alive.
	res = <-q.Submit(func(ctx context.Context) (interface{}, error) {
		return "still alive", nil
	}, SubmitOptions{Name: "after-panic"})
	assert.True(t, res.Success)
}

func TestSingleFlightNeverOverlaps(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 64})

	var concurrent, maxSeen int64
	var wg sync.WaitGroup
	results := make([]<-chan types.TaskResult, 0, 20)

	for i := 0; i < 20; i++ {
		results = append(results, q.Submit(func(ctx context.Context) (interface{}, error) {
			cur := atomic.AddInt64(&concurrent, 1)
			for {
				seen := atomic.LoadInt64(&maxSeen)
				if cur <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, cur) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt64(&concurrent, -1)
			return nil, nil
		}, SubmitOptions{Name: "overlap-probe"}))
	}

	for _, ch := range results {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ch
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&maxSeen), "at most one task body may execute at a time")
}

func TestSubmissionOrderWithinPriority(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 16})

	var mu sync.Mutex
	var order []int

	// First task blocks the worker so the rest queue up.
	gate := make(chan struct{})
	first := q.Submit(func(ctx context.Context) (interface{}, error) {
		<-gate
		return nil, nil
	}, SubmitOptions{Name: "gate"})

	var chans []<-chan types.TaskResult
	for i := 0; i < 5; i++ {
		i := i
		chans = append(chans, q.Submit(func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil, nil
		}, SubmitOptions{Name: "ordered"}))
	}

	close(gate)
	<-first
	for _, ch := range chans {
		<-ch
	}

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPriorityOrdering(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 16})

	var mu sync.Mutex
	var order []string

	gate := make(chan struct{})
	first := q.Submit(func(ctx context.Context) (interface{}, error) {
		<-gate
		return nil, nil
	}, SubmitOptions{Name: "gate"})

	record := func(name string) Task {
		return func(ctx context.Context) (interface{}, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	low := q.Submit(record("low"), SubmitOptions{Name: "low", Priority: 1})
	high := q.Submit(record("high"), SubmitOptions{Name: "high", Priority: 10})
	mid := q.Submit(record("mid"), SubmitOptions{Name: "mid", Priority: 5})

	close(gate)
	<-first
	<-low
	<-high
	<-mid

	assert.Equal(t, []string{"high", "mid", "low"}, order)
}

func TestQueueFullRejectedSynchronously(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 2, DefaultTimeout: 5 * time.Second})

	gate := make(chan struct{})
	running := make(chan struct{})
	first := q.Submit(func(ctx context.Context) (interface{}, error) {
		close(running)
		<-gate
		return nil, nil
	}, SubmitOptions{Name: "runner"})
	<-running

	// Fill the queue.
	second := q.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "q1"})
	third := q.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "q2"})

	// Excess must be rejected immediately, not after a timeout delay.
	start := time.Now()
	res := <-q.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "excess"})
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, "queue_full", res.Error)
	assert.Less(t, elapsed, 100*time.Millisecond, "queue_full must be a synchronous backpressure signal")

	close(gate)
	<-first
	<-second
	<-third
}

func TestTimeoutWithoutFallback(t *testing.T) {
	q := newTestQueue(t, Config{DefaultTimeout: 30 * time.Millisecond})

	res := <-q.Submit(func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, SubmitOptions{Name: "slow"})

	assert.False(t, res.Success)
	assert.Equal(t, "timeout", res.Error)
}

func TestTimeoutRunsFallback(t *testing.T) {
	q := newTestQueue(t, Config{DefaultTimeout: 30 * time.Millisecond, QuickTimeout: 10 * time.Millisecond})

	fallbackRan := false
	res := <-q.Submit(func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, SubmitOptions{
		Name: "slow-with-fallback",
		Fallback: func(ctx context.Context) (interface{}, error) {
			fallbackRan = true
			return "cheap engagement", nil
		},
	})

	assert.True(t, fallbackRan)
	assert.True(t, res.Success)
	assert.True(t, res.UsedFallback)
	assert.Equal(t, "cheap engagement", res.Result)
}

func TestQuickModeShortensTimeout(t *testing.T) {
	q := newTestQueue(t, Config{DefaultTimeout: 500 * time.Millisecond, QuickTimeout: 20 * time.Millisecond})

	work := func(ctx context.Context) (interface{}, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return "done", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// Succeeds under the default allowance.
	res := <-q.Submit(work, SubmitOptions{Name: "default-mode"})
	require.True(t, res.Success)

	// Same task fails once quick mode is on.
	q.EnableQuickMode()
	assert.True(t, q.QuickMode())
	res = <-q.Submit(work, SubmitOptions{Name: "quick-mode"})
	assert.False(t, res.Success)
	assert.Equal(t, "timeout", res.Error)

	q.DisableQuickMode()
	res = <-q.Submit(work, SubmitOptions{Name: "default-again"})
	assert.True(t, res.Success)
}

func TestCanEngageAndRecordDelegateToLimiter(t *testing.T) {
	q := newTestQueue(t, Config{}) // reply limit is 2

	assert.True(t, q.CanEngage(types.CategoryReply))
	assert.True(t, q.RecordEngagement(types.CategoryReply))
	assert.True(t, q.RecordEngagement(types.CategoryReply))
	assert.False(t, q.RecordEngagement(types.CategoryReply))
	assert.False(t, q.CanEngage(types.CategoryReply))

	progress := q.Progress()
	assert.Equal(t, 2, progress[types.CategoryReply].Current)
	assert.Equal(t, 0, progress[types.CategoryReply].Remaining)
}

func TestIsHealthy(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 4, DefaultTimeout: 10 * time.Millisecond})

	assert.True(t, q.IsHealthy())

	// Three consecutive timeouts trip the health check.
	hang := func(ctx context.Context) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	for i := 0; i < 3; i++ {
		<-q.Submit(hang, SubmitOptions{Name: "hang"})
	}
	assert.False(t, q.IsHealthy())

	// A success clears the streak.
	<-q.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "ok"})
	assert.True(t, q.IsHealthy())
}

func TestShutdownRejectsNewAndPendingWork(t *testing.T) {
	limiter := engagement.NewLimiter(nil)
	q := New(Config{MaxQueueSize: 8}, limiter, nil)

	gate := make(chan struct{})
	running := make(chan struct{})
	first := q.Submit(func(ctx context.Context) (interface{}, error) {
		close(running)
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return nil, nil
	}, SubmitOptions{Name: "runner"})
	<-running

	pending := q.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "pending"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	q.Shutdown()

	<-first
	res := <-pending
	assert.False(t, res.Success)
	assert.Equal(t, "shutdown", res.Error)

	res = <-q.Submit(func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "late"})
	assert.False(t, res.Success)
	assert.Equal(t, "shutdown", res.Error)

	// Shutdown is idempotent.
	q.Shutdown()
}

func TestSubmitWaitRespectsContext(t *testing.T) {
	q := newTestQueue(t, Config{MaxQueueSize: 4, DefaultTimeout: 5 * time.Second})

	gate := make(chan struct{})
	defer close(gate)
	running := make(chan struct{})
	q.Submit(func(ctx context.Context) (interface{}, error) {
		close(running)
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return nil, nil
	}, SubmitOptions{Name: "blocker"})
	<-running

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res := q.SubmitWait(ctx, func(ctx context.Context) (interface{}, error) { return nil, nil }, SubmitOptions{Name: "waiter"})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "context deadline exceeded")
}
