package inference

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestQueueRunsUnderCap(t *testing.T) {
	q := NewRequestQueue(2, 4)
	ctx := context.Background()

	var concurrent, maxSeen int64
	var wg sync.WaitGroup

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(ctx, func(ctx context.Context) error {
				cur := atomic.AddInt64(&concurrent, 1)
				for {
					seen := atomic.LoadInt64(&maxSeen)
					if cur <= seen || atomic.CompareAndSwapInt64(&maxSeen, seen, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&concurrent, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2), "concurrency cap exceeded")
}

func TestRequestQueueRejectsPastWaitingBound(t *testing.T) {
	q := NewRequestQueue(1, 1)
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = q.Enqueue(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// One waiter is allowed.
	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- q.Enqueue(ctx, func(ctx context.Context) error { return nil })
	}()

	// Give the waiter time to register.
	require.Eventually(t, func() bool {
		return q.Stats().Queued == 1
	}, time.Second, 5*time.Millisecond)

	// The next caller is rejected synchronously, distinct from a timeout.
	start := time.Now()
	err := q.Enqueue(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrRequestQueueFull)
	assert.Less(t, time.Since(start), 50*time.Millisecond)

	close(release)
	require.NoError(t, <-waiterDone)
}

func TestRequestQueueWaiterHonorsContext(t *testing.T) {
	q := NewRequestQueue(1, 2)

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	go func() {
		_ = q.Enqueue(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The canceled waiter must not leak a queued slot.
	assert.Equal(t, 0, q.Stats().Queued)
}

func TestRequestQueueStats(t *testing.T) {
	q := NewRequestQueue(1, 2)
	ctx := context.Background()

	assert.Equal(t, QueueStats{}, q.Stats())

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = q.Enqueue(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	stats := q.Stats()
	assert.Equal(t, 1, stats.Running)

	close(release)
	<-done
	assert.Equal(t, QueueStats{}, q.Stats())
}
