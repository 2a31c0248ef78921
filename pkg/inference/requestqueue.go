package inference

import (
	"context"
	"errors"
	"sync"
)

// ErrRequestQueueFull is returned when both the concurrency slots and the
// FIFO waiting line are exhausted. It is a backpressure signal, distinct from
// a timeout: the work was never started.
var ErrRequestQueueFull = errors.New("inference: request queue full")

// RequestQueue is a bounded-concurrency limiter protecting an inference
// backend from parallel calls it cannot serve. Up to MaxConcurrent calls run
// at once; excess callers wait FIFO up to MaxWaiting, beyond which they are
// rejected immediately.
type RequestQueue struct {
	maxConcurrent int
	maxWaiting    int

	slots chan struct{}

	mu      sync.Mutex
	waiting int
	running int
}

// NewRequestQueue creates a limiter. maxConcurrent <= 0 defaults to 1;
// maxWaiting <= 0 defaults to 2*maxConcurrent.
func NewRequestQueue(maxConcurrent, maxWaiting int) *RequestQueue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if maxWaiting <= 0 {
		maxWaiting = 2 * maxConcurrent
	}
	return &RequestQueue{
		maxConcurrent: maxConcurrent,
		maxWaiting:    maxWaiting,
		slots:         make(chan struct{}, maxConcurrent),
	}
}

// Enqueue runs fn under the concurrency cap. A free slot runs fn immediately;
// otherwise the caller waits in FIFO order until a slot frees, ctx is
// canceled, or the waiting bound is hit (ErrRequestQueueFull, synchronous).
func (q *RequestQueue) Enqueue(ctx context.Context, fn func(ctx context.Context) error) error {
	q.mu.Lock()
	if q.running+q.waiting >= q.maxConcurrent+q.maxWaiting {
		q.mu.Unlock()
		return ErrRequestQueueFull
	}
	q.waiting++
	q.mu.Unlock()

	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		q.mu.Lock()
		q.waiting--
		q.mu.Unlock()
		return ctx.Err()
	}

	q.mu.Lock()
	q.waiting--
	q.running++
	q.mu.Unlock()

	defer func() {
		<-q.slots
		q.mu.Lock()
		q.running--
		q.mu.Unlock()
	}()

	return fn(ctx)
}

// QueueStats is a point-in-time load snapshot for health signaling.
type QueueStats struct {
	Running int `json:"running"`
	Queued  int `json:"queued"`
}

// Stats returns current running and queued counts.
func (q *RequestQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Running: q.running, Queued: q.waiting}
}
