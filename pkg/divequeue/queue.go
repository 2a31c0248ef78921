// Package divequeue provides the single-flight executor for deep-engagement
// tasks.
//
// Every dive mutates the one shared, non-reentrant page, so the queue runs
// with a fixed concurrency of one: tasks execute strictly in dequeue order
// and never overlap. The single-flight guarantee is independent of the page
// lock and deliberately conservative; it exists to eliminate races between
// concurrently-triggered engagement attempts before they ever reach the page.
package divequeue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/engagement"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// Task is one unit of dive work. It must honor ctx cancellation at every
// internal wait point; the queue abandons tasks that outlive their timeout.
type Task func(ctx context.Context) (interface{}, error)

// Config controls queue behavior. Concurrency is fixed at one and is not
// configurable.
type Config struct {
	// MaxQueueSize bounds the number of pending tasks. Submissions past the
	// bound are rejected synchronously with queue_full.
	MaxQueueSize int

	// DefaultTimeout bounds each task when SubmitOptions.Timeout is zero.
	DefaultTimeout time.Duration

	// QuickTimeout replaces the effective timeout while quick mode is on.
	// Quick mode trades AI-quality engagement for guaranteed completion near
	// session end, so QuickTimeout must be shorter than DefaultTimeout.
	QuickTimeout time.Duration

	// HealthUtilization is the pending/capacity ratio above which IsHealthy
	// reports false. Defaults to 0.8.
	HealthUtilization float64

	// HealthMaxConsecutiveTimeouts is the consecutive-timeout count at which
	// IsHealthy reports false. Defaults to 3.
	HealthMaxConsecutiveTimeouts int
}

func (c *Config) applyDefaults() {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 10
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 45 * time.Second
	}
	if c.QuickTimeout <= 0 || c.QuickTimeout >= c.DefaultTimeout {
		c.QuickTimeout = c.DefaultTimeout / 3
	}
	if c.HealthUtilization <= 0 {
		c.HealthUtilization = 0.8
	}
	if c.HealthMaxConsecutiveTimeouts <= 0 {
		c.HealthMaxConsecutiveTimeouts = 3
	}
}

// SubmitOptions names and bounds one submission.
type SubmitOptions struct {
	// Name identifies the task in logs.
	Name string

	// Timeout overrides the queue default for this task when positive.
	Timeout time.Duration

	// Priority orders pending tasks; higher runs first, ties FIFO.
	Priority int

	// Fallback, when set, runs instead of returning a bare timeout failure
	// after the primary task exceeds its allowance. It should be cheap and
	// must not depend on the primary's partial work.
	Fallback Task
}

// item is one queued submission.
type item struct {
	task   Task
	opts   SubmitOptions
	result chan types.TaskResult
	seq    uint64 // FIFO tiebreak within a priority
	index  int    // heap bookkeeping
}

// Queue is the single-flight dive executor.
type Queue struct {
	cfg     Config
	limiter *engagement.Limiter
	logger  *logging.Logger

	mu     sync.Mutex
	items  taskHeap
	seq    uint64
	closed bool

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	quickMode atomic.Bool
	running   atomic.Bool

	completed           atomic.Int64
	failed              atomic.Int64
	timedOut            atomic.Int64
	consecutiveTimeouts atomic.Int64
}

// New creates a queue and starts its worker. The limiter is the session's
// engagement quota authority; CanEngage and RecordEngagement delegate to it.
func New(cfg Config, limiter *engagement.Limiter, logger *logging.Logger) *Queue {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// Submit enqueues a task and returns a one-slot channel that will carry its
// result. Backpressure is synchronous: when the queue is full (or shut down)
// the returned channel already holds the failure, distinct from any timeout.
func (q *Queue) Submit(task Task, opts SubmitOptions) <-chan types.TaskResult {
	result := make(chan types.TaskResult, 1)

	q.mu.Lock()
	switch {
	case q.closed:
		q.mu.Unlock()
		result <- types.Failure(types.ErrCodeShutdown)
		return result
	case q.items.Len() >= q.cfg.MaxQueueSize:
		q.mu.Unlock()
		if q.logger != nil {
			q.logger.Warnf("dive queue full, rejecting task %q", opts.Name)
		}
		result <- types.Failure(types.ErrCodeQueueFull)
		return result
	}

	q.seq++
	heap.Push(&q.items, &item{task: task, opts: opts, result: result, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return result
}

// SubmitWait submits and blocks for the result or ctx cancellation.
func (q *Queue) SubmitWait(ctx context.Context, task Task, opts SubmitOptions) types.TaskResult {
	select {
	case res := <-q.Submit(task, opts):
		return res
	case <-ctx.Done():
		return types.FailureMessage(ctx.Err().Error())
	}
}

// worker drains the queue one task at a time.
func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		next := q.pop()
		if next == nil {
			select {
			case <-q.wake:
				continue
			case <-q.ctx.Done():
				q.drain()
				return
			}
		}

		q.running.Store(true)
		next.result <- q.run(next)
		q.running.Store(false)

		select {
		case <-q.ctx.Done():
			q.drain()
			return
		default:
		}
	}
}

func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.items.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*item)
}

// drain rejects everything still pending after shutdown.
func (q *Queue) drain() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() > 0 {
		it := heap.Pop(&q.items).(*item)
		it.result <- types.Failure(types.ErrCodeShutdown)
	}
}

// run executes one task under its timeout guard.
func (q *Queue) run(it *item) types.TaskResult {
	timeout := q.effectiveTimeout(it.opts)
	ctx, cancel := context.WithTimeout(q.ctx, timeout)
	defer cancel()

	done := make(chan types.TaskResult, 1)
	go func() {
		done <- q.invoke(ctx, it.task)
	}()

	select {
	case res := <-done:
		if res.Success {
			q.completed.Add(1)
			q.consecutiveTimeouts.Store(0)
		} else {
			q.failed.Add(1)
		}
		return res

	case <-ctx.Done():
		if q.ctx.Err() != nil {
			return types.Failure(types.ErrCodeShutdown)
		}
		q.timedOut.Add(1)
		q.consecutiveTimeouts.Add(1)
		if q.logger != nil {
			q.logger.Warnf("task %q exceeded %s allowance", it.opts.Name, timeout)
		}
		// The abandoned goroutine observed ctx cancellation at its next wait
		// point; we stop waiting for it either way.
		if it.opts.Fallback != nil {
			return q.runFallback(it)
		}
		return types.Failure(types.ErrCodeTimeout)
	}
}

// runFallback executes the cheap replacement for a timed-out task. The
// fallback gets the quick allowance regardless of mode.
func (q *Queue) runFallback(it *item) types.TaskResult {
	ctx, cancel := context.WithTimeout(q.ctx, q.cfg.QuickTimeout)
	defer cancel()

	if q.logger != nil {
		q.logger.Infof("running fallback for task %q", it.opts.Name)
	}
	res := q.invoke(ctx, it.opts.Fallback)
	res.UsedFallback = true
	if res.Success {
		q.completed.Add(1)
	} else {
		q.failed.Add(1)
	}
	return res
}

// invoke calls a task body, converting panics and errors into structured
// results. Nothing a task does may crash the worker.
func (q *Queue) invoke(ctx context.Context, task Task) (res types.TaskResult) {
	defer func() {
		if r := recover(); r != nil {
			if q.logger != nil {
				q.logger.Errorf("task panicked: %v", r)
			}
			res = types.FailureMessage(fmt.Sprintf("task panicked: %v", r))
		}
	}()

	value, err := task(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return types.Failure(types.ErrCodeTimeout)
		}
		return types.FailureMessage(err.Error())
	}
	return types.Ok(value)
}

// effectiveTimeout resolves the allowance for one task: the per-task override
// (or the default), tightened by quick mode when enabled.
func (q *Queue) effectiveTimeout(opts SubmitOptions) time.Duration {
	base := q.cfg.DefaultTimeout
	if opts.Timeout > 0 {
		base = opts.Timeout
	}
	if q.quickMode.Load() && q.cfg.QuickTimeout < base {
		return q.cfg.QuickTimeout
	}
	return base
}

// CanEngage reports whether the category is within quota.
func (q *Queue) CanEngage(category types.EngagementCategory) bool {
	return q.limiter.CanPerform(category)
}

// RecordEngagement commits one engagement, re-checking the quota internally.
func (q *Queue) RecordEngagement(category types.EngagementCategory) bool {
	return q.limiter.Record(category)
}

// Progress returns the per-category quota snapshot.
func (q *Queue) Progress() map[types.EngagementCategory]types.CategoryProgress {
	return q.limiter.Progress()
}

// EnableQuickMode shortens the effective per-task timeout. Meant to be
// switched on automatically when the session nears its end.
func (q *Queue) EnableQuickMode() {
	if q.quickMode.CompareAndSwap(false, true) && q.logger != nil {
		q.logger.Infof("quick mode enabled (timeout %s)", q.cfg.QuickTimeout)
	}
}

// DisableQuickMode restores the default timeout.
func (q *Queue) DisableQuickMode() {
	if q.quickMode.CompareAndSwap(true, false) && q.logger != nil {
		q.logger.Infof("quick mode disabled")
	}
}

// QuickMode reports whether quick mode is on.
func (q *Queue) QuickMode() bool {
	return q.quickMode.Load()
}

// Pending returns the number of queued (not yet started) tasks.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Running reports whether a task body is executing right now.
func (q *Queue) Running() bool {
	return q.running.Load()
}

// Stats is a point-in-time snapshot of queue activity.
type Stats struct {
	Pending             int   `json:"pending"`
	Completed           int64 `json:"completed"`
	Failed              int64 `json:"failed"`
	TimedOut            int64 `json:"timed_out"`
	ConsecutiveTimeouts int64 `json:"consecutive_timeouts"`
	QuickMode           bool  `json:"quick_mode"`
}

// StatsSnapshot returns current queue statistics.
func (q *Queue) StatsSnapshot() Stats {
	return Stats{
		Pending:             q.Pending(),
		Completed:           q.completed.Load(),
		Failed:              q.failed.Load(),
		TimedOut:            q.timedOut.Load(),
		ConsecutiveTimeouts: q.consecutiveTimeouts.Load(),
		QuickMode:           q.quickMode.Load(),
	}
}

// IsHealthy reports false when utilization or the consecutive-timeout streak
// crosses the configured safety thresholds.
func (q *Queue) IsHealthy() bool {
	utilization := float64(q.Pending()) / float64(q.cfg.MaxQueueSize)
	if utilization >= q.cfg.HealthUtilization {
		return false
	}
	return q.consecutiveTimeouts.Load() < int64(q.cfg.HealthMaxConsecutiveTimeouts)
}

// Shutdown stops accepting submissions, rejects everything pending, and waits
// for the worker to exit. Safe to call more than once.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// taskHeap orders items by priority (higher first), then submission order.
type taskHeap []*item

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].opts.Priority != h[j].opts.Priority {
		return h[i].opts.Priority > h[j].opts.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
