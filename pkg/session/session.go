// Package session wires the engagement core into one browsing session: a
// background scroll loop that keeps the feed moving, a dive loop that
// periodically opens and engages with posts, and the shutdown plumbing that
// ties both to one context.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/actions"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/browser"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/config"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/divequeue"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/engagement"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/metrics"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/pagestate"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// Deps are the collaborators a session runs against. Page, Navigator, and
// Generator are interfaces so tests drive the session without a browser or
// an inference server.
type Deps struct {
	Logger    *logging.Logger
	Page      browser.Page
	Navigator pagestate.Navigator
	Generator actions.TextGenerator

	// Optional. Nil Exporter disables metrics, nil Persona uses the
	// default, nil Filter allows every target.
	Exporter *metrics.Exporter
	Persona  Persona
	Filter   *config.TargetFilter
}

// Session orchestrates one autopilot run.
type Session struct {
	cfg     *config.SessionConfig
	logger  *logging.Logger
	page    browser.Page
	pages   *pagestate.Controller
	limiter *engagement.Limiter
	queue   *divequeue.Queue
	runner  *actions.Runner
	gen     actions.TextGenerator
	persona Persona
	filter  *config.TargetFilter
	metrics *metrics.Exporter

	scrollPacer *rate.Limiter

	startedAt time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	fatal  error
}

// New builds a session from validated configuration and live collaborators.
func New(cfg *config.SessionConfig, deps Deps) (*Session, error) {
	if deps.Page == nil || deps.Navigator == nil {
		return nil, fmt.Errorf("session requires a page and a navigator")
	}

	persona := deps.Persona
	if persona == nil {
		persona = NewDefaultPersona()
	}

	limiter := engagement.NewLimiter(cfg.CategoryLimits())
	queue := divequeue.New(divequeue.Config{
		MaxQueueSize:   cfg.Dive.MaxQueueSize,
		DefaultTimeout: cfg.Dive.DefaultTimeout,
		QuickTimeout:   cfg.Dive.QuickTimeout,
	}, limiter, deps.Logger)

	pages := pagestate.New(deps.Navigator, deps.Logger,
		pagestate.WithReturnTimeout(cfg.Dive.ReturnTimeout))

	scrollEvery := rate.Every(cfg.Session.ScrollInterval)

	return &Session{
		cfg:         cfg,
		logger:      deps.Logger,
		page:        deps.Page,
		pages:       pages,
		limiter:     limiter,
		queue:       queue,
		runner:      actions.NewRunner(limiter, deps.Logger),
		gen:         deps.Generator,
		persona:     persona,
		filter:      deps.Filter,
		metrics:     deps.Exporter,
		scrollPacer: rate.NewLimiter(scrollEvery, 1),
		startedAt:   time.Now(),
	}, nil
}

// Run drives the session until the configured duration elapses, the context
// is canceled, or a loop fails fatally.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	if s.cfg.Session.Duration > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, s.cfg.Session.Duration)
		defer cancelTimeout()
	}

	if s.logger != nil {
		s.logger.Infof("session started: duration=%v goal=%q persona=%s",
			s.cfg.Session.Duration, s.cfg.Session.Goal, s.persona.Name())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.scrollLoop(ctx) })
	g.Go(func() error { return s.diveLoop(ctx) })
	if s.cfg.Session.Duration > 0 {
		g.Go(func() error { return s.quickModeWatch(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}

	// A failed return-to-baseline leaves the page at an unknown position,
	// which the loops cannot recover from on their own.
	s.mu.Lock()
	if s.fatal != nil {
		err = s.fatal
	}
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Infof("session finished: %v", s.limiter.Status())
	}
	return err
}

// scrollLoop keeps the feed moving while no dive holds the page. Each scroll
// step holds the page token for its duration so a dive starting on the worker
// goroutine can never touch the page mid-scroll; while the token is taken (or
// scrolling is disabled) the loop substitutes a micro-movement so the tab
// still shows signs of life without disturbing the dive.
func (s *Session) scrollLoop(ctx context.Context) error {
	for {
		if err := s.scrollPacer.Wait(ctx); err != nil {
			return err
		}

		if s.pages.CanProceedScrolling() && s.pages.TryAcquire() {
			err := s.page.Scroll(s.persona.ScrollDelta())
			s.pages.ReleaseToken()
			if err != nil && s.logger != nil {
				s.logger.Warnf("feed scroll failed: %v", err)
			}
			continue
		}

		s.idleMicroMovement()
	}
}

// idleMicroMovement dispatches a synthetic pointer event. Failures are
// ignored: this is cosmetic activity, not a page interaction.
func (s *Session) idleMicroMovement() {
	_, _ = s.page.Evaluate(
		`window.dispatchEvent(new MouseEvent('mousemove', {clientX: 200 + Math.random() * 40, clientY: 300 + Math.random() * 40}))`)
}

// diveLoop paces dives with persona-jittered intervals.
func (s *Session) diveLoop(ctx context.Context) error {
	for {
		pause := s.persona.DivePause(s.cfg.Session.DiveInterval)
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		result := s.Dive(ctx)
		if !result.Success && result.Error == string(types.ErrCodeShutdown) {
			return ctx.Err()
		}
	}
}

// Dive submits one full engagement cycle to the dive queue and waits for
// its outcome. Queue backpressure comes back as a queue_full result, never
// as blocking.
func (s *Session) Dive(ctx context.Context) types.TaskResult {
	start := time.Now()
	result := s.queue.SubmitWait(ctx, s.diveTask, divequeue.SubmitOptions{
		Name:     "dive",
		Fallback: s.quickDive,
	})

	if s.metrics != nil {
		status := "success"
		if !result.Success {
			status = result.Error
		}
		s.metrics.RecordDive(status, time.Since(start))
		s.metrics.SetQueueDepth(s.queue.Pending(), boolToInt(s.queue.Running()))
	}

	if s.logger != nil && !result.Success {
		s.logger.Warnf("dive failed: %s", result.Error)
	}
	return result
}

// diveTask is the actual engagement cycle, run single-flight by the queue.
func (s *Session) diveTask(ctx context.Context) (interface{}, error) {
	return s.withPage(ctx, func(ctx context.Context) (interface{}, error) {
		if err := s.pause(ctx, s.persona.ReadDelay()); err != nil {
			return nil, err
		}

		post, filtered, err := s.currentPost()
		if err != nil {
			return nil, err
		}
		if filtered {
			return "target filtered", nil
		}

		category := s.persona.PickCategory(s.availableCategories())
		if category == "" {
			return "no engagement available", nil
		}

		if err := s.engage(ctx, category, post); err != nil {
			return nil, err
		}
		return fmt.Sprintf("dive complete: %s", category), nil
	})
}

// quickDive is the reduced cycle run when a full dive exceeds its allowance:
// no read pause, no generated text, a like when the quota still has one.
func (s *Session) quickDive(ctx context.Context) (interface{}, error) {
	return s.withPage(ctx, func(ctx context.Context) (interface{}, error) {
		if !s.limiter.CanPerform(types.CategoryLike) {
			return "quick dive: nothing to do", nil
		}

		post, filtered, err := s.currentPost()
		if err != nil {
			return nil, err
		}
		if filtered {
			return "target filtered", nil
		}

		if err := s.engage(ctx, types.CategoryLike, post); err != nil {
			return nil, err
		}
		return "quick dive complete: like", nil
	})
}

// withPage runs body between a page-lock acquire and a release-with-return.
// The body's outcome decides the release path; a failed return is fatal.
func (s *Session) withPage(ctx context.Context, body func(ctx context.Context) (interface{}, error)) (value interface{}, err error) {
	if err := s.pages.Acquire(ctx); err != nil {
		return nil, err
	}

	success := false
	defer func() {
		// The task context may already be dead (timeout); the return-home
		// cleanup gets its own allowance so the lock and the page never
		// stay stranded.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Dive.ReturnTimeout+5*time.Second)
		defer cancel()
		if relErr := s.pages.Release(cleanupCtx, success, true); relErr != nil {
			s.failFatal(fmt.Errorf("return to baseline failed: %w", relErr))
		}
	}()

	if err := s.openPost(ctx); err != nil {
		return nil, fmt.Errorf("%s: %w", types.ErrCodeNavFailure, err)
	}

	value, err = body(ctx)
	success = err == nil
	return value, err
}

// currentPost extracts the opened post and applies the target filter.
func (s *Session) currentPost() (*browser.PostContent, bool, error) {
	rawHTML, err := s.page.Content()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", types.ErrCodeNavFailure, err)
	}
	post, err := browser.ExtractPost(rawHTML)
	if err != nil {
		return nil, false, err
	}
	if s.filter != nil && !s.filter.Allows(s.page.URL(), post.Handle) {
		if s.logger != nil {
			s.logger.Debugf("target filtered: %s %s", s.page.URL(), post.Handle)
		}
		return post, true, nil
	}
	return post, false, nil
}

// engage runs one action through the runner. Quota and executability refusals
// are policy no-ops: the dive still concluded normally.
func (s *Session) engage(ctx context.Context, category types.EngagementCategory, post *browser.PostContent) error {
	action, err := actions.ForCategory(category)
	if err != nil {
		return err
	}

	err = s.runner.Run(ctx, action, &actions.Context{
		Page:            s.page,
		Post:            post,
		Generator:       s.gen,
		SessionID:       logging.GetSessionID(),
		TypeDelayMillis: s.persona.TypeDelayMillis(),
	})
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.RecordEngagement(string(category))
		}
		return nil
	case errors.Is(err, actions.ErrLimitReached), errors.Is(err, actions.ErrNotExecutable):
		if s.logger != nil {
			s.logger.Debugf("skipped %s: %v", category, err)
		}
		return nil
	default:
		return err
	}
}

// failFatal records the first unrecoverable error and stops the session.
func (s *Session) failFatal(err error) {
	if s.logger != nil {
		s.logger.Errorf("%v", err)
	}
	s.mu.Lock()
	if s.fatal == nil {
		s.fatal = err
	}
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// openPost clicks through to the first visible post on the feed.
func (s *Session) openPost(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.page.Click(browser.SelectorPrimaryPost, browser.ClickOptions{}); err != nil {
		return err
	}
	return s.page.WaitFor(browser.SelectorPrimaryPost, browser.WaitOptions{State: "visible"})
}

// availableCategories returns the categories with budget remaining.
func (s *Session) availableCategories() []types.EngagementCategory {
	var available []types.EngagementCategory
	for _, cat := range types.AllCategories {
		if s.limiter.CanPerform(cat) {
			available = append(available, cat)
		}
	}
	return available
}

// quickModeWatch flips the dive queue into quick mode when the remaining
// session time falls under the configured fraction.
func (s *Session) quickModeWatch(ctx context.Context) error {
	threshold := time.Duration(float64(s.cfg.Session.Duration) * (1 - s.cfg.Session.QuickModeThreshold))
	timer := time.NewTimer(threshold)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	s.queue.EnableQuickMode()
	if s.metrics != nil {
		s.metrics.SetQuickMode(true)
	}
	if s.logger != nil {
		s.logger.Infof("quick mode enabled: %.0f%% of session elapsed",
			(1-s.cfg.Session.QuickModeThreshold)*100)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (s *Session) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Status is a point-in-time view of the session for operators.
type Status struct {
	PageState   pagestate.State                                     `json:"page_state"`
	Queue       divequeue.Stats                                     `json:"queue"`
	Engagements map[string]string                                   `json:"engagements"`
	Progress    map[types.EngagementCategory]types.CategoryProgress `json:"progress"`
	QuickMode   bool                                                `json:"quick_mode"`
	Healthy     bool                                                `json:"healthy"`
	Elapsed     time.Duration                                       `json:"elapsed"`
}

// Status reports the live session state.
func (s *Session) Status() Status {
	return Status{
		PageState:   s.pages.State(),
		Queue:       s.queue.StatsSnapshot(),
		Engagements: s.limiter.Status(),
		Progress:    s.limiter.Progress(),
		QuickMode:   s.queue.QuickMode(),
		Healthy:     s.queue.IsHealthy(),
		Elapsed:     time.Since(s.startedAt),
	}
}

// Progress exposes per-category engagement progress.
func (s *Session) Progress() map[types.EngagementCategory]types.CategoryProgress {
	return s.limiter.Progress()
}

// IsHealthy reports whether the dive pipeline is in a workable state.
func (s *Session) IsHealthy() bool {
	return s.queue.IsHealthy()
}

// Shutdown stops the loops and drains the dive queue.
func (s *Session) Shutdown() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.queue.Shutdown()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
