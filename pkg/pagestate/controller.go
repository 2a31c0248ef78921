// Package pagestate serializes access to the one shared browser page.
//
// A session runs two behaviors against the same page: a passive background
// scroll/read loop and an active deep-engagement dive. They must never touch
// the page in the same instant. The controller enforces that with an explicit
// state machine plus a mutual-exclusion gate implemented as a one-slot token
// channel, so waiters suspend on the channel (or their context) instead of
// polling.
package pagestate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
)

// State is the page-level position of the session.
type State string

const (
	StateHome      State = "home"       // StateHome is the baseline feed view.
	StateDiving    State = "diving"     // StateDiving means a dive holds the page lock.
	StateTweetPage State = "tweet_page" // StateTweetPage means a dive finished on an opened post.
	StateReturning State = "returning"  // StateReturning means the session is navigating back to baseline.
)

// ErrReturnHomeFailed is returned when both return-home tiers fail. The
// session treats this as fatal: an unknown page position stalls everything
// built on top of it.
var ErrReturnHomeFailed = errors.New("pagestate: failed to return to home view")

// Navigator is the slice of the page handle the controller needs to get back
// to the baseline view.
type Navigator interface {
	// ClickHome performs the UI-level "go home" interaction.
	ClickHome(ctx context.Context) error

	// NavigateHome navigates directly to the home URL.
	NavigateHome(ctx context.Context) error

	// AtHome reports whether the page currently shows the baseline view.
	AtHome(ctx context.Context) bool
}

// Controller is the page-state machine and lock. The zero value is not
// usable; construct with New.
type Controller struct {
	mu               sync.Mutex
	state            State
	scrollingEnabled bool
	lockedAt         time.Time

	// lockCh holds the single access token. Token present = page free.
	lockCh chan struct{}

	nav           Navigator
	logger        *logging.Logger
	returnTimeout time.Duration
}

// Option configures a Controller.
type Option func(*Controller)

// WithReturnTimeout bounds the UI-tier return-home attempt before the direct
// navigation fallback kicks in.
func WithReturnTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.returnTimeout = d
	}
}

// New creates a controller in the HOME state with scrolling enabled.
func New(nav Navigator, logger *logging.Logger, opts ...Option) *Controller {
	c := &Controller{
		state:            StateHome,
		scrollingEnabled: true,
		lockCh:           make(chan struct{}, 1),
		nav:              nav,
		logger:           logger,
		returnTimeout:    5 * time.Second,
	}
	c.lockCh <- struct{}{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Acquire takes the page lock, transitioning to DIVING and disabling the
// background scroll behavior. It blocks until the lock is free or ctx is
// canceled. Callers must pair every successful Acquire with Release from a
// deferred cleanup path; a leaked lock stalls the whole session.
func (c *Controller) Acquire(ctx context.Context) error {
	select {
	case <-c.lockCh:
	case <-ctx.Done():
		return fmt.Errorf("acquire page lock: %w", ctx.Err())
	}

	c.mu.Lock()
	c.state = StateDiving
	c.scrollingEnabled = false
	c.lockedAt = time.Now()
	c.mu.Unlock()

	if c.logger != nil {
		c.logger.Debugf("page lock acquired")
	}
	return nil
}

// TryAcquire takes the page token without blocking and without a state
// transition. It is the gate for background work that needs the page to
// itself for one step but is not a dive: the holder keeps the state machine
// in HOME and must give the token back with ReleaseToken immediately after
// touching the page.
func (c *Controller) TryAcquire() bool {
	select {
	case <-c.lockCh:
		return true
	default:
		return false
	}
}

// ReleaseToken returns a token taken with TryAcquire.
func (c *Controller) ReleaseToken() {
	select {
	case c.lockCh <- struct{}{}:
	default:
		if c.logger != nil {
			c.logger.Errorf("page token released while not held")
		}
	}
}

// Release clears the lock and moves the state machine forward.
//
// With returnHome set it transitions through RETURNING and attempts a
// two-tier return: the UI-level home interaction first, then direct
// navigation if the page does not land home within the bound. The lock is
// cleared unconditionally, even when both tiers fail, so Release is safe to
// call from a defer after a panicking task. A double release is a programmer
// error and is logged rather than blocking.
func (c *Controller) Release(ctx context.Context, success, returnHome bool) error {
	defer c.unlock()

	if !returnHome {
		c.mu.Lock()
		if success {
			c.state = StateTweetPage
		} else {
			c.state = StateHome
			c.scrollingEnabled = true
		}
		c.mu.Unlock()
		return nil
	}

	c.mu.Lock()
	c.state = StateReturning
	c.mu.Unlock()

	err := c.returnHome(ctx)

	c.mu.Lock()
	c.state = StateHome
	c.scrollingEnabled = err == nil
	c.mu.Unlock()

	return err
}

// returnHome runs the two-tier return: UI interaction first, direct
// navigation as fallback.
func (c *Controller) returnHome(ctx context.Context) error {
	uiCtx, cancel := context.WithTimeout(ctx, c.returnTimeout)
	err := c.nav.ClickHome(uiCtx)
	landed := err == nil && c.nav.AtHome(uiCtx)
	cancel()
	if landed {
		return nil
	}

	if c.logger != nil {
		c.logger.Warnf("UI return-home did not land (err=%v), falling back to direct navigation", err)
	}

	if err := c.nav.NavigateHome(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrReturnHomeFailed, err)
	}
	if !c.nav.AtHome(ctx) {
		return ErrReturnHomeFailed
	}
	return nil
}

// unlock puts the access token back. Must never block: a full channel means
// the lock was released twice.
func (c *Controller) unlock() {
	select {
	case c.lockCh <- struct{}{}:
		if c.logger != nil {
			c.logger.Debugf("page lock released")
		}
	default:
		if c.logger != nil {
			c.logger.Errorf("page lock released while not held")
		}
	}
}

// ReturnToBaseline moves an unlocked session from wherever it ended up (for
// example a TWEET_PAGE end state, or an unknown position after a navigation
// failure) back to the home view. It takes the lock for the duration of the
// navigation so the background behavior cannot interleave.
func (c *Controller) ReturnToBaseline(ctx context.Context) error {
	if err := c.Acquire(ctx); err != nil {
		return err
	}
	return c.Release(ctx, true, true)
}

// CanProceedScrolling reports whether the background behavior may touch the
// page: true iff the lock is free and scrolling is enabled. The answer is
// advisory; the background loop must still win the token with TryAcquire
// before the scroll step and substitute an idle micro-movement when either
// gate says no.
func (c *Controller) CanProceedScrolling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lockCh) == 1 && c.scrollingEnabled
}

// EnableScrolling re-enables the background behavior, e.g. after the session
// navigates itself back to the feed from a TWEET_PAGE end state.
func (c *Controller) EnableScrolling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateHome {
		c.scrollingEnabled = true
	}
}

// State returns the current page state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Locked reports whether a dive currently holds the page.
func (c *Controller) Locked() bool {
	return len(c.lockCh) == 0
}

// HeldFor returns how long the lock has been held, or zero when free.
func (c *Controller) HeldFor() time.Duration {
	if !c.Locked() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lockedAt)
}
