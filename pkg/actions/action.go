// Package actions implements the closed set of feed engagements. Each
// engagement is its own variant with no shared mutable state; the Runner is
// the single place that checks limits, dispatches, and records.
package actions

import (
	"context"
	"errors"
	"fmt"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/browser"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/engagement"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/logging"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

var (
	// ErrLimitReached signals the category's session budget is exhausted.
	ErrLimitReached = errors.New("engagement limit reached")

	// ErrNotExecutable signals the action declined the current page.
	ErrNotExecutable = errors.New("action not executable on this page")
)

// TextGenerator produces engagement text. The inference router satisfies it.
type TextGenerator interface {
	Route(ctx context.Context, req types.InferenceRequest) *types.InferenceResponse
}

// Context carries everything an action needs to run against the current
// post page.
type Context struct {
	Page      browser.Page
	Post      *browser.PostContent
	Generator TextGenerator
	SessionID string

	// TypeDelayMillis paces composer keystrokes.
	TypeDelayMillis float64
}

// Action is one engagement variant.
type Action interface {
	// Kind identifies the engagement category for limit accounting.
	Kind() types.EngagementCategory

	// CanExecute reports whether the current page supports this action.
	CanExecute(ctx context.Context, actx *Context) bool

	// Execute performs the engagement.
	Execute(ctx context.Context, actx *Context) error
}

// Runner dispatches actions with limit checking and recording. Recording
// happens only after a successful execution, so a failed page interaction
// never consumes budget.
type Runner struct {
	limiter *engagement.Limiter
	logger  *logging.Logger
}

// NewRunner creates a runner over the session's limiter.
func NewRunner(limiter *engagement.Limiter, logger *logging.Logger) *Runner {
	return &Runner{limiter: limiter, logger: logger}
}

// Run executes one action end to end.
func (r *Runner) Run(ctx context.Context, action Action, actx *Context) error {
	category := action.Kind()

	if !r.limiter.CanPerform(category) {
		return fmt.Errorf("%w: %s", ErrLimitReached, category)
	}

	if !action.CanExecute(ctx, actx) {
		return fmt.Errorf("%w: %s", ErrNotExecutable, category)
	}

	if err := action.Execute(ctx, actx); err != nil {
		return fmt.Errorf("%s failed: %w", category, err)
	}

	// A parallel dive could have consumed the last slot between the check
	// and here; Record re-verifies under the limiter's own lock.
	if !r.limiter.Record(category) {
		return fmt.Errorf("%w: %s", ErrLimitReached, category)
	}

	if r.logger != nil {
		r.logger.Infof("recorded %s engagement (%s)", category, r.limiter.Status()[string(category)])
	}
	return nil
}

// ForCategory returns the action variant for a category.
func ForCategory(category types.EngagementCategory) (Action, error) {
	switch category {
	case types.CategoryLike:
		return &Like{}, nil
	case types.CategoryRetweet:
		return &Retweet{}, nil
	case types.CategoryBookmark:
		return &Bookmark{}, nil
	case types.CategoryFollow:
		return &Follow{}, nil
	case types.CategoryReply:
		return &Reply{}, nil
	case types.CategoryQuote:
		return &Quote{}, nil
	default:
		return nil, fmt.Errorf("unknown engagement category: %q", category)
	}
}
