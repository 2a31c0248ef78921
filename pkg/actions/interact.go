package actions

import (
	"context"
	"fmt"

	"github.com/kardelitaitu/auto-ai-sub003/pkg/browser"
	"github.com/kardelitaitu/auto-ai-sub003/pkg/types"
)

// Like likes the primary post.
type Like struct{}

func (a *Like) Kind() types.EngagementCategory { return types.CategoryLike }

func (a *Like) CanExecute(ctx context.Context, actx *Context) bool {
	return selectorPresent(actx.Page, browser.SelectorLikeButton)
}

func (a *Like) Execute(ctx context.Context, actx *Context) error {
	return actx.Page.Click(browser.SelectorLikeButton, browser.ClickOptions{})
}

// Retweet reposts the primary post without commentary. Two clicks: the
// repost button opens a menu, the confirm entry commits.
type Retweet struct{}

func (a *Retweet) Kind() types.EngagementCategory { return types.CategoryRetweet }

func (a *Retweet) CanExecute(ctx context.Context, actx *Context) bool {
	return selectorPresent(actx.Page, browser.SelectorRepostButton)
}

func (a *Retweet) Execute(ctx context.Context, actx *Context) error {
	if err := actx.Page.Click(browser.SelectorRepostButton, browser.ClickOptions{}); err != nil {
		return err
	}
	if err := actx.Page.WaitFor(browser.SelectorRepostMenu, browser.WaitOptions{State: "visible"}); err != nil {
		return fmt.Errorf("repost menu did not open: %w", err)
	}
	return actx.Page.Click(browser.SelectorRepostMenu, browser.ClickOptions{})
}

// Bookmark bookmarks the primary post.
type Bookmark struct{}

func (a *Bookmark) Kind() types.EngagementCategory { return types.CategoryBookmark }

func (a *Bookmark) CanExecute(ctx context.Context, actx *Context) bool {
	return selectorPresent(actx.Page, browser.SelectorBookmark)
}

func (a *Bookmark) Execute(ctx context.Context, actx *Context) error {
	return actx.Page.Click(browser.SelectorBookmark, browser.ClickOptions{})
}

// Follow follows the post's author.
type Follow struct{}

func (a *Follow) Kind() types.EngagementCategory { return types.CategoryFollow }

func (a *Follow) CanExecute(ctx context.Context, actx *Context) bool {
	// Following an unidentified author is never useful.
	if actx.Post == nil || actx.Post.Handle == "" {
		return false
	}
	return selectorPresent(actx.Page, browser.SelectorFollow)
}

func (a *Follow) Execute(ctx context.Context, actx *Context) error {
	return actx.Page.Click(browser.SelectorFollow, browser.ClickOptions{})
}

// selectorPresent checks for a visible element without waiting long: a
// missing button means the page does not support the action, not that it is
// slow.
func selectorPresent(page browser.Page, selector string) bool {
	_, err := page.Locate(selector)
	return err == nil
}
