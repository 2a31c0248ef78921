package browser

import (
	"context"
	"strings"
	"time"
)

// Feed selectors for the X/Twitter web app. Centralized so a markup change
// is a one-file fix.
const (
	SelectorHomeLink     = `a[data-testid="AppTabBar_Home_Link"]`
	SelectorPrimaryPost  = `article[data-testid="tweet"]`
	SelectorTimeline     = `div[data-testid="primaryColumn"]`
	SelectorReplyButton  = `button[data-testid="reply"]`
	SelectorLikeButton   = `button[data-testid="like"]`
	SelectorRepostButton = `button[data-testid="retweet"]`
	SelectorRepostMenu   = `div[data-testid="retweetConfirm"]`
	SelectorQuoteMenu    = `a[href="/compose/post"]`
	SelectorBookmark     = `button[data-testid="bookmark"]`
	SelectorFollow       = `button[data-testid$="-follow"]`
	SelectorComposer     = `div[data-testid="tweetTextarea_0"]`
	SelectorComposerSend = `button[data-testid="tweetButton"]`
)

// FeedNavigator drives the feed's home navigation. It is what the page
// state machine uses for its two-tier return-home.
type FeedNavigator struct {
	page    Page
	homeURL string
}

// NewFeedNavigator wraps a page with the baseline URL it should return to.
func NewFeedNavigator(page Page, homeURL string) *FeedNavigator {
	return &FeedNavigator{page: page, homeURL: homeURL}
}

// ClickHome performs the UI-level "go home" interaction.
func (f *FeedNavigator) ClickHome(ctx context.Context) error {
	timeout := remainingMillis(ctx)
	return f.page.Click(SelectorHomeLink, ClickOptions{Timeout: timeout})
}

// NavigateHome loads the home URL directly, the fallback when the home
// button is not reachable from the current page.
func (f *FeedNavigator) NavigateHome(ctx context.Context) error {
	return f.page.Navigate(f.homeURL, NavigateOptions{
		WaitUntil: "domcontentloaded",
		Timeout:   remainingMillis(ctx),
	})
}

// AtHome reports whether the page currently shows the baseline feed.
func (f *FeedNavigator) AtHome(ctx context.Context) bool {
	url := f.page.URL()
	if !strings.HasPrefix(url, f.homeURL) {
		return false
	}
	// URL alone can lie during a slow transition; require the timeline too.
	err := f.page.WaitFor(SelectorTimeline, WaitOptions{State: "visible", Timeout: 2000})
	return err == nil
}

// remainingMillis converts a context deadline into a playwright timeout.
// Zero means use the page default.
func remainingMillis(ctx context.Context) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms <= 0 {
		return 1
	}
	return ms
}
