package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session is one live browser tab. It implements Page over playwright the
// way the rest of the system expects: timeouts via options, errors wrapped
// with the failing operation.
type Session struct {
	browser   playwright.Browser // nil for persistent contexts
	context   playwright.BrowserContext
	page      playwright.Page
	headless  bool
	createdAt time.Time
}

var _ Page = (*Session)(nil)

// Navigate loads a URL and waits for the requested load state.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	gotoOpts := playwright.PageGotoOptions{}

	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		gotoOpts.WaitUntil = &waitUntil
	}
	if opts.Timeout > 0 {
		gotoOpts.Timeout = &opts.Timeout
	}

	if _, err := s.page.Goto(url, gotoOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// Click clicks the first element matching the selector.
func (s *Session) Click(selector string, opts ClickOptions) error {
	clickOpts := playwright.PageClickOptions{}
	if opts.Timeout > 0 {
		clickOpts.Timeout = &opts.Timeout
	}

	if err := s.page.Click(selector, clickOpts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Type fills the matching element, optionally pacing individual keystrokes.
func (s *Session) Type(selector, text string, opts TypeOptions) error {
	if opts.DelayMillis > 0 {
		typeOpts := playwright.PageTypeOptions{Delay: &opts.DelayMillis}
		if opts.Timeout > 0 {
			typeOpts.Timeout = &opts.Timeout
		}
		if err := s.page.Type(selector, text, typeOpts); err != nil {
			return fmt.Errorf("type failed: %w", err)
		}
		return nil
	}

	fillOpts := playwright.PageFillOptions{}
	if opts.Timeout > 0 {
		fillOpts.Timeout = &opts.Timeout
	}
	if err := s.page.Fill(selector, text, fillOpts); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// Locate resolves a selector to its bounding box.
func (s *Session) Locate(selector string) (*ElementBox, error) {
	box, err := s.page.Locator(selector).BoundingBox()
	if err != nil {
		return nil, fmt.Errorf("locate failed: %w", err)
	}
	if box == nil {
		return nil, fmt.Errorf("no visible element matching selector: %s", selector)
	}
	return &ElementBox{X: box.X, Y: box.Y, Width: box.Width, Height: box.Height}, nil
}

// WaitFor blocks until the selector reaches the requested state.
func (s *Session) WaitFor(selector string, opts WaitOptions) error {
	waitOpts := playwright.PageWaitForSelectorOptions{}

	if opts.State != "" {
		state := playwright.WaitForSelectorState(opts.State)
		waitOpts.State = &state
	}
	if opts.Timeout > 0 {
		waitOpts.Timeout = &opts.Timeout
	}

	if _, err := s.page.WaitForSelector(selector, waitOpts); err != nil {
		return fmt.Errorf("wait failed: %w", err)
	}
	return nil
}

// Evaluate runs a JavaScript expression in the page.
func (s *Session) Evaluate(expression string) (interface{}, error) {
	result, err := s.page.Evaluate(expression)
	if err != nil {
		return nil, fmt.Errorf("evaluate failed: %w", err)
	}
	return result, nil
}

// Scroll scrolls the viewport vertically by deltaY pixels.
func (s *Session) Scroll(deltaY float64) error {
	if err := s.page.Mouse().Wheel(0, deltaY); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// URL returns the current page URL.
func (s *Session) URL() string {
	return s.page.URL()
}

// Content returns the full page HTML.
func (s *Session) Content() (string, error) {
	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("content extraction failed: %w", err)
	}
	return content, nil
}

// Close releases the tab, its context, and the browser.
func (s *Session) Close() error {
	_ = s.page.Close()
	_ = s.context.Close()
	if s.browser != nil {
		_ = s.browser.Close()
	}
	return nil
}
