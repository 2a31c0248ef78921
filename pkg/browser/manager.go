package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	// DefaultViewportWidth is the default browser viewport width.
	DefaultViewportWidth = 1280
	// DefaultViewportHeight is the default browser viewport height.
	DefaultViewportHeight = 900
	// DefaultTimeout is the default operation timeout in milliseconds.
	DefaultTimeout = 30000
)

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// UserDataDir enables a persistent profile so logins survive restarts.
	// Empty means an ephemeral context.
	UserDataDir string

	// Viewport sets the initial viewport size.
	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds).
	Timeout float64
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Manager owns the playwright runtime and the browser session lifecycle.
type Manager struct {
	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
}

// NewManager creates a manager. Initialize must be called before NewSession.
func NewManager() *Manager {
	return &Manager{}
}

// Initialize installs and starts playwright. Output is discarded so the
// driver install does not pollute the session log.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	return nil
}

// NewSession launches a browser and returns an automation session. With a
// user data dir configured the browser uses a persistent context, keeping
// cookies and logins across runs.
func (m *Manager) NewSession(opts SessionOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, fmt.Errorf("browser manager not initialized")
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	viewport := &playwright.Size{
		Width:  opts.Viewport.Width,
		Height: opts.Viewport.Height,
	}

	if opts.UserDataDir != "" {
		context, err := m.playwright.Chromium.LaunchPersistentContext(
			opts.UserDataDir,
			playwright.BrowserTypeLaunchPersistentContextOptions{
				Headless: &opts.Headless,
				Viewport: viewport,
			},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to launch persistent browser: %w", err)
		}

		page, err := firstPage(context)
		if err != nil {
			context.Close()
			return nil, err
		}
		page.SetDefaultTimeout(opts.Timeout)

		return &Session{
			context:   context,
			page:      page,
			headless:  opts.Headless,
			createdAt: time.Now(),
		}, nil
	}

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: viewport,
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)

	return &Session{
		browser:   browser,
		context:   context,
		page:      page,
		headless:  opts.Headless,
		createdAt: time.Now(),
	}, nil
}

func firstPage(context playwright.BrowserContext) (playwright.Page, error) {
	if pages := context.Pages(); len(pages) > 0 {
		return pages[0], nil
	}
	page, err := context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

// Shutdown stops the playwright runtime. Sessions must be closed first.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
	}
	return nil
}
