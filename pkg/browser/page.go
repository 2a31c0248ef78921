package browser

// Page is the automation handle the rest of the system drives. It is the
// seam that keeps playwright out of the state machine and the action
// implementations, and what tests stub.
type Page interface {
	// Navigate loads a URL and waits for the configured load state.
	Navigate(url string, opts NavigateOptions) error

	// Click clicks the first element matching the selector.
	Click(selector string, opts ClickOptions) error

	// Type fills the element matching the selector with text.
	Type(selector, text string, opts TypeOptions) error

	// Locate resolves a selector to its on-screen position.
	Locate(selector string) (*ElementBox, error)

	// WaitFor blocks until the selector reaches the requested state.
	WaitFor(selector string, opts WaitOptions) error

	// Evaluate runs a JavaScript expression in the page and returns its
	// JSON-serializable result.
	Evaluate(expression string) (interface{}, error)

	// Scroll scrolls the viewport vertically by deltaY pixels.
	Scroll(deltaY float64) error

	// URL returns the current page URL.
	URL() string

	// Content returns the full page HTML.
	Content() (string, error)
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful.
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// ClickOptions configures element clicking behavior.
type ClickOptions struct {
	// Timeout in milliseconds
	Timeout float64
}

// TypeOptions configures text input behavior.
type TypeOptions struct {
	// Timeout in milliseconds
	Timeout float64

	// DelayMillis inserts a per-keystroke delay so typing paces like a
	// person rather than a paste.
	DelayMillis float64
}

// WaitOptions configures element waiting behavior.
type WaitOptions struct {
	// State: "attached", "detached", "visible", "hidden"
	State string

	// Timeout in milliseconds
	Timeout float64
}

// ElementBox is an element's position and size in page coordinates.
type ElementBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Center returns the midpoint of the box, the natural click target.
func (b ElementBox) Center() (x, y float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}
