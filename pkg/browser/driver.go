// Package browser wraps the Playwright browser driver behind the small
// surface the automation engine needs: one session, one page, and the
// element operations tasks perform against it.
package browser

import (
	"context"
	"time"
)

// Driver is the page-operation surface the engine and resolver depend on.
// The production implementation is Session (Playwright); tests substitute
// a fake. Contexts are honored between driver calls: an in-flight browser
// call cannot be interrupted safely, so cancellation takes effect at the
// next call boundary.
type Driver interface {
	// Navigate loads the URL and waits until the network is idle.
	Navigate(ctx context.Context, url string, timeout time.Duration) error

	// WaitForSelector waits for the selector to become visible.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Exists reports whether the selector matches at least one element.
	Exists(ctx context.Context, selector string) (bool, error)

	// Click clicks the first element matching the selector.
	Click(ctx context.Context, selector string, opts ClickOptions) error

	// Fill writes the literal value into the matching input element.
	Fill(ctx context.Context, selector, value string) error

	// SelectOption chooses an option by value in the matching select.
	SelectOption(ctx context.Context, selector, value string) error

	// ScrollIntoView brings the matching element into the viewport.
	ScrollIntoView(ctx context.Context, selector string) error

	// Text returns the text content of the first matching element.
	Text(ctx context.Context, selector string) (string, error)

	// Attribute returns the named attribute of the first matching element.
	Attribute(ctx context.Context, selector, name string) (string, error)

	// Count returns the number of elements matching the selector.
	Count(ctx context.Context, selector string) (int, error)

	// Content returns the full page HTML.
	Content(ctx context.Context) (string, error)

	// URL returns the current page URL.
	URL() string

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// ClickOptions tunes a click operation.
type ClickOptions struct {
	// DoubleClick performs a double click.
	DoubleClick bool

	// RightClick uses the right mouse button.
	RightClick bool

	// Force bypasses actionability checks.
	Force bool

	// Timeout bounds the click; zero uses the session default.
	Timeout time.Duration
}

// ResponseObserver receives one callback per network response the page
// produces. Observers must be cheap; they run on the driver's event loop.
type ResponseObserver func(url, resourceType string, duration time.Duration)

// Viewport is the fixed page dimensions for a session.
type Viewport struct {
	Width  int
	Height int
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a window.
	Headless bool

	// Viewport sets the page dimensions; zero values use the defaults.
	Viewport Viewport

	// UserAgent overrides the identity string; empty uses DefaultUserAgent.
	UserAgent string

	// Timeout is the default for driver operations; zero uses DefaultTimeout.
	Timeout time.Duration

	// OnResponse, when set, observes every network response.
	OnResponse ResponseObserver
}

// Session defaults.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultUserAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Pilot/1.0"
)
