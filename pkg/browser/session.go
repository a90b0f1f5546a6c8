package browser

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/entrhq/pilot/pkg/logging"
)

// Session owns one Playwright browser, one context, and one page. It
// implements Driver. All methods are safe for use from a single goroutine;
// the engine serializes page access.
type Session struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	opts    SessionOptions
	logger  *zap.Logger

	closeOnce sync.Once
	closeErr  error

	reqMu    sync.Mutex
	reqStart map[playwright.Request]time.Time
}

// NewSession installs and starts Playwright, launches Chromium, and opens
// a single page with a fixed viewport and identity string. A failure at
// any stage tears down everything already started.
func NewSession(opts SessionOptions, logger *zap.Logger) (*Session, error) {
	logger = logging.Component(logger, "browser")
	if opts.Viewport.Width == 0 {
		opts.Viewport.Width = DefaultViewportWidth
	}
	if opts.Viewport.Height == 0 {
		opts.Viewport.Height = DefaultViewportHeight
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	// Discard driver output so it never interleaves with engine output.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	chromium, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := chromium.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
		UserAgent: playwright.String(opts.UserAgent),
	})
	if err != nil {
		chromium.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		chromium.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))

	s := &Session{
		pw:       pw,
		browser:  chromium,
		context:  browserCtx,
		page:     page,
		opts:     opts,
		logger:   logger,
		reqStart: make(map[playwright.Request]time.Time),
	}

	if opts.OnResponse != nil {
		s.observeTraffic(opts.OnResponse)
	}

	logger.Info("browser session started",
		zap.Bool("headless", opts.Headless),
		zap.Int("viewport_w", opts.Viewport.Width),
		zap.Int("viewport_h", opts.Viewport.Height))

	return s, nil
}

// observeTraffic stamps request start times and reports response latency
// per request. Request identity keys the map; entries are removed on
// response or failure so the map does not grow with page lifetime.
func (s *Session) observeTraffic(observer ResponseObserver) {
	s.page.OnRequest(func(req playwright.Request) {
		s.reqMu.Lock()
		s.reqStart[req] = time.Now()
		s.reqMu.Unlock()
	})

	s.page.OnResponse(func(resp playwright.Response) {
		req := resp.Request()

		s.reqMu.Lock()
		start, ok := s.reqStart[req]
		delete(s.reqStart, req)
		s.reqMu.Unlock()

		var elapsed time.Duration
		if ok {
			elapsed = time.Since(start)
		}
		observer(resp.URL(), req.ResourceType(), elapsed)
	})

	s.page.OnRequestFailed(func(req playwright.Request) {
		s.reqMu.Lock()
		delete(s.reqStart, req)
		s.reqMu.Unlock()
	})
}

// Navigate implements Driver.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout == 0 {
		timeout = s.opts.Timeout
	}

	s.logger.Debug("navigating", zap.String("url", url))
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

// WaitForSelector implements Driver.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("wait for %q failed: %w", selector, err)
	}
	return nil
}

// Exists implements Driver.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return false, fmt.Errorf("selector query failed: %w", err)
	}
	return handle != nil, nil
}

// Click implements Driver.
func (s *Session) Click(ctx context.Context, selector string, opts ClickOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = s.opts.Timeout
	}

	if opts.DoubleClick {
		err := s.page.Dblclick(selector, playwright.PageDblclickOptions{
			Force:   playwright.Bool(opts.Force),
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		if err != nil {
			return fmt.Errorf("double click failed: %w", err)
		}
		return nil
	}

	clickOpts := playwright.PageClickOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}
	if opts.RightClick {
		clickOpts.Button = playwright.MouseButtonRight
	}

	if err := s.page.Click(selector, clickOpts); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// Fill implements Driver.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.page.Fill(selector, value); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

// SelectOption implements Driver.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.SelectOption(selector, playwright.SelectOptionValues{
		Values: playwright.StringSlice(value),
	})
	if err != nil {
		return fmt.Errorf("select failed: %w", err)
	}
	return nil
}

// ScrollIntoView implements Driver.
func (s *Session) ScrollIntoView(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return fmt.Errorf("no element found matching selector: %s", selector)
	}
	if err := handle.ScrollIntoViewIfNeeded(); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Text implements Driver.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}

	text, err := handle.TextContent()
	if err != nil {
		return "", fmt.Errorf("text extraction failed: %w", err)
	}
	return text, nil
}

// Attribute implements Driver.
func (s *Session) Attribute(ctx context.Context, selector, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	handle, err := s.page.QuerySelector(selector)
	if err != nil {
		return "", fmt.Errorf("selector query failed: %w", err)
	}
	if handle == nil {
		return "", fmt.Errorf("no element found matching selector: %s", selector)
	}

	value, err := handle.GetAttribute(name)
	if err != nil {
		return "", fmt.Errorf("attribute read failed: %w", err)
	}
	return value, nil
}

// Count implements Driver.
func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	handles, err := s.page.QuerySelectorAll(selector)
	if err != nil {
		return 0, fmt.Errorf("selector query failed: %w", err)
	}
	return len(handles), nil
}

// Content implements Driver.
func (s *Session) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	content, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("content read failed: %w", err)
	}
	return content, nil
}

// URL implements Driver.
func (s *Session) URL() string {
	return s.page.URL()
}

// Close implements Driver. Later calls return the first close error.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.logger.Info("closing browser session")

		// Continue teardown past individual failures so a wedged page
		// never leaks the browser process.
		if s.page != nil {
			_ = s.page.Close()
		}
		if s.context != nil {
			_ = s.context.Close()
		}
		if s.browser != nil {
			_ = s.browser.Close()
		}
		if s.pw != nil {
			if err := s.pw.Stop(); err != nil {
				s.closeErr = fmt.Errorf("failed to stop playwright: %w", err)
			}
		}
	})
	return s.closeErr
}
