// internal/browser/browser.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

const (
	defaultNavTimeout    = 60 * time.Second
	defaultActionTimeout = 10 * time.Second
)

// Launcher owns the playwright lifecycle and the shared browser process.
// Pages are handed out one per mission; the launcher itself is safe for
// concurrent NewPage calls.
type Launcher struct {
	logger  *zap.Logger
	pw      *playwright.Playwright
	browser playwright.Browser
	cfg     config.BrowserConfig
}

// NewLauncher starts playwright and launches one Chromium instance.
func NewLauncher(logger *zap.Logger, cfg config.BrowserConfig) (*Launcher, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	args := cfg.Args
	if len(args) == 0 {
		args = []string{"--disable-dev-shm-usage", "--no-sandbox"}
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     args,
	}
	if cfg.ExecutablePath != "" {
		opts.ExecutablePath = playwright.String(cfg.ExecutablePath)
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launching chromium: %w", err)
	}

	logger.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Strings("args", args))
	return &Launcher{
		logger:  logger.Named("browser"),
		pw:      pw,
		browser: browser,
		cfg:     cfg,
	}, nil
}

// NewPage creates an isolated browser context with a single tab for one
// mission. Closing the returned page tears the context down with it.
func (l *Launcher) NewPage(ctx context.Context) (schemas.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browserCtx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	pwPage, err := browserCtx.NewPage()
	if err != nil {
		_ = browserCtx.Close()
		return nil, fmt.Errorf("creating page: %w", err)
	}

	navTimeout := l.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = defaultNavTimeout
	}
	pwPage.SetDefaultTimeout(float64(navTimeout.Milliseconds()))

	return &page{
		logger:     l.logger,
		ctx:        browserCtx,
		page:       pwPage,
		navTimeout: navTimeout,
	}, nil
}

// Close shuts the browser and stops playwright.
func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

// page adapts one playwright tab to the mission-facing contract. Playwright
// calls do not accept a context, so cancellation is honored at call
// boundaries the way the driver allows.
type page struct {
	logger     *zap.Logger
	ctx        playwright.BrowserContext
	page       playwright.Page
	navTimeout time.Duration
}

var _ schemas.Page = (*page)(nil)

func (p *page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   playwright.Float(float64(p.navTimeout.Milliseconds())),
	})
	return wrap(err)
}

func (p *page) URL() string {
	return p.page.URL()
}

func (p *page) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := p.page.Content()
	return content, wrap(err)
}

func (p *page) Evaluate(ctx context.Context, script string) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := p.page.Evaluate(script)
	return v, wrap(err)
}

func (p *page) Locator(selector string) schemas.Locator {
	return &locator{loc: p.page.Locator(selector)}
}

func (p *page) PressKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(p.page.Keyboard().Press(key))
}

func (p *page) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(false),
	})
	return wrap(err)
}

func (p *page) Close(ctx context.Context) error {
	_ = ctx
	if err := p.page.Close(); err != nil {
		p.logger.Warn("Closing page", zap.Error(err))
	}
	return wrap(p.ctx.Close())
}

// locator defers selector resolution to interaction time. First() narrows a
// multi-match to a single element, sidestepping strict-mode violations.
type locator struct {
	loc playwright.Locator
}

var _ schemas.Locator = (*locator)(nil)

func (l *locator) Click(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.loc.ScrollIntoViewIfNeeded(); err != nil {
		// Try the click anyway; some elements reject scrolling but accept it.
	}
	return wrap(l.loc.Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(timeoutMS(timeout)),
	}))
}

func (l *locator) Fill(ctx context.Context, text string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(l.loc.Fill(text, playwright.LocatorFillOptions{
		Timeout: playwright.Float(timeoutMS(timeout)),
	}))
}

func (l *locator) Press(ctx context.Context, key string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(l.loc.Press(key, playwright.LocatorPressOptions{
		Timeout: playwright.Float(timeoutMS(timeout)),
	}))
}

func (l *locator) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := l.loc.Count()
	return n, wrap(err)
}

func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err := l.loc.IsVisible()
	return v, wrap(err)
}

func (l *locator) IsEnabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	v, err := l.loc.IsEnabled()
	return v, wrap(err)
}

func (l *locator) InputValue(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := l.loc.InputValue()
	return v, wrap(err)
}

func (l *locator) GetAttribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := l.loc.GetAttribute(name)
	return v, wrap(err)
}

func (l *locator) First() schemas.Locator {
	return &locator{loc: l.loc.First()}
}

func timeoutMS(d time.Duration) float64 {
	if d <= 0 {
		d = defaultActionTimeout
	}
	return float64(d.Milliseconds())
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
