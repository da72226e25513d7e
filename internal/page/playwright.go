package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	log "github.com/sirupsen/logrus"
)

// PlaywrightLauncher drives Chromium through playwright-go. The driver
// process is started on first use and shared; browsers are not.
type PlaywrightLauncher struct {
	opts Options

	once sync.Once
	pw   *playwright.Playwright
	err  error
}

func NewPlaywrightLauncher(opts Options) *PlaywrightLauncher {
	return &PlaywrightLauncher{opts: opts.withDefaults()}
}

func (l *PlaywrightLauncher) driver() (*playwright.Playwright, error) {
	l.once.Do(func() {
		l.pw, l.err = playwright.Run()
		if l.err != nil {
			l.err = fmt.Errorf("start playwright: %w", l.err)
		}
	})
	return l.pw, l.err
}

// Close stops the shared driver process if it was started.
func (l *PlaywrightLauncher) Close() error {
	if l.pw == nil {
		return nil
	}
	return l.pw.Stop()
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.driver()
	if err != nil {
		return nil, err
	}
	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     []string{"--disable-blink-features=AutomationControlled"},
	}
	if l.opts.Proxy != "" {
		launch.Proxy = &playwright.Proxy{Server: l.opts.Proxy}
	}
	if l.opts.ExecPath != "" {
		launch.ExecutablePath = playwright.String(l.opts.ExecPath)
	}
	browser, err := pw.Chromium.Launch(launch)
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	ctxOpts := playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: l.opts.WindowWidth, Height: l.opts.WindowHeight},
	}
	if l.opts.UserAgent != "" {
		ctxOpts.UserAgent = playwright.String(l.opts.UserAgent)
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("new browser context: %w", err)
	}
	pg, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	p := &pwPage{
		page:       pg,
		bctx:       bctx,
		browser:    browser,
		navTimeout: l.opts.NavTimeout,
		locate:     func(sel string) playwright.Locator { return pg.Locator(sel) },
		eval:       func(script string) (interface{}, error) { return pg.Evaluate(script) },
	}
	return p, nil
}

// pwPage has no context plumbing of its own; calls are bounded by timeouts
// derived from ctx, and Close aborts anything in flight.
type pwPage struct {
	page       playwright.Page
	bctx       playwright.BrowserContext
	browser    playwright.Browser
	navTimeout time.Duration

	locate func(selector string) playwright.Locator
	eval   func(script string) (interface{}, error)
}

const defaultActionTimeout = 30 * time.Second

// timeoutMS converts the ctx deadline into playwright's millisecond timeout.
func timeoutMS(ctx context.Context, max time.Duration) *float64 {
	d := max
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}

func (p *pwPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   timeoutMS(ctx, p.navTimeout),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

func (p *pwPage) Fill(ctx context.Context, selector, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locate(selector).First().Fill(text, playwright.LocatorFillOptions{Timeout: timeoutMS(ctx, defaultActionTimeout)})
}

func (p *pwPage) Type(ctx context.Context, selector, text string, delay func() time.Duration) error {
	loc := p.locate(selector).First()
	if err := loc.Click(playwright.LocatorClickOptions{Timeout: timeoutMS(ctx, defaultActionTimeout)}); err != nil {
		return err
	}
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := loc.PressSequentially(string(r), playwright.LocatorPressSequentiallyOptions{Timeout: timeoutMS(ctx, defaultActionTimeout)}); err != nil {
			return err
		}
		if err := sleep(ctx, delay()); err != nil {
			return err
		}
	}
	return nil
}

func (p *pwPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.locate(selector).First().Click(playwright.LocatorClickOptions{Timeout: timeoutMS(ctx, defaultActionTimeout)})
}

func (p *pwPage) ClickText(ctx context.Context, text string) error {
	return p.Click(ctx, "text="+jsString(text))
}

func (p *pwPage) ClickAt(ctx context.Context, pt Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Mouse().Click(pt.X, pt.Y)
}

func (p *pwPage) Drag(ctx context.Context, from Point, steps []Step) error {
	m := p.page.Mouse()
	if err := m.Move(from.X, from.Y); err != nil {
		return err
	}
	if err := m.Down(); err != nil {
		return err
	}
	for _, s := range steps {
		if err := m.Move(s.X, s.Y); err != nil {
			return err
		}
		if err := sleep(ctx, s.Pause); err != nil {
			_ = m.Up()
			return err
		}
	}
	return m.Up()
}

func (p *pwPage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.locate(selector).First().Screenshot(playwright.LocatorScreenshotOptions{Timeout: timeoutMS(ctx, defaultActionTimeout)})
}

func (p *pwPage) Evaluate(ctx context.Context, script string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v, err := p.eval(script)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode evaluate result: %w", err)
	}
	return json.Unmarshal(raw, out)
}

func (p *pwPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (State, error) {
	if err := ctx.Err(); err != nil {
		return Error, err
	}
	err := p.locate(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMS(ctx, timeout),
	})
	switch {
	case err == nil:
		return Present, nil
	case ctx.Err() != nil:
		return Error, ctx.Err()
	case errors.Is(err, playwright.ErrTimeout):
		return Absent, nil
	}
	log.WithError(err).WithField("selector", selector).Debug("wait for selector failed")
	return Error, err
}

func (p *pwPage) Visible(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.Evaluate(ctx, visibleScript(selector), &ok)
	return ok, err
}

func (p *pwPage) HasText(ctx context.Context, text string) (bool, error) {
	var ok bool
	err := p.Evaluate(ctx, hasTextScript(text), &ok)
	return ok, err
}

func (p *pwPage) Text(ctx context.Context, selector string) (string, error) {
	var s *string
	if err := p.Evaluate(ctx, textScript(selector), &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNotFound
	}
	return strings.TrimSpace(*s), nil
}

func (p *pwPage) Attribute(ctx context.Context, selector, name string) (string, error) {
	var s *string
	if err := p.Evaluate(ctx, attributeScript(selector, name), &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNotFound
	}
	return *s, nil
}

func (p *pwPage) BoundingBox(ctx context.Context, selector string) (Rect, error) {
	var r *jsRect
	if err := p.Evaluate(ctx, boxScript(selector), &r); err != nil {
		return Rect{}, err
	}
	if r == nil {
		return Rect{}, ErrNotFound
	}
	return Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, nil
}

func (p *pwPage) Frame(ctx context.Context, selector string) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	handle, err := p.locate(selector).First().ElementHandle(playwright.LocatorElementHandleOptions{Timeout: timeoutMS(ctx, defaultActionTimeout)})
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", selector, err)
	}
	frame, err := handle.ContentFrame()
	if err != nil || frame == nil {
		return nil, fmt.Errorf("frame %s: %w", selector, ErrNotFound)
	}
	return &pwPage{
		page:       p.page,
		bctx:       p.bctx,
		navTimeout: p.navTimeout,
		locate:     func(sel string) playwright.Locator { return frame.Locator(sel) },
		eval:       func(script string) (interface{}, error) { return frame.Evaluate(script) },
	}, nil
}

func (p *pwPage) Cookies(ctx context.Context) ([]Cookie, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cookies, err := p.bctx.Cookies()
	if err != nil {
		return nil, err
	}
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return out, nil
}

// Close is a no-op on frame views.
func (p *pwPage) Close() error {
	if p.browser == nil {
		return nil
	}
	_ = p.bctx.Close()
	return p.browser.Close()
}
