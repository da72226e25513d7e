package page

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	log "github.com/sirupsen/logrus"
)

// ChromeLauncher starts a fresh headless Chrome per Launch via chromedp.
type ChromeLauncher struct {
	opts Options
}

func NewChromeLauncher(opts Options) *ChromeLauncher {
	return &ChromeLauncher{opts: opts.withDefaults()}
}

func (l *ChromeLauncher) allocatorOptions() []chromedp.ExecAllocatorOption {
	o := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	o = append(o,
		chromedp.Flag("headless", l.opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
		chromedp.WindowSize(l.opts.WindowWidth, l.opts.WindowHeight),
	)
	if l.opts.UserAgent != "" {
		o = append(o, chromedp.UserAgent(l.opts.UserAgent))
	}
	if l.opts.Proxy != "" {
		o = append(o, chromedp.ProxyServer(l.opts.Proxy))
	}
	if l.opts.ExecPath != "" {
		o = append(o, chromedp.ExecPath(l.opts.ExecPath))
	}
	return o
}

// Launch starts the browser. ctx bounds start-up only; once launched the
// browser lives until Close.
func (l *ChromeLauncher) Launch(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(log.Debugf))
	cancel := func() {
		tabCancel()
		allocCancel()
	}

	p := &chromePage{ctx: tabCtx, cancel: cancel, navTimeout: l.opts.NavTimeout}
	// The first Run allocates the browser and must use the target context
	// itself; a derived context would tear the browser down when it ends.
	stop := context.AfterFunc(ctx, cancel)
	err := chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(int64(l.opts.WindowWidth), int64(l.opts.WindowHeight), 1, false).Do(ctx)
	}))
	if !stop() {
		// ctx ended during start-up and the browser is already torn down.
		cancel()
		return nil, ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	return p, nil
}

type chromePage struct {
	// ctx is the chromedp target context; cancelling the root one closes the browser.
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
}

// run executes actions on the target, bounded by the caller's ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var c2 context.CancelFunc
		runCtx, c2 = context.WithDeadline(runCtx, dl)
		defer c2()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()
	return p.run(navCtx, chromedp.Navigate(url))
}

func (p *chromePage) Fill(ctx context.Context, selector, text string) error {
	return p.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (p *chromePage) Type(ctx context.Context, selector, text string, delay func() time.Duration) error {
	if err := p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery), chromedp.Focus(selector, chromedp.ByQuery)); err != nil {
		return err
	}
	for _, r := range text {
		if err := p.run(ctx, chromedp.SendKeys(selector, string(r), chromedp.ByQuery)); err != nil {
			return err
		}
		if err := sleep(ctx, delay()); err != nil {
			return err
		}
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) ClickText(ctx context.Context, text string) error {
	return p.run(ctx, chromedp.Click(textXPath(text), chromedp.BySearch, chromedp.NodeVisible))
}

func (p *chromePage) ClickAt(ctx context.Context, pt Point) error {
	return p.run(ctx, chromedp.MouseClickXY(pt.X, pt.Y))
}

func (p *chromePage) Drag(ctx context.Context, from Point, steps []Step) error {
	if err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := input.DispatchMouseEvent(input.MouseMoved, from.X, from.Y).Do(ctx); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MousePressed, from.X, from.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	})); err != nil {
		return err
	}
	last := from
	for _, s := range steps {
		last = s.Point
		err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, s.X, s.Y).WithButton(input.Left).Do(ctx)
		}))
		if err != nil {
			return err
		}
		if err := sleep(ctx, s.Pause); err != nil {
			return err
		}
	}
	return p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseReleased, last.X, last.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	}))
}

func (p *chromePage) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.Screenshot(selector, &buf, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *chromePage) Evaluate(ctx context.Context, script string, out any) error {
	return p.run(ctx, chromedp.Evaluate(script, out))
}

func (p *chromePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (State, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	switch {
	case err == nil:
		return Present, nil
	case ctx.Err() != nil:
		return Error, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return Absent, nil
	}
	return Error, err
}

func (p *chromePage) Visible(ctx context.Context, selector string) (bool, error) {
	var ok bool
	err := p.Evaluate(ctx, visibleScript(selector), &ok)
	return ok, err
}

func (p *chromePage) HasText(ctx context.Context, text string) (bool, error) {
	var ok bool
	err := p.Evaluate(ctx, hasTextScript(text), &ok)
	return ok, err
}

func (p *chromePage) Text(ctx context.Context, selector string) (string, error) {
	var s *string
	if err := p.Evaluate(ctx, textScript(selector), &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNotFound
	}
	return strings.TrimSpace(*s), nil
}

func (p *chromePage) Attribute(ctx context.Context, selector, name string) (string, error) {
	var s *string
	if err := p.Evaluate(ctx, attributeScript(selector, name), &s); err != nil {
		return "", err
	}
	if s == nil {
		return "", ErrNotFound
	}
	return *s, nil
}

func (p *chromePage) BoundingBox(ctx context.Context, selector string) (Rect, error) {
	var r *jsRect
	if err := p.Evaluate(ctx, boxScript(selector), &r); err != nil {
		return Rect{}, err
	}
	if r == nil {
		return Rect{}, ErrNotFound
	}
	return Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}, nil
}

// Frame attaches to the iframe's target. Cross-origin frames run out of
// process, so the lookup goes through the target list by URL.
func (p *chromePage) Frame(ctx context.Context, selector string) (Page, error) {
	src, err := p.Attribute(ctx, selector, "src")
	if err != nil {
		return nil, fmt.Errorf("frame %s: %w", selector, err)
	}
	targets, err := chromedp.Targets(p.ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	base := src
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	for _, t := range targets {
		if t.Type != "iframe" || base == "" || !strings.HasPrefix(t.URL, base) {
			continue
		}
		frameCtx, _ := chromedp.NewContext(p.ctx, chromedp.WithTargetID(t.TargetID))
		// Released with the parent browser.
		return &chromePage{ctx: frameCtx, cancel: func() {}, navTimeout: p.navTimeout}, nil
	}
	return nil, fmt.Errorf("frame %s: %w", selector, ErrNotFound)
}

func (p *chromePage) Cookies(ctx context.Context) ([]Cookie, error) {
	var out []Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
		}
		return nil
	}))
	return out, err
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
