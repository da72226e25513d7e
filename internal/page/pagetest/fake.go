// Package pagetest provides a scriptable in-memory page.Page for tests.
package pagetest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"sessionkeeper-go/internal/page"
)

// Page is a fake page. Elements are visible when present in Shown; hooks
// registered with OnClick run after the matching click and may mutate state.
type Page struct {
	mu sync.Mutex

	Shown     map[string]bool
	Texts     map[string]string
	Attrs     map[string]map[string]string
	Boxes     map[string]page.Rect
	Shots     map[string][]byte
	Evals     map[string]any
	Frames    map[string]*Page
	Body      string
	CookieJar []page.Cookie
	// Errs injects failures keyed by "op selector", e.g. "click #submit".
	Errs map[string]error

	clickHooks  map[string]func(*Page)
	navHook     func(*Page, string)
	dragHook    func(*Page, page.Point, []page.Step)
	clickAtHook func(*Page, page.Point)

	calls  []string
	values map[string]string
	closed bool
}

// New returns an empty page.
func New() *Page {
	return &Page{
		Shown:   map[string]bool{},
		Texts:   map[string]string{},
		Attrs:   map[string]map[string]string{},
		Boxes:   map[string]page.Rect{},
		Shots:   map[string][]byte{},
		Evals:   map[string]any{},
		Frames:  map[string]*Page{},
		Errs:    map[string]error{},

		clickHooks: map[string]func(*Page){},
		values:     map[string]string{},
	}
}

// Show marks selectors visible.
func (p *Page) Show(selectors ...string) {
	for _, s := range selectors {
		p.Shown[s] = true
	}
}

// Hide marks selectors invisible.
func (p *Page) Hide(selectors ...string) {
	for _, s := range selectors {
		delete(p.Shown, s)
	}
}

// OnClick registers fn to run after clicks on selector, or on text for ClickText.
func (p *Page) OnClick(selector string, fn func(*Page)) { p.clickHooks[selector] = fn }

// OnNavigate registers fn to run after Navigate.
func (p *Page) OnNavigate(fn func(*Page, string)) { p.navHook = fn }

// OnDrag registers fn to run after Drag.
func (p *Page) OnDrag(fn func(*Page, page.Point, []page.Step)) { p.dragHook = fn }

// OnClickAt registers fn to run after ClickAt.
func (p *Page) OnClickAt(fn func(*Page, page.Point)) { p.clickAtHook = fn }

// Calls returns the recorded call log.
func (p *Page) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Count returns how many recorded calls start with prefix.
func (p *Page) Count(prefix string) int {
	n := 0
	for _, c := range p.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Value returns what was filled or typed into selector.
func (p *Page) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[selector]
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) record(ctx context.Context, op, arg string) error {
	p.mu.Lock()
	p.calls = append(p.calls, strings.TrimSpace(op+" "+arg))
	err := p.Errs[op+" "+arg]
	p.mu.Unlock()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.record(ctx, "navigate", url); err != nil {
		return err
	}
	if p.navHook != nil {
		p.navHook(p, url)
	}
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, text string) error {
	if err := p.record(ctx, "fill", selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.values[selector] = text
	p.mu.Unlock()
	return nil
}

func (p *Page) Type(ctx context.Context, selector, text string, delay func() time.Duration) error {
	if err := p.record(ctx, "type", selector); err != nil {
		return err
	}
	for _, r := range text {
		_ = delay()
		p.mu.Lock()
		p.values[selector] += string(r)
		p.mu.Unlock()
	}
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.record(ctx, "click", selector); err != nil {
		return err
	}
	if fn := p.clickHooks[selector]; fn != nil {
		fn(p)
	}
	return nil
}

func (p *Page) ClickText(ctx context.Context, text string) error {
	if err := p.record(ctx, "clicktext", text); err != nil {
		return err
	}
	if fn := p.clickHooks[text]; fn != nil {
		fn(p)
	}
	return nil
}

func (p *Page) ClickAt(ctx context.Context, pt page.Point) error {
	if err := p.record(ctx, "clickat", fmt.Sprintf("%.1f,%.1f", pt.X, pt.Y)); err != nil {
		return err
	}
	if p.clickAtHook != nil {
		p.clickAtHook(p, pt)
	}
	return nil
}

func (p *Page) Drag(ctx context.Context, from page.Point, steps []page.Step) error {
	if err := p.record(ctx, "drag", fmt.Sprintf("%.1f,%.1f", from.X, from.Y)); err != nil {
		return err
	}
	if p.dragHook != nil {
		p.dragHook(p, from, steps)
	}
	return nil
}

func (p *Page) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if err := p.record(ctx, "screenshot", selector); err != nil {
		return nil, err
	}
	b, ok := p.Shots[selector]
	if !ok {
		return nil, page.ErrNotFound
	}
	return b, nil
}

// Evaluate returns Evals[script] JSON-round-tripped into out.
func (p *Page) Evaluate(ctx context.Context, script string, out any) error {
	if err := p.record(ctx, "evaluate", ""); err != nil {
		return err
	}
	v, ok := p.Evals[script]
	if !ok || out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// WaitForSelector never blocks: the element is Present or Absent at once.
func (p *Page) WaitForSelector(ctx context.Context, selector string, _ time.Duration) (page.State, error) {
	if err := p.record(ctx, "wait", selector); err != nil {
		return page.Error, err
	}
	if p.Shown[selector] {
		return page.Present, nil
	}
	return page.Absent, nil
}

func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	if err := p.record(ctx, "visible", selector); err != nil {
		return false, err
	}
	return p.Shown[selector], nil
}

func (p *Page) HasText(ctx context.Context, text string) (bool, error) {
	if err := p.record(ctx, "hastext", text); err != nil {
		return false, err
	}
	return strings.Contains(p.Body, text), nil
}

func (p *Page) Text(ctx context.Context, selector string) (string, error) {
	if err := p.record(ctx, "text", selector); err != nil {
		return "", err
	}
	s, ok := p.Texts[selector]
	if !ok {
		return "", page.ErrNotFound
	}
	return s, nil
}

func (p *Page) Attribute(ctx context.Context, selector, name string) (string, error) {
	if err := p.record(ctx, "attr", selector+"@"+name); err != nil {
		return "", err
	}
	v, ok := p.Attrs[selector][name]
	if !ok {
		return "", page.ErrNotFound
	}
	return v, nil
}

func (p *Page) BoundingBox(ctx context.Context, selector string) (page.Rect, error) {
	if err := p.record(ctx, "box", selector); err != nil {
		return page.Rect{}, err
	}
	r, ok := p.Boxes[selector]
	if !ok {
		return page.Rect{}, page.ErrNotFound
	}
	return r, nil
}

func (p *Page) Frame(ctx context.Context, selector string) (page.Page, error) {
	if err := p.record(ctx, "frame", selector); err != nil {
		return nil, err
	}
	f, ok := p.Frames[selector]
	if !ok {
		return nil, page.ErrNotFound
	}
	return f, nil
}

func (p *Page) Cookies(ctx context.Context) ([]page.Cookie, error) {
	if err := p.record(ctx, "cookies", ""); err != nil {
		return nil, err
	}
	return append([]page.Cookie(nil), p.CookieJar...), nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	p.calls = append(p.calls, "close")
	p.mu.Unlock()
	return nil
}

// Launcher hands out pages built by New, one per Launch.
type Launcher struct {
	mu    sync.Mutex
	New   func() *Page
	Err   error
	pages []*Page
}

func (l *Launcher) Launch(ctx context.Context) (page.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Err != nil {
		return nil, l.Err
	}
	p := l.New()
	l.mu.Lock()
	l.pages = append(l.pages, p)
	l.mu.Unlock()
	return p, nil
}

// Pages returns every page launched so far.
func (l *Launcher) Pages() []*Page {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Page(nil), l.pages...)
}
