// Package page abstracts the browser automation the login flow needs. Each
// Launch yields an isolated browser owned by exactly one caller.
package page

import (
	"context"
	"errors"
	"time"
)

// State is the outcome of a bounded wait.
type State int

const (
	// Absent means the wait timed out without the element appearing.
	Absent State = iota
	Present
	// Error means the wait could not be completed; see the returned error.
	Error
)

func (s State) String() string {
	switch s {
	case Present:
		return "present"
	case Absent:
		return "absent"
	}
	return "error"
}

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("page: element not found")

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X, Y float64
}

// Step is one pointer move of a drag, followed by Pause.
type Step struct {
	Point
	Pause time.Duration
}

// Rect is an element's rendered box in viewport CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// Center returns the middle of r.
func (r Rect) Center() Point { return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2} }

// Cookie is a browser cookie.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Page is the automation capability. Selectors are CSS. Every call honours
// ctx cancellation and deadline.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// Fill replaces an input's value at once.
	Fill(ctx context.Context, selector, text string) error
	// Type sends text one character at a time, sleeping delay() between keys.
	Type(ctx context.Context, selector, text string, delay func() time.Duration) error
	Click(ctx context.Context, selector string) error
	// ClickText clicks the first visible element whose text equals text.
	ClickText(ctx context.Context, text string) error
	ClickAt(ctx context.Context, p Point) error
	// Drag presses the left button at from, moves through steps and releases.
	Drag(ctx context.Context, from Point, steps []Step) error
	// Screenshot captures the element's box as PNG.
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	// Evaluate runs a JS expression and decodes its JSON result into out.
	Evaluate(ctx context.Context, script string, out any) error
	// WaitForSelector waits up to timeout for a visible match.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (State, error)
	Visible(ctx context.Context, selector string) (bool, error)
	// HasText reports whether the rendered page contains text.
	HasText(ctx context.Context, text string) (bool, error)
	Text(ctx context.Context, selector string) (string, error)
	Attribute(ctx context.Context, selector, name string) (string, error)
	BoundingBox(ctx context.Context, selector string) (Rect, error)
	// Frame scopes subsequent calls to the document inside an iframe.
	Frame(ctx context.Context, selector string) (Page, error)
	Cookies(ctx context.Context) ([]Cookie, error)
	Close() error
}

// Launcher starts isolated browsers.
type Launcher interface {
	Launch(ctx context.Context) (Page, error)
}

// Options configures a Launcher.
type Options struct {
	Headless     bool
	Proxy        string
	UserAgent    string
	ExecPath     string
	WindowWidth  int
	WindowHeight int
	NavTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.WindowWidth <= 0 {
		o.WindowWidth = 1920
	}
	if o.WindowHeight <= 0 {
		o.WindowHeight = 1080
	}
	if o.NavTimeout <= 0 {
		o.NavTimeout = 60 * time.Second
	}
	return o
}
