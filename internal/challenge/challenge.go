// Package challenge drives the visual puzzle gates of the login flow. A
// Solver owns one challenge kind and loops through
// AwaitingChallenge → Analyzing → Acting → Verifying until the widget goes
// away or the retry budget runs out.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/config"
	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/page"
)

// Kind names a challenge family.
type Kind string

const (
	KindSlider            Kind = "slider"
	KindColorShape        Kind = "color-shape"
	KindOrderedCharacters Kind = "ordered-characters"
	// KindSelection covers both click challenges; the prompt decides which
	// one a given instance is.
	KindSelection Kind = "selection"
)

// State is a Solver state.
type State int

const (
	Idle State = iota
	AwaitingChallenge
	Analyzing
	Acting
	Verifying
	Resolved
	Abandoned
)

var stateNames = [...]string{"idle", "awaiting_challenge", "analyzing", "acting", "verifying", "resolved", "abandoned"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrLowConfidence marks an analysis that produced an answer not worth submitting.
var ErrLowConfidence = errors.New("challenge: low confidence")

// Options tunes a Solver.
type Options struct {
	// RetryBudget caps analysis attempts per Solve. Zero uses 5.
	RetryBudget int
	// AwaitTimeout bounds each wait for the widget. Zero uses 5s.
	AwaitTimeout time.Duration
	// DelayMin and DelayMax bound the pause after each interaction.
	DelayMin time.Duration
	DelayMax time.Duration

	Rand   *rand.Rand
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *log.Entry
}

// OptionsFromConfig maps the challenge section of the configuration.
func OptionsFromConfig(c config.ChallengeConfig) Options {
	return Options{
		RetryBudget:  c.RetryBudget,
		AwaitTimeout: c.AwaitTimeout,
		DelayMin:     c.DelayMin,
		DelayMax:     c.DelayMax,
	}
}

func (o Options) withDefaults() Options {
	if o.RetryBudget <= 0 {
		o.RetryBudget = 5
	}
	if o.AwaitTimeout <= 0 {
		o.AwaitTimeout = 5 * time.Second
	}
	if o.DelayMax < o.DelayMin {
		o.DelayMax = o.DelayMin
	}
	if o.Rand == nil {
		o.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Logger == nil {
		o.Logger = log.NewEntry(log.StandardLogger())
	}
	return o
}

// plan is what Acting performs: either a drag or a run of clicks.
type plan struct {
	dragFrom page.Point
	drag     []page.Step
	clicks   []page.Point
	// confirm is clicked after the clicks, when set.
	confirm string
}

// handler is the kind-specific half of a Solver.
type handler interface {
	kind() Kind
	// widget is the selector whose visibility means the challenge is live.
	widget() string
	analyze(ctx context.Context, p page.Page, s *Solver) (plan, error)
	// refresh asks the widget for a new puzzle after a failed analysis.
	refresh(ctx context.Context, p page.Page) error
}

// Result describes a finished Solve.
type Result struct {
	Kind  Kind
	State State
	// Triggered is false when the widget never appeared.
	Triggered bool
	Attempts  int
}

// Solver drives one challenge kind to completion. It is not safe for
// concurrent Solve calls; each login session builds its own.
type Solver struct {
	h    handler
	opts Options

	mu    sync.Mutex
	state State
	trace []State
}

func newSolver(h handler, opts Options) *Solver {
	return &Solver{h: h, opts: opts.withDefaults()}
}

// Kind returns the challenge family the solver handles.
func (s *Solver) Kind() Kind { return s.h.kind() }

// State returns the current state.
func (s *Solver) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trace returns every state entered by the last Solve, in order.
func (s *Solver) Trace() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.trace...)
}

func (s *Solver) enter(st State) {
	s.mu.Lock()
	s.state = st
	s.trace = append(s.trace, st)
	s.mu.Unlock()
}

// Solve runs the state machine against p. A widget that never shows up is
// Resolved with Triggered false. Exhausting the budget returns a
// ChallengeAbandoned error alongside the Abandoned result.
func (s *Solver) Solve(ctx context.Context, p page.Page) (Result, error) {
	s.mu.Lock()
	s.state, s.trace = Idle, []State{Idle}
	s.mu.Unlock()

	res := Result{Kind: s.h.kind()}
	logger := s.opts.Logger.WithField("challenge", s.h.kind())

	for {
		s.enter(AwaitingChallenge)
		st, err := p.WaitForSelector(ctx, s.h.widget(), s.opts.AwaitTimeout)
		switch st {
		case page.Error:
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			return res, apperrors.Wrap(apperrors.KindPage, err, "await challenge")
		case page.Absent:
			s.enter(Resolved)
			res.State = Resolved
			if res.Triggered {
				monitoring.RecordChallengeAttempt(string(s.h.kind()), "resolved")
				logger.WithField("attempts", res.Attempts).Info("challenge passed")
			}
			return res, nil
		}
		res.Triggered = true

		if res.Attempts >= s.opts.RetryBudget {
			s.enter(Abandoned)
			res.State = Abandoned
			monitoring.RecordChallengeAttempt(string(s.h.kind()), "abandoned")
			logger.WithField("attempts", res.Attempts).Warn("challenge abandoned")
			return res, apperrors.ChallengeAbandoned(res.Attempts)
		}
		res.Attempts++
		attemptLog := logger.WithField("attempt", res.Attempts)

		s.enter(Analyzing)
		pl, err := s.h.analyze(ctx, p, s)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			monitoring.RecordChallengeAttempt(string(s.h.kind()), "unanswered")
			attemptLog.WithError(err).Info("no answer, refreshing challenge")
			if rerr := s.h.refresh(ctx, p); rerr != nil && ctx.Err() == nil {
				attemptLog.WithError(rerr).Debug("challenge refresh failed")
			}
			if err := s.pause(ctx); err != nil {
				return res, err
			}
			continue
		}

		s.enter(Acting)
		if err := s.act(ctx, p, pl); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			monitoring.RecordChallengeAttempt(string(s.h.kind()), "action_failed")
			attemptLog.WithError(err).Info("challenge interaction failed")
			continue
		}

		s.enter(Verifying)
		visible, err := p.Visible(ctx, s.h.widget())
		if err != nil && ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err == nil && !visible {
			s.enter(Resolved)
			res.State = Resolved
			monitoring.RecordChallengeAttempt(string(s.h.kind()), "resolved")
			attemptLog.Info("challenge passed")
			return res, nil
		}
		monitoring.RecordChallengeAttempt(string(s.h.kind()), "rejected")
		attemptLog.Info("challenge still visible, retrying")
	}
}

func (s *Solver) act(ctx context.Context, p page.Page, pl plan) error {
	if len(pl.drag) > 0 {
		if err := p.Drag(ctx, pl.dragFrom, pl.drag); err != nil {
			return fmt.Errorf("drag: %w", err)
		}
		return s.pause(ctx)
	}
	for _, pt := range pl.clicks {
		if err := p.ClickAt(ctx, pt); err != nil {
			return fmt.Errorf("click %.0f,%.0f: %w", pt.X, pt.Y, err)
		}
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	if pl.confirm != "" {
		if err := p.Click(ctx, pl.confirm); err != nil {
			return fmt.Errorf("confirm: %w", err)
		}
		return s.pause(ctx)
	}
	return nil
}

// pause sleeps a random duration in [DelayMin, DelayMax].
func (s *Solver) pause(ctx context.Context) error {
	return s.opts.Sleep(ctx, s.between(s.opts.DelayMin, s.opts.DelayMax))
}

func (s *Solver) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.opts.Rand.Int63n(int64(hi-lo)+1))
}

func (s *Solver) float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Rand.Float64()
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
