// Package login drives one login attempt on the passport page:
// credentials, challenge gate, code gate, notice check and token capture.
package login

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/challenge"
	"sessionkeeper-go/internal/config"
	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/monitoring/tracing"
	"sessionkeeper-go/internal/otp"
	"sessionkeeper-go/internal/page"
)

// State is a Session state.
type State int

const (
	Start State = iota
	CredentialsEntered
	ChallengeGate
	CodeGate
	NoticeCheck
	AwaitingToken
	Success
	Failed
)

var stateNames = [...]string{"start", "credentials_entered", "challenge_gate", "code_gate", "notice_check", "awaiting_token", "success", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Solver is a challenge gate. *challenge.Solver satisfies it.
type Solver interface {
	Solve(ctx context.Context, p page.Page) (challenge.Result, error)
}

// Result is the outcome of one Session.Run.
type Result struct {
	State State
	// Tokens holds the captured session tokens by name.
	Tokens map[string]string
	// Missing lists configured token names the page did not set.
	Missing []string
	Notice  string
	// Err is the failure reason when State is Failed.
	Err error
}

// Reason returns the failure kind, empty on success.
func (r Result) Reason() apperrors.Kind { return apperrors.KindOf(r.Err) }

// Session runs the login state machine for one account on one page. It is
// single use.
type Session struct {
	cfg     *config.Config
	sel     config.SelectorsConfig
	acct    account.Account
	solvers []Solver
	codes   otp.Provider
	rnd     *rand.Rand
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *log.Entry

	mu    sync.Mutex
	state State
	trace []State
}

// Options tunes a Session. Zero values use defaults.
type Options struct {
	Rand  *rand.Rand
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSession builds a session. solvers run in order at the challenge gate;
// codes may be nil when no code source is configured.
func NewSession(cfg *config.Config, acct account.Account, solvers []Solver, codes otp.Provider, opts Options) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Session{
		cfg:     cfg,
		sel:     cfg.Login.Selectors,
		acct:    acct,
		solvers: solvers,
		codes:   codes,
		rnd:     opts.Rand,
		sleep:   opts.Sleep,
		logger:  logging.ForAccount(acct.Username),
		state:   Start,
		trace:   []State{Start},
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.sleep == nil {
		s.sleep = sleep
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Trace returns every state entered so far.
func (s *Session) Trace() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.trace...)
}

func (s *Session) enter(st State) {
	s.mu.Lock()
	s.state = st
	s.trace = append(s.trace, st)
	s.mu.Unlock()
	s.logger.WithField("state", st).Debug("login state")
}

// Run drives p from the login page to a captured token set. The returned
// error equals Result.Err; only cancellation should abort a refresh run.
func (s *Session) Run(ctx context.Context, p page.Page) (res Result, err error) {
	started := time.Now()
	ctx, span := tracing.StartSpan(ctx, "login", "login.session", traceAttrs(s.acct)...)
	defer func() {
		tracing.End(span, err)
		monitoring.RecordLogin(string(s.acct.Kind), err == nil, time.Since(started))
	}()

	res, err = s.run(ctx, p)
	if err != nil {
		s.enter(Failed)
		res.State = Failed
		res.Err = err
		s.logger.WithError(err).WithField("reason", apperrors.KindOf(err)).
			WithField("duration_ms", logging.DurationMS(time.Since(started))).Warn("login failed")
		return res, err
	}
	s.enter(Success)
	res.State = Success
	s.logger.WithField("tokens", len(res.Tokens)).
		WithField("duration_ms", logging.DurationMS(time.Since(started))).Info("login succeeded")
	return res, nil
}

func (s *Session) run(ctx context.Context, p page.Page) (Result, error) {
	var res Result
	if err := p.Navigate(ctx, s.cfg.Login.URL); err != nil {
		return res, pageErr(ctx, err, "open login page")
	}

	// Tagged kind, dispatched once.
	switch s.acct.Kind {
	case account.KindFederated:
		if err := s.federated(ctx, p); err != nil {
			return res, err
		}
	default:
		if err := s.standard(ctx, p); err != nil {
			return res, err
		}
	}
	s.enter(CredentialsEntered)

	s.enter(ChallengeGate)
	if err := s.challenges(ctx, p); err != nil {
		return res, err
	}

	if err := s.codeGates(ctx, p); err != nil {
		return res, err
	}

	s.enter(NoticeCheck)
	notice, err := s.notice(ctx, p)
	if err != nil {
		return res, err
	}
	if notice != "" {
		res.Notice = notice
		class := Classify(notice)
		s.logger.WithField("notice", notice).WithField("classification", class).Warn("login rejected by notice")
		return res, apperrors.NoticeRejected(class, notice)
	}

	s.enter(AwaitingToken)
	tokens, missing, err := s.awaitTokens(ctx, p)
	res.Tokens, res.Missing = tokens, missing
	return res, err
}

func (s *Session) challenges(ctx context.Context, p page.Page) error {
	for _, solver := range s.solvers {
		r, err := solver.Solve(ctx, p)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if r.Triggered {
			s.logger.WithField("challenge", r.Kind).WithField("attempts", r.Attempts).Info("challenge gate passed")
		}
	}
	return nil
}

// awaitTokens waits for the landing marker and extracts the configured tokens.
func (s *Session) awaitTokens(ctx context.Context, p page.Page) (map[string]string, []string, error) {
	st, err := p.WaitForSelector(ctx, s.sel.Landing, s.cfg.Login.LandingTimeout)
	switch st {
	case page.Error:
		return nil, nil, pageErr(ctx, err, "await landing")
	case page.Absent:
		return nil, nil, apperrors.New(apperrors.KindPage, "landing %q not reached within %s", s.sel.Landing, s.cfg.Login.LandingTimeout)
	}
	cookies, err := p.Cookies(ctx)
	if err != nil {
		return nil, nil, pageErr(ctx, err, "read cookies")
	}
	tokens, missing := ExtractTokens(cookies, s.cfg.Login.TokenNames)
	if len(missing) > 0 {
		s.logger.WithField("missing", missing).Warn("landing did not set every token")
	}
	if absent := MissingRequired(tokens, s.cfg.Login.RequiredTokens); len(absent) > 0 {
		return tokens, missing, apperrors.IncompleteToken(absent)
	}
	return tokens, missing, nil
}

// typeDelay is the pause between simulated key presses.
func (s *Session) typeDelay() time.Duration {
	lo, hi := s.cfg.Login.TypeDelayMin, s.cfg.Login.TypeDelayMax
	if hi <= lo {
		return lo
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo + time.Duration(s.rnd.Int63n(int64(hi-lo)))
}

func (s *Session) settle(ctx context.Context) error {
	return s.sleep(ctx, time.Second)
}

// pageErr wraps a page failure, passing cancellation through untouched.
func pageErr(ctx context.Context, err error, op string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return apperrors.Wrap(apperrors.KindPage, err, op)
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
