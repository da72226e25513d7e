// Package refresh decides which accounts need a new login and drives those
// logins on a bounded pool, persisting and reporting each outcome as it
// completes.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"sessionkeeper-go/internal/account"
	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/credential"
	apperrors "sessionkeeper-go/internal/errors"
	"sessionkeeper-go/internal/events"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/login"
	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/monitoring/tracing"
	"sessionkeeper-go/internal/notify"
	"sessionkeeper-go/internal/page"
	"sessionkeeper-go/internal/storage"
)

// Deps are the collaborators of an Orchestrator. Notifier and Events are
// optional.
type Deps struct {
	Registry account.Registry
	Store    credential.Store
	Checker  credential.ValidityChecker
	Sessions *login.Builder
	Launcher page.Launcher
	Notifier notify.Notifier
	Events   events.Publisher
}

// Orchestrator runs refresh passes. It is safe for concurrent use; two passes
// never log the same account in at once.
type Orchestrator struct {
	cfg      *config.Config
	deps     Deps
	inflight *Inflight
	now      func() time.Time
}

func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("refresh: nil config")
	case deps.Registry == nil:
		return nil, errors.New("refresh: no account registry")
	case deps.Store == nil:
		return nil, errors.New("refresh: no credential store")
	case deps.Checker == nil:
		return nil, errors.New("refresh: no validity checker")
	case deps.Sessions == nil:
		return nil, errors.New("refresh: no login builder")
	case deps.Launcher == nil:
		return nil, errors.New("refresh: no browser launcher")
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	return &Orchestrator{cfg: cfg, deps: deps, inflight: NewInflight(), now: time.Now}, nil
}

// Plan is the input of one pass: the eligible accounts, the verdicts on
// their stored credentials, and the resulting work set.
type Plan struct {
	Accounts []account.Account
	Verdicts map[string]credential.Verdict
	// Stored holds the usernames with a credential in the store.
	Stored map[string]bool
	Work   []Item
}

// Plan reads the registry and the store and checks every stored credential
// of an eligible, non-forced account.
func (o *Orchestrator) Plan(ctx context.Context) (Plan, error) {
	var plan Plan
	accounts, err := o.listAccounts(ctx)
	if err != nil {
		return plan, err
	}
	plan.Accounts = account.Eligible(accounts)

	var creds map[string]credential.Credential
	err = bounded(ctx, func(ctx context.Context) error {
		var err error
		creds, err = o.deps.Store.GetAll(ctx)
		return err
	})
	if err != nil {
		return plan, apperrors.Transport("read credentials", err)
	}

	plan.Stored = make(map[string]bool, len(creds))
	for name := range creds {
		plan.Stored[name] = true
	}
	toCheck := make(map[string]credential.Credential, len(plan.Accounts))
	for _, a := range plan.Accounts {
		if c, ok := creds[a.Username]; ok && !a.ForceUpdate {
			toCheck[a.Username] = c
		}
	}
	plan.Verdicts, err = credential.CheckAll(ctx, o.deps.Checker, toCheck, o.checkParallel())
	if err != nil {
		return plan, err
	}
	plan.Work = ComputeWorkSet(plan.Accounts, creds, plan.Verdicts, o.cfg.RefreshAllWhenEmpty())
	return plan, nil
}

// Select builds a forced work set from the named accounts, skipping the
// validity sweep. Unknown names are an error; ineligible ones are skipped.
func (o *Orchestrator) Select(ctx context.Context, usernames []string) ([]Item, error) {
	accounts, err := o.listAccounts(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]account.Account, len(accounts))
	for _, a := range accounts {
		byName[a.Username] = a
	}
	var items []Item
	for _, name := range usernames {
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", account.ErrNotFound, name)
		}
		if !a.Eligible() {
			logging.ForAccount(name).WithField("status", a.Status).Warn("account not eligible, skipped")
			continue
		}
		items = append(items, Item{Account: a, Cause: CauseForced})
	}
	return ComputeWorkSet(accountsOf(items), nil, nil, false), nil
}

func accountsOf(items []Item) []account.Account {
	out := make([]account.Account, len(items))
	for i, it := range items {
		out[i] = it.Account
		out[i].ForceUpdate = true
	}
	return out
}

func (o *Orchestrator) listAccounts(ctx context.Context) ([]account.Account, error) {
	var accounts []account.Account
	err := bounded(ctx, func(ctx context.Context) error {
		var err error
		accounts, err = o.deps.Registry.ListAccounts(ctx, o.cfg.Enterprise)
		return err
	})
	if err != nil {
		return nil, apperrors.Transport("list accounts", err)
	}
	return accounts, nil
}

func (o *Orchestrator) checkParallel() int {
	if c, ok := o.deps.Checker.(*credential.HTTPValidityChecker); ok {
		return c.Parallel
	}
	return 1
}

// Run plans a pass and refreshes its work set. Only a failure to plan or a
// cancellation is returned as an error; account failures are outcomes.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	started := o.now()
	monitoring.RefreshRunsTotal.Inc()
	plan, err := o.Plan(ctx)
	if err != nil {
		log.WithError(err).Error("refresh planning failed")
		return Summary{Duration: time.Since(started)}, err
	}
	log.WithFields(log.Fields{
		"accounts": len(plan.Accounts),
		"checked":  len(plan.Verdicts),
		"work_set": len(plan.Work),
	}).Info("refresh planned")

	sum, err := o.RunItems(ctx, plan.Work)
	sum.Accounts = len(plan.Accounts)
	sum.Checked = len(plan.Verdicts)
	sum.Duration = time.Since(started)
	return sum, err
}

// RunItems refreshes items with at most refresh.concurrency logins at once.
// Each outcome is persisted and reported when its account finishes.
func (o *Orchestrator) RunItems(ctx context.Context, items []Item) (Summary, error) {
	runID := uuid.NewString()
	started := o.now()
	sum := Summary{RunID: runID, WorkSet: len(items)}
	monitoring.WorkSetSize.Set(float64(len(items)))

	ctx, span := tracing.StartSpan(ctx, "refresh", "refresh.run",
		trace.WithAttributes(attribute.String("sessionkeeper.run_id", runID), attribute.Int("sessionkeeper.work_set", len(items))))
	logger := log.WithField("run_id", runID)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	limit := o.cfg.Refresh.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			// Items that never started still count as canceled.
			mu.Lock()
			for _, rest := range items[i:] {
				sum.add(canceledOutcome(runID, rest, err, o.now()))
			}
			mu.Unlock()
			break
		}
		it := it
		g.Go(func() error {
			out := o.refreshOne(ctx, runID, it)
			mu.Lock()
			sum.add(out)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	err := ctx.Err()
	sum.Duration = time.Since(started)
	tracing.End(span, err)
	logger.WithFields(log.Fields{
		"work_set":    sum.WorkSet,
		"succeeded":   sum.Succeeded,
		"failed":      sum.Failed,
		"canceled":    sum.Canceled,
		"duration_ms": logging.DurationMS(sum.Duration),
	}).Info("refresh run finished")
	o.publish(context.WithoutCancel(ctx), events.TopicRunFinished, sum, map[string]string{"run_id": runID})
	return sum, err
}

func (o *Orchestrator) refreshOne(ctx context.Context, runID string, it Item) Outcome {
	out, shared, err := o.inflight.Do(ctx, it.Account.Username, func(ctx context.Context) Outcome {
		return o.attempt(ctx, runID, it)
	})
	if err != nil {
		out = canceledOutcome(runID, it, err, o.now())
	}
	out.Shared = shared
	return out
}

func canceledOutcome(runID string, it Item, err error, at time.Time) Outcome {
	return Outcome{RunID: runID, Username: it.Account.Username, Cause: it.Cause,
		Reason: apperrors.KindCanceled, Message: "canceled", Err: err, At: at}
}

// attempt is the per-account task boundary: whatever happens inside becomes
// an Outcome.
func (o *Orchestrator) attempt(ctx context.Context, runID string, it Item) Outcome {
	acct := it.Account
	started := o.now()
	logger := logging.ForAccount(acct.Username).WithFields(log.Fields{"run_id": runID, "cause": it.Cause})

	monitoring.SessionsInFlight.Inc()
	defer monitoring.SessionsInFlight.Dec()

	ctx, span := tracing.StartSpan(ctx, "refresh", "refresh.account",
		trace.WithAttributes(tracing.Account(logging.Account(acct.Username)), attribute.String("sessionkeeper.cause", string(it.Cause))))

	out := Outcome{RunID: runID, Username: acct.Username, Cause: it.Cause}
	res, err := o.login(ctx, acct)
	out.Missing = res.Missing
	if err == nil {
		err = o.persist(ctx, acct, res.Tokens)
	}
	tracing.End(span, err)

	out.At = o.now()
	out.Duration = out.At.Sub(started)
	out.Success = err == nil
	out.Err = err
	out.Reason = apperrors.KindOf(err)
	if class, ok := apperrors.ClassificationOf(err); ok {
		out.Classification = class
		o.applyNotice(ctx, acct, class, logger)
	}
	out.Message = message(out)
	monitoring.RecordOutcome(out.Success, string(out.Reason))

	entry := logger.WithField("duration_ms", logging.DurationMS(out.Duration))
	if out.Success {
		entry.Info("credential refreshed")
	} else {
		entry.WithError(err).WithField("reason", out.Reason).Warn("credential refresh failed")
	}

	// A canceled attempt is reported by the next run, not notified.
	if out.Reason != apperrors.KindCanceled {
		nctx := context.WithoutCancel(ctx)
		if nerr := o.deps.Notifier.Notify(nctx, acct, out.Success, out.Message); nerr != nil {
			entry.WithError(nerr).Debug("notify failed")
		}
	}
	o.publish(context.WithoutCancel(ctx), events.TopicRefreshOutcome, out, map[string]string{"run_id": runID, "account": acct.Username})
	return out
}

// login runs one session on a fresh browser, closed before returning.
func (o *Orchestrator) login(ctx context.Context, acct account.Account) (login.Result, error) {
	p, err := o.deps.Launcher.Launch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return login.Result{}, ctx.Err()
		}
		return login.Result{}, apperrors.Wrap(apperrors.KindPage, err, "launch browser")
	}
	defer func() {
		if cerr := p.Close(); cerr != nil {
			logging.ForAccount(acct.Username).WithError(cerr).Debug("close browser")
		}
	}()
	return o.deps.Sessions.Session(acct).Run(ctx, p)
}

// persist writes the new token set and clears a stale non-normal status.
func (o *Orchestrator) persist(ctx context.Context, acct account.Account, tokens map[string]string) error {
	cred := credential.Credential{Username: acct.Username, Tokens: tokens, UpdatedAt: o.now()}
	err := bounded(ctx, func(ctx context.Context) error {
		return o.deps.Store.Set(ctx, cred)
	})
	if err != nil {
		return apperrors.Transport("store credential", err)
	}
	if acct.Status != account.StatusNormal {
		o.setStatus(ctx, acct, account.StatusNormal, logging.ForAccount(acct.Username))
	}
	return nil
}

func (o *Orchestrator) applyNotice(ctx context.Context, acct account.Account, class apperrors.Classification, logger *log.Entry) {
	status, ok := account.StatusFor(class)
	if !ok || status == acct.Status {
		return
	}
	o.setStatus(ctx, acct, status, logger)
}

// setStatus is best effort: the login outcome stands even if the registry
// write fails.
func (o *Orchestrator) setStatus(ctx context.Context, acct account.Account, status account.Status, logger *log.Entry) {
	ctx = context.WithoutCancel(ctx)
	err := bounded(ctx, func(ctx context.Context) error {
		return o.deps.Registry.UpdateStatus(ctx, acct.Username, status)
	})
	if err != nil {
		logger.WithError(err).WithField("status", status).Error("account status update failed")
		return
	}
	logger.WithFields(log.Fields{"from": acct.Status, "to": status}).Info("account status changed")
	o.publish(ctx, events.TopicAccountStatus, StatusChange{Username: acct.Username, From: acct.Status, To: status},
		map[string]string{"account": acct.Username})
}

// StatusChange is the payload of events.TopicAccountStatus.
type StatusChange struct {
	Username string         `json:"username"`
	From     account.Status `json:"from"`
	To       account.Status `json:"to"`
}

// bounded runs a registry or store call under the storage timeout.
func bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := storage.WithTimeout(ctx, storage.DefaultTimeout)
	defer cancel()
	return fn(ctx)
}

func (o *Orchestrator) publish(ctx context.Context, topic string, payload any, meta map[string]string) {
	if o.deps.Events == nil {
		return
	}
	o.deps.Events.Publish(ctx, topic, payload, meta)
}

func message(out Outcome) string {
	if out.Success {
		if len(out.Missing) > 0 {
			return fmt.Sprintf("credential refreshed, optional tokens missing: %v", out.Missing)
		}
		return "credential refreshed"
	}
	switch out.Reason {
	case apperrors.KindNoticeRejected:
		switch out.Classification {
		case apperrors.PasswordError:
			return "refresh failed: wrong password"
		case apperrors.Banned:
			return "refresh failed: account under risk control, disabled until cleared"
		}
		return fmt.Sprintf("refresh failed: login rejected (%v)", out.Err)
	case apperrors.KindChallengeAbandoned:
		return "refresh failed: captcha not solved"
	case apperrors.KindCodeTimeout, apperrors.KindCodeFormat, apperrors.KindCodeSource:
		return fmt.Sprintf("refresh failed: verification code unavailable (%v)", out.Err)
	case apperrors.KindIncompleteToken:
		return fmt.Sprintf("refresh failed: %v", out.Err)
	}
	return fmt.Sprintf("refresh failed: %v", out.Err)
}
