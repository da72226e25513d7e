package credential

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"sessionkeeper-go/internal/config"
	"sessionkeeper-go/internal/logging"
	"sessionkeeper-go/internal/monitoring"
	"sessionkeeper-go/internal/monitoring/tracing"
)

// unauthenticatedMarkers appear on the home page only for anonymous visitors.
var unauthenticatedMarkers = []string{"欢迎登录", "请登录", "登录京东"}

const maxValidityBody = 4 << 20

// Verdict is the result of checking one credential.
type Verdict struct {
	Username  string        `json:"username"`
	Valid     bool          `json:"valid"`
	Reason    string        `json:"reason,omitempty"`
	CheckedAt time.Time     `json:"checked_at"`
	Latency   time.Duration `json:"latency"`
	Cached    bool          `json:"cached"`
}

// ValidityChecker decides whether a stored credential still authenticates.
// Anything short of a positive answer is invalid.
type ValidityChecker interface {
	Check(ctx context.Context, cred Credential) Verdict
}

// HTTPValidityChecker fetches an authenticated page with the credential's
// cookies and looks for the anonymous-visitor signature. Requests are spaced
// by a rate limiter; positive verdicts are cached briefly.
type HTTPValidityChecker struct {
	url       string
	userAgent string
	order     []string
	client    *http.Client
	limiter   *rate.Limiter
	cache     *cache.Cache
	// Parallel bounds CheckAll fan-out. The limiter still spaces requests.
	Parallel int
}

// NewHTTPValidityChecker builds a checker from the refresh section of cfg.
// client may be nil.
func NewHTTPValidityChecker(cfg *config.Config, client *http.Client) *HTTPValidityChecker {
	rc := cfg.Refresh
	if client == nil {
		client = &http.Client{Timeout: rc.ValidityTimeout}
	}
	// Redirects are judged, not followed.
	c := *client
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	limit := rate.Inf
	if rc.ValidityInterval > 0 {
		limit = rate.Every(rc.ValidityInterval)
	}
	var positive *cache.Cache
	if rc.ValidityCacheTTL > 0 {
		positive = cache.New(rc.ValidityCacheTTL, 2*rc.ValidityCacheTTL)
	}
	return &HTTPValidityChecker{
		url:       rc.ValidityURL,
		userAgent: cfg.Browser.UserAgent,
		order:     cfg.Login.TokenNames,
		client:    &c,
		limiter:   rate.NewLimiter(limit, 1),
		cache:     positive,
		Parallel:  2,
	}
}

func (v *HTTPValidityChecker) Check(ctx context.Context, cred Credential) (verdict Verdict) {
	verdict = Verdict{Username: cred.Username, CheckedAt: time.Now()}
	blob := cred.Blob(v.order)
	key := cred.Username + "\x00" + blob
	if v.cache != nil {
		if _, ok := v.cache.Get(key); ok {
			verdict.Valid, verdict.Cached = true, true
			monitoring.RecordValidity(true, "cache")
			return verdict
		}
	}

	ctx, span := tracing.StartSpan(ctx, "credential", "validity.check",
		trace.WithAttributes(tracing.Account(logging.Account(cred.Username))))
	defer func() {
		span.SetAttributes(attribute.Bool("sessionkeeper.valid", verdict.Valid))
		span.End()
		monitoring.RecordValidity(verdict.Valid, "http")
		entry := logging.ForAccount(cred.Username).WithField("latency_ms", logging.DurationMS(verdict.Latency))
		if verdict.Valid {
			entry.Debug("credential valid")
		} else {
			entry.WithField("reason", verdict.Reason).Info("credential invalid")
		}
	}()

	if blob == "" {
		verdict.Reason = "empty credential"
		return verdict
	}
	if err := v.limiter.Wait(ctx); err != nil {
		verdict.Reason = fmt.Sprintf("rate limiter: %v", err)
		return verdict
	}
	start := time.Now()
	valid, reason := v.probe(ctx, blob)
	verdict.Latency = time.Since(start)
	verdict.Valid, verdict.Reason = valid, reason
	if valid && v.cache != nil {
		v.cache.SetDefault(key, struct{}{})
	}
	return verdict
}

func (v *HTTPValidityChecker) probe(ctx context.Context, blob string) (bool, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.url, nil)
	if err != nil {
		return false, err.Error()
	}
	req.Header.Set("Cookie", blob)
	req.Header.Set("User-Agent", v.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Sprintf("request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc := resp.Header.Get("Location")
		if isPassport(loc) {
			return false, "redirected to login"
		}
		return false, fmt.Sprintf("unexpected redirect to %q", loc)
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxValidityBody))
	if err != nil {
		return false, fmt.Sprintf("read body: %v", err)
	}
	content := string(body)
	for _, m := range unauthenticatedMarkers {
		if strings.Contains(content, m) {
			return false, "login prompt on page"
		}
	}
	return true, ""
}

func isPassport(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(u.Hostname()), "passport.")
}

// CheckAll checks every credential. It returns early only on cancellation.
func CheckAll(ctx context.Context, checker ValidityChecker, creds map[string]Credential, parallel int) (map[string]Verdict, error) {
	if parallel <= 0 {
		parallel = 1
	}
	var (
		mu  sync.Mutex
		out = make(map[string]Verdict, len(creds))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, cred := range creds {
		cred := cred
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v := checker.Check(gctx, cred)
			mu.Lock()
			out[cred.Username] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	log.WithField("checked", len(out)).Debug("credential validity sweep finished")
	return out, nil
}
