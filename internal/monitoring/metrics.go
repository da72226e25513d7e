package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 刷新结果（每个账号每次运行一条）
	RefreshOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionkeeper_refresh_outcomes_total",
			Help: "Per-account refresh outcomes by result and failure kind",
		},
		[]string{"result", "kind"},
	)

	RefreshRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionkeeper_refresh_runs_total",
			Help: "Total number of orchestration runs",
		},
	)

	WorkSetSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionkeeper_work_set_size",
			Help: "Accounts selected for refresh in the latest run",
		},
	)

	LoginDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessionkeeper_login_duration_seconds",
			Help:    "Wall time of one login session",
			Buckets: []float64{5, 10, 20, 30, 60, 90, 120, 180, 300},
		},
		[]string{"kind", "result"},
	)

	// 同时运行的浏览器会话数
	SessionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessionkeeper_sessions_inflight",
			Help: "Login sessions currently holding a browser",
		},
	)

	ChallengeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionkeeper_challenge_attempts_total",
			Help: "Challenge solve attempts by challenge kind and step result",
		},
		[]string{"challenge", "result"},
	)

	CodeAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionkeeper_code_acquisitions_total",
			Help: "Verification code acquisitions by mode and result",
		},
		[]string{"mode", "result"},
	)

	ValidityChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionkeeper_validity_checks_total",
			Help: "Credential validity checks by verdict and source",
		},
		[]string{"verdict", "source"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessionkeeper_store_operation_duration_seconds",
			Help:    "Credential store and account registry operation latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		},
		[]string{"backend", "operation", "status"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionkeeper_notifications_total",
			Help: "Outbound notifications by channel and status",
		},
		[]string{"channel", "status"},
	)

	// 运维接口（/metrics、/healthz、/refresh）
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessionkeeper_http_requests_total",
			Help: "Ops API requests by method, route and status class",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessionkeeper_http_request_duration_seconds",
			Help:    "Ops API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status_class"},
	)

	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sessionkeeper_http_rate_limited_total",
			Help: "Ops API requests rejected by the rate limiter",
		},
	)
)

// RecordOutcome counts one account outcome. kind is empty on success.
func RecordOutcome(success bool, kind string) {
	result := "failure"
	if success {
		result = "success"
		kind = "none"
	}
	if kind == "" {
		kind = "unknown"
	}
	RefreshOutcomesTotal.WithLabelValues(result, kind).Inc()
}

func RecordLogin(kind string, success bool, d time.Duration) {
	LoginDuration.WithLabelValues(kind, resultLabel(success)).Observe(d.Seconds())
}

func RecordChallengeAttempt(challenge, result string) {
	ChallengeAttemptsTotal.WithLabelValues(challenge, result).Inc()
}

func RecordCodeAcquisition(mode string, err error) {
	CodeAcquisitionsTotal.WithLabelValues(mode, resultLabel(err == nil)).Inc()
}

// RecordValidity counts a verdict; source is "http" or "cache".
func RecordValidity(valid bool, source string) {
	verdict := "invalid"
	if valid {
		verdict = "valid"
	}
	ValidityChecksTotal.WithLabelValues(verdict, source).Inc()
}

func RecordNotification(channel string, err error) {
	NotificationsTotal.WithLabelValues(channel, resultLabel(err == nil)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
