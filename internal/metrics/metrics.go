// Package metrics exposes Prometheus collectors for the monitoring loop and
// an HTTP handler serving them.
package metrics

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values.
const (
	ResultOK        = "ok"
	ResultNotFound  = "not_found"
	ResultTransient = "transient"
	ResultFailed    = "failed"
	ResultFatal     = "fatal"
)

var (
	// Cycle Metrics
	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "story_bot_cycle_duration_seconds",
			Help:    "Duration of a full monitoring cycle in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	CyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "story_bot_cycles_total",
			Help: "Total number of monitoring cycles started, including skipped ones",
		},
	)

	TrackedAccounts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "story_bot_tracked_accounts",
			Help: "Distinct accounts checked in the last cycle",
		},
	)

	// Account Metrics
	AccountChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_bot_account_checks_total",
			Help: "Account checks by outcome",
		},
		[]string{"result"}, // "ok", "not_found", "transient"
	)

	AccountsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "story_bot_accounts_removed_total",
			Help: "Accounts removed after repeated not-found results",
		},
	)

	NewStories = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "story_bot_new_stories_total",
			Help: "Stories seen for the first time",
		},
	)

	// Delivery Metrics
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_bot_notifications_total",
			Help: "Notification sends by outcome",
		},
		[]string{"result"}, // "ok", "failed"
	)

	// Session Metrics
	SessionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "story_bot_session_checks_total",
			Help: "Session ensure attempts by outcome",
		},
		[]string{"result"}, // "ok", "failed", "fatal"
	)
)

// RecordCycle records a finished monitoring cycle.
func RecordCycle(duration time.Duration, accounts int) {
	CycleDuration.Observe(duration.Seconds())
	TrackedAccounts.Set(float64(accounts))
}

// RecordAccountCheck records the outcome of one account check.
func RecordAccountCheck(result string) {
	AccountChecks.WithLabelValues(result).Inc()
}

// RecordNotification records a single send attempt.
func RecordNotification(err error) {
	if err != nil {
		Notifications.WithLabelValues(ResultFailed).Inc()
		return
	}
	Notifications.WithLabelValues(ResultOK).Inc()
}

// RecordSessionCheck records the outcome of a session ensure call.
func RecordSessionCheck(result string) {
	SessionChecks.WithLabelValues(result).Inc()
}

// Handler serves /metrics and /healthz. The health endpoint answers 503
// while ready reports false.
func Handler(ready func() bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("session not ready\n"))
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}
