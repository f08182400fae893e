// Package metrics provides Prometheus metrics for drivesync.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Sync run metrics
	syncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesync_runs_total",
			Help: "Total sync runs by final status",
		},
		[]string{"status"},
	)

	syncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "drivesync_run_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	syncRunsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "drivesync_runs_in_progress",
			Help: "Number of sync runs currently executing",
		},
	)

	syncFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesync_files_total",
			Help: "Files handled by sync runs, by outcome",
		},
		[]string{"outcome"},
	)

	syncStaleCandidates = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "drivesync_stale_candidates",
			Help: "Documents absent from the last complete walk, per tenant",
		},
		[]string{"tenant_id"},
	)

	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drivesync_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drivesync_auth_attempts_total",
			Help: "Total ops API authentication attempts",
		},
		[]string{"result"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RunStarted marks a run as executing.
func RunStarted() {
	syncRunsInProgress.Inc()
}

// RunCounts are the per-run totals reported when a run finishes.
type RunCounts struct {
	Scanned             int
	Added               int
	Updated             int
	NeedsClassification int
	Errors              int
}

// RunFinished records the outcome of a run started with RunStarted.
func RunFinished(status string, duration time.Duration, c RunCounts) {
	syncRunsInProgress.Dec()
	syncRunsTotal.WithLabelValues(status).Inc()
	syncRunDuration.Observe(duration.Seconds())

	syncFilesTotal.WithLabelValues("scanned").Add(float64(c.Scanned))
	syncFilesTotal.WithLabelValues("added").Add(float64(c.Added))
	syncFilesTotal.WithLabelValues("updated").Add(float64(c.Updated))
	syncFilesTotal.WithLabelValues("needs_classification").Add(float64(c.NeedsClassification))
	syncFilesTotal.WithLabelValues("error").Add(float64(c.Errors))
}

// SetStaleCandidates records the stale candidate count of a tenant's
// last complete walk.
func SetStaleCandidates(tenantID string, n int) {
	syncStaleCandidates.WithLabelValues(tenantID).Set(float64(n))
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAuthAttempt records an ops API authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// statusRecorder captures the response status for RecordHTTPRequest.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. route labels the
// request so path parameters do not explode label cardinality.
func Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}
