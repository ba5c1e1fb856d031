package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by method, path, and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "autoheal",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	IncidentsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "incidents_detected_total",
		Help:      "Total incidents created from alarms.",
	})

	ApprovalResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "approval_resolutions_total",
		Help:      "Approval resolution attempts by channel and outcome.",
	}, []string{"source", "outcome"})

	InconsistentApprovalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "inconsistent_approvals_total",
		Help:      "Approvals marked resolved whose workflow could not be released.",
	})

	HealingOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "healing_outcomes_total",
		Help:      "Healing dispatcher outcomes by action, mode, and status.",
	}, []string{"action", "mode", "status"})

	RunnerPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "runner_polls_total",
		Help:      "Automation runner status polls by observed job status.",
	}, []string{"status"})

	AnalysisFallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "analysis_fallbacks_total",
		Help:      "Analyses replaced by the deterministic fallback, by analysis type.",
	}, []string{"type"})

	AuditWriteFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "autoheal",
		Name:      "audit_write_failures_total",
		Help:      "Audit entries that could not be written, by component.",
	}, []string{"component"})
)

// Handler returns an http.Handler that serves the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware wraps an http.Handler to record request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		duration := time.Since(start).Seconds()

		path := normalizePath(r.URL.Path)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath drops resource ids from URL paths to bound label cardinality.
// Versioned paths keep two segments (/v1/alarms), others keep one (/approvals).
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	switch p {
	case "/healthz", "/readyz", "/metrics":
		return p
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	keep := 1
	if len(segments[0]) > 1 && segments[0][0] == 'v' {
		if _, err := strconv.Atoi(segments[0][1:]); err == nil {
			keep = 2
		}
	}
	if len(segments) > keep {
		segments = segments[:keep]
	}
	return "/" + strings.Join(segments, "/")
}
