// Package monitoring exposes Prometheus metrics for the portal.
package monitoring

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chitfund_portal",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chitfund_portal",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route template.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	workflowTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chitfund_portal",
		Name:      "workflow_transitions_total",
		Help:      "Scheme workflow actions by step and action.",
	}, []string{"step", "action"})

	outboxJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chitfund_portal",
		Name:      "outbox_jobs_total",
		Help:      "Outbox job deliveries by job type and outcome.",
	}, []string{"job_type", "outcome"})

	loginAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chitfund_portal",
		Name:      "login_attempts_total",
		Help:      "Login attempts by outcome.",
	}, []string{"outcome"})
)

func init() {
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDuration,
		workflowTransitionsTotal,
		outboxJobsTotal,
		loginAttemptsTotal,
	)
}

var (
	// routesMu protects routes and routeTemplates
	routesMu       sync.RWMutex
	routes         = make(map[string]bool)
	routeTemplates = make([]string, 0)
)

// RegisterRoutes registers routes for label normalization. Templates use
// :id or {id} placeholders, e.g. "/api/v1/schemes/:id/workflow".
func RegisterRoutes(routesList []string) {
	routesMu.Lock()
	defer routesMu.Unlock()

	for _, route := range routesList {
		normalized := strings.ReplaceAll(route, "{id}", ":id")
		if strings.Contains(normalized, ":id") {
			routeTemplates = append(routeTemplates, normalized)
		} else {
			routes[route] = true
		}
	}
}

// resetRoutes clears registered routes. Tests only.
func resetRoutes() {
	routesMu.Lock()
	defer routesMu.Unlock()
	routes = make(map[string]bool)
	routeTemplates = make([]string, 0)
}

// normalizeRoute maps a request path onto its registered template so ids do
// not explode label cardinality. Unregistered paths collapse to "unknown".
func normalizeRoute(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	if trimmed == "" {
		return "/"
	}

	routesMu.RLock()
	defer routesMu.RUnlock()

	if routes[trimmed] {
		return trimmed
	}

	parts := strings.Split(strings.TrimPrefix(trimmed, "/"), "/")
	for _, template := range routeTemplates {
		if matchesTemplate(template, parts) {
			return template
		}
	}
	return "unknown"
}

func matchesTemplate(template string, pathParts []string) bool {
	templateParts := strings.Split(strings.TrimPrefix(template, "/"), "/")
	if len(pathParts) != len(templateParts) {
		return false
	}
	for i := range pathParts {
		if templateParts[i] == ":id" {
			continue
		}
		if pathParts[i] != templateParts[i] {
			return false
		}
	}
	return true
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware records request count and latency
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// RecordWorkflowTransition counts a workflow action on a step
func RecordWorkflowTransition(step, action string) {
	workflowTransitionsTotal.WithLabelValues(step, action).Inc()
}

// RecordOutboxJob counts an outbox delivery outcome (completed, retry, failed)
func RecordOutboxJob(jobType, outcome string) {
	outboxJobsTotal.WithLabelValues(jobType, outcome).Inc()
}

// RecordLoginAttempt counts a login outcome (success, failure, throttled)
func RecordLoginAttempt(outcome string) {
	loginAttemptsTotal.WithLabelValues(outcome).Inc()
}
