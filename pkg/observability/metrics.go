package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Domain counters, registered on the default registry so the permission
// and audit packages can increment them without threading a Metrics
// handle through every call site.
var (
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkbook_permission_checks_total",
			Help: "Total number of permission checks by outcome",
		},
		[]string{"outcome"},
	)

	PermissionDenials = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkbook_permission_denials_total",
			Help: "Total number of denied authorization attempts",
		},
	)

	AuditWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkbook_audit_writes_total",
			Help: "Total number of audit entries written",
		},
	)

	AuditWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkbook_audit_write_failures_total",
			Help: "Total number of audit entries that failed to persist",
		},
	)

	AuditDetailSerializationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "checkbook_audit_detail_serialization_failures_total",
			Help: "Total number of audit entries written with a null detail payload after a serialization failure",
		},
	)
)

// Metrics holds the HTTP-level Prometheus metrics
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the HTTP metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkbook_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "checkbook_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	if registry != nil {
		registry.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration)
	} else {
		prometheus.MustRegister(m.HTTPRequestsTotal, m.HTTPRequestDuration)
	}

	return m
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments an HTTP handler with request metrics
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start).Seconds()
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
	})
}

// MetricsHandler returns the Prometheus scrape handler for a registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	if registry != nil {
		return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}
