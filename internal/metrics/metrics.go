package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the workshop's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "windoorpvc",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "windoorpvc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "windoorpvc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "path"},
	)

	estimates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "windoorpvc",
			Subsystem: "pricing",
			Name:      "estimates_total",
			Help:      "Openings priced, by profile type.",
		},
		[]string{"profile"},
	)

	invoicesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "windoorpvc",
			Subsystem: "invoices",
			Name:      "issued_total",
			Help:      "Invoices created, by type.",
		},
		[]string{"type"},
	)

	paymentsAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "windoorpvc",
			Subsystem: "finance",
			Name:      "payments_amount_total",
			Help:      "Sum of recorded payments in DZD, by counterparty kind.",
		},
		[]string{"party"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "windoorpvc",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduled job runs.",
		},
		[]string{"job", "success"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "windoorpvc",
			Subsystem: "scheduler",
			Name:      "job_run_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"job"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		estimates,
		invoicesIssued,
		paymentsAmount,
		jobRuns,
		jobDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordEstimate counts a priced opening.
func RecordEstimate(profile string) {
	if profile == "" {
		profile = "unknown"
	}
	estimates.WithLabelValues(profile).Inc()
}

// RecordInvoice counts an issued invoice.
func RecordInvoice(kind string) {
	invoicesIssued.WithLabelValues(kind).Inc()
}

// RecordPayment adds amount to the payment total for party
// (client, supplier, worker, transporter).
func RecordPayment(party string, amount float64) {
	if amount <= 0 {
		return
	}
	paymentsAmount.WithLabelValues(party).Add(amount)
}

// RecordJob records one scheduled job run.
func RecordJob(job string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	jobRuns.WithLabelValues(job, strconv.FormatBool(success)).Inc()
	jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses record ids so label cardinality stays bounded:
// /api/v1/quotes/DEV-2026-0001/confirm becomes /api/v1/quotes/:id/confirm.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 || parts[0] != "api" {
		return "/" + parts[0]
	}
	// api, v1, resource, id, action
	if len(parts) > 5 {
		parts = parts[:5]
	}
	if len(parts) >= 4 && looksLikeID(parts[3]) {
		parts[3] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

func looksLikeID(s string) bool {
	for _, c := range s {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}
