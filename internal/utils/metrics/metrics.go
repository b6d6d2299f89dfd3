package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Generation task metrics
	TasksSubmittedTotal *prometheus.CounterVec
	TasksSettledTotal   *prometheus.CounterVec
	TaskSettleDuration  *prometheus.HistogramVec

	// Webhook metrics
	WebhooksTotal *prometheus.CounterVec

	// Ledger metrics
	LedgerEntriesTotal *prometheus.CounterVec
	TokensMovedTotal   *prometheus.CounterVec

	// Gate metrics
	AdmissionsDeniedTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith creates a Metrics instance registered on the given registerer.
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "artigen"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		TasksSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "submitted_total",
				Help:      "Total number of generation tasks submitted to providers",
			},
			[]string{"provider", "operation"},
		),
		TasksSettledTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "settled_total",
				Help:      "Total number of tasks that reached a terminal state",
			},
			[]string{"provider", "status"}, // status: completed, failed
		),
		TaskSettleDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "tasks",
				Name:      "settle_duration_seconds",
				Help:      "Time from submission to terminal state",
				Buckets:   []float64{1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"provider"},
		),

		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "webhooks",
				Name:      "received_total",
				Help:      "Total number of inbound webhooks",
			},
			[]string{"provider", "outcome"}, // outcome: applied, duplicate, rejected, unknown
		),

		LedgerEntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "entries_total",
				Help:      "Total number of ledger entries written",
			},
			[]string{"kind"}, // purchase, spend, refund, bonus, admin_adjust
		),
		TokensMovedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ledger",
				Name:      "tokens_moved_total",
				Help:      "Absolute token amounts moved per entry kind",
			},
			[]string{"kind"},
		),

		AdmissionsDeniedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gate",
				Name:      "admissions_denied_total",
				Help:      "Total number of generation attempts denied by the gate",
			},
			[]string{"reason"}, // blocked, rate_limited, validation_failed
		),
	}
}

// The Record helpers are nil-safe so modules can run without metrics
// in tests.

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordTaskSubmitted records one task submission.
func (m *Metrics) RecordTaskSubmitted(provider, operation string) {
	if m == nil {
		return
	}
	m.TasksSubmittedTotal.WithLabelValues(provider, operation).Inc()
}

// RecordTaskSettled records one terminal transition.
func (m *Metrics) RecordTaskSettled(provider, status string, sinceSubmit time.Duration) {
	if m == nil {
		return
	}
	m.TasksSettledTotal.WithLabelValues(provider, status).Inc()
	m.TaskSettleDuration.WithLabelValues(provider).Observe(sinceSubmit.Seconds())
}

// RecordWebhook records one inbound webhook.
func (m *Metrics) RecordWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordLedgerEntry records one written ledger entry.
func (m *Metrics) RecordLedgerEntry(kind string, amount int64) {
	if m == nil {
		return
	}
	if amount < 0 {
		amount = -amount
	}
	m.LedgerEntriesTotal.WithLabelValues(kind).Inc()
	m.TokensMovedTotal.WithLabelValues(kind).Add(float64(amount))
}

// RecordAdmissionDenied records one gate denial.
func (m *Metrics) RecordAdmissionDenied(reason string) {
	if m == nil {
		return
	}
	m.AdmissionsDeniedTotal.WithLabelValues(reason).Inc()
}
