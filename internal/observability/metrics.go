package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "helpdesk"

// Sweep outcomes used as the result label of sweeps_total.
const (
	SweepResultSuccess = "success"
	SweepResultPartial = "partial"
	SweepResultFailed  = "failed"
	SweepResultTimeout = "timeout"
)

// Metrics holds the Prometheus collectors for HTTP traffic and the SLA sweep.
// All methods are safe on a nil receiver.
type Metrics struct {
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpErrors          *prometheus.CounterVec

	sweeps            *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	ticketsEvaluated  prometheus.Counter
	breachesDetected  prometheus.Counter
	sweepErrors       prometheus.Counter
	lastSweepFinished prometheus.Gauge
}

// NewMetrics registers collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method and status code",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		httpErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "HTTP requests answered with a domain error, by code",
			},
			[]string{"method", "route", "code"},
		),
		sweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "sweeps_total",
				Help:      "SLA monitoring sweeps by result",
			},
			[]string{"result"},
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "sweep_duration_seconds",
				Help:      "Wall time of one SLA monitoring sweep",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ticketsEvaluated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "tickets_evaluated_total",
				Help:      "Active tickets examined by SLA sweeps",
			},
		),
		breachesDetected: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "breaches_detected_total",
				Help:      "Tickets newly flagged as breached by SLA sweeps",
			},
		),
		sweepErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "sweep_errors_total",
				Help:      "Per-ticket failures during SLA sweeps",
			},
		),
		lastSweepFinished: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "sla",
				Name:      "last_sweep_timestamp_seconds",
				Help:      "Unix time the last SLA sweep finished",
			},
		),
	}
}

// RecordRequest observes one HTTP request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.httpErrors.WithLabelValues(method, route, code).Inc()
}

// SweepStats is the subset of a sweep summary exported as metrics.
type SweepStats struct {
	Result        string
	Duration      time.Duration
	Evaluated     int
	NewlyBreached int
	Errors        int
	FinishedAt    time.Time
}

// RecordSweep records the outcome of one SLA sweep.
func (m *Metrics) RecordSweep(stats SweepStats) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(stats.Result).Inc()
	m.sweepDuration.Observe(stats.Duration.Seconds())
	m.ticketsEvaluated.Add(float64(stats.Evaluated))
	m.breachesDetected.Add(float64(stats.NewlyBreached))
	m.sweepErrors.Add(float64(stats.Errors))
	m.lastSweepFinished.Set(float64(stats.FinishedAt.Unix()))
}
