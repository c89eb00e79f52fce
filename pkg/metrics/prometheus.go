package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	reportsTotal *prometheus.CounterVec
	reportRows   *prometheus.GaugeVec
	excluded     *prometheus.CounterVec
	suppressed   *prometheus.CounterVec
	flagMismatch prometheus.Gauge
	cacheTotal   *prometheus.CounterVec
	published    *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

// New creates a recorder registered with the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector with reg. Tests pass a fresh registry.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_reports_generated_total",
				Help: "Report generations by outcome",
			},
			[]string{"report", "outcome"},
		),
		reportRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskpulse_report_rows",
				Help: "Rows in the latest generation of a report",
			},
			[]string{"report"},
		),
		excluded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_join_excluded_total",
				Help: "Loans dropped from a report because a joined dimension row is missing",
			},
			[]string{"report", "dimension"},
		),
		suppressed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_groups_suppressed_total",
				Help: "Groups dropped for falling below the report's minimum size",
			},
			[]string{"report"},
		),
		flagMismatch: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskpulse_flag_mismatch_loans",
				Help: "Loans in the current snapshot whose flags disagree with their status",
			},
		),
		cacheTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_report_cache_total",
				Help: "Report cache lookups by result",
			},
			[]string{"result"},
		),
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_reports_published_total",
				Help: "Reports sent to the export stream",
			},
			[]string{"report"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(r.reportsTotal, r.reportRows, r.excluded, r.suppressed, r.flagMismatch,
		r.cacheTotal, r.published, r.errorsTotal, r.latency)
	return r
}

// RecordReport records one successful generation.
func (r *Recorder) RecordReport(report string, rows, suppressed int, excluded map[string]int, took time.Duration) {
	r.reportsTotal.WithLabelValues(report, "ok").Inc()
	r.reportRows.WithLabelValues(report).Set(float64(rows))
	for dim, n := range excluded {
		r.excluded.WithLabelValues(report, dim).Add(float64(n))
	}
	if suppressed > 0 {
		r.suppressed.WithLabelValues(report).Add(float64(suppressed))
	}
	r.latency.WithLabelValues("report:" + report).Observe(took.Seconds())
}

// RecordReportFailure records a generation that produced no result.
func (r *Recorder) RecordReportFailure(report, reason string) {
	r.reportsTotal.WithLabelValues(report, reason).Inc()
}

func (r *Recorder) RecordFlagMismatch(n int) {
	r.flagMismatch.Set(float64(n))
}

func (r *Recorder) RecordCache(hit bool) {
	if hit {
		r.cacheTotal.WithLabelValues("hit").Inc()
		return
	}
	r.cacheTotal.WithLabelValues("miss").Inc()
}

func (r *Recorder) RecordPublished(report string) {
	r.published.WithLabelValues(report).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency.
func (r *Recorder) RecordLatency(op string, took time.Duration) {
	r.latency.WithLabelValues(op).Observe(took.Seconds())
}
