// Package metrics exposes validation counters and latencies to Prometheus.
//
// Safe for concurrent use by multiple goroutines.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rezonia/invoice-auditor/internal/model"
)

// Metric names
const (
	Namespace                = "invoice_auditor"
	MetricValidationsTotal   = "invoice_auditor_validations_total"
	MetricDiscrepanciesTotal = "invoice_auditor_discrepancies_total"
	MetricValidationDuration = "invoice_auditor_validation_duration_seconds"
	MetricRulesReloadsTotal  = "invoice_auditor_rules_reloads_total"
	ReloadResultSuccess      = "success"
	ReloadResultFailure      = "failure"
)

// Recorder owns a private registry and the auditor's collectors
type Recorder struct {
	registry *prometheus.Registry

	validations   *prometheus.CounterVec
	discrepancies *prometheus.CounterVec
	duration      prometheus.Histogram
	reloads       *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry, including Go runtime collectors
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "validations_total",
			Help:      "Invoices validated, by final status.",
		}, []string{"status"}),
		discrepancies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "discrepancies_total",
			Help:      "Discrepancies reported, by kind and resolved severity.",
		}, []string{"kind", "severity"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent validating a single invoice.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rules_reloads_total",
			Help:      "Rule set reload attempts, by result.",
		}, []string{"result"}),
	}

	r.registry.MustRegister(
		r.validations,
		r.discrepancies,
		r.duration,
		r.reloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveValidation records one finished validation
func (r *Recorder) ObserveValidation(status model.Status, ds []model.Discrepancy, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.validations.WithLabelValues(string(status)).Inc()
	for _, d := range ds {
		r.discrepancies.WithLabelValues(string(d.Kind), string(d.Severity)).Inc()
	}
	r.duration.Observe(elapsed.Seconds())
}

// ObserveReload records a rule reload attempt
func (r *Recorder) ObserveReload(err error) {
	if r == nil {
		return
	}
	if err != nil {
		r.reloads.WithLabelValues(ReloadResultFailure).Inc()
		return
	}
	r.reloads.WithLabelValues(ReloadResultSuccess).Inc()
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
