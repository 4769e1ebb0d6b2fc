// Package metrics exposes Prometheus counters for card mutations and
// persistence.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "figured_"

// Metrics bundles the application metrics. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MutationsTotal   *prometheus.CounterVec
	StoreErrorsTotal *prometheus.CounterVec
	SaveLatency      prometheus.Histogram
	ResolveFailures  prometheus.Counter
	Cards            prometheus.Gauge
	ReferenceCities  prometheus.Gauge
}

// New constructs the metrics on a registry of their own.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "mutations_total",
				Help: "Total card mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		StoreErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_errors_total",
				Help: "Total persistence failures by operation",
			},
			[]string{"op"},
		),
		SaveLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "store_save_duration_seconds",
			Help:    "State save duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		ResolveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "zone_resolve_failures_total",
			Help: "Total timezone ids that could not be resolved",
		}),
		Cards: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "cards",
			Help: "Number of cards in the collection",
		}),
		ReferenceCities: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "reference_cities",
			Help: "Number of cities in the reference table",
		}),
	}
	m.registry.MustRegister(
		m.MutationsTotal,
		m.StoreErrorsTotal,
		m.SaveLatency,
		m.ResolveFailures,
		m.Cards,
		m.ReferenceCities,
		collectors.NewGoCollector(),
	)
	return m
}

// Mutation counts one mutation attempt.
func (m *Metrics) Mutation(op, outcome string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op, outcome).Inc()
}

// StoreError counts one failed load or save.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.StoreErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveSave records how long a save took.
func (m *Metrics) ObserveSave(d time.Duration) {
	if m == nil {
		return
	}
	m.SaveLatency.Observe(d.Seconds())
}

// ResolveFailed counts a zone that failed to resolve.
func (m *Metrics) ResolveFailed() {
	if m == nil {
		return
	}
	m.ResolveFailures.Inc()
}

// SetCards records the current number of cards.
func (m *Metrics) SetCards(n int) {
	if m == nil {
		return
	}
	m.Cards.Set(float64(n))
}

// SetReferenceCities records the size of the reference table.
func (m *Metrics) SetReferenceCities(n int) {
	if m == nil {
		return
	}
	m.ReferenceCities.Set(float64(n))
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
