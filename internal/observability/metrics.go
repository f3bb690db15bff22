// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hansheng-openbits/mbs-mock-sub001/internal/amortization"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/domain"
	"github.com/hansheng-openbits/mbs-mock-sub001/internal/trigger"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "waterfall"

// Metrics holds all Prometheus metrics for the engine.
// It implements simulation.Recorder and orchestrator.PathObserver.
type Metrics struct {
	namespace string
	reg       prometheus.Registerer

	// Period metrics
	PeriodsSimulated   *prometheus.CounterVec
	SolverIterations   prometheus.Histogram
	SolverNonConverged *prometheus.CounterVec
	SolverOverridden   *prometheus.CounterVec
	PACBusted          *prometheus.CounterVec
	InterestShortfalls *prometheus.CounterVec

	// Trigger metrics
	TriggerTransitions *prometheus.CounterVec

	// Path metrics
	PathsTotal   *prometheus.CounterVec
	PathDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		namespace: namespace,
		reg:       reg,

		// Period metrics
		PeriodsSimulated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulation",
			Name:      "periods_total",
			Help:      "Total number of periods simulated by deal",
		}, []string{"deal"}),
		SolverIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "iterations",
			Help:      "Fixed-point iterations per period",
			Buckets:   []float64{1, 2, 3, 4, 5, 7, 10, 15, 25, 50},
		}),
		SolverNonConverged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "non_converged_total",
			Help:      "Periods whose dynamic rate did not converge (override mode only)",
		}, []string{"deal"}),
		SolverOverridden: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solver",
			Name:      "overridden_total",
			Help:      "Periods allocated with a static override rate",
		}, []string{"deal"}),
		PACBusted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "pac_busted_total",
			Help:      "Tranche periods with a PAC outside its collar",
		}, []string{"deal", "tranche"}),
		InterestShortfalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "allocation",
			Name:      "interest_shortfall_periods_total",
			Help:      "Tranche periods ending with unpaid interest",
		}, []string{"deal", "tranche"}),

		// Trigger metrics
		TriggerTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "transitions_total",
			Help:      "Trigger status transitions by target status",
		}, []string{"deal", "trigger", "to"}),

		// Path metrics
		PathsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "paths",
			Name:      "total",
			Help:      "Scenario paths finished by status",
		}, []string{"deal", "status"}),
		PathDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "paths",
			Name:      "duration_seconds",
			Help:      "Scenario path wall time in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"deal"}),
	}
}

// RegisterCache exposes amortization cache statistics as gauges read on scrape.
func (m *Metrics) RegisterCache(c *amortization.Cache) {
	factory := promauto.With(m.reg)
	gauge := func(name, help string, read func(amortization.Stats) float64) {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: m.namespace,
			Subsystem: "cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return read(c.Stats()) })
	}
	gauge("hits", "Amortization cache hits", func(s amortization.Stats) float64 { return float64(s.Hits) })
	gauge("misses", "Amortization cache misses", func(s amortization.Stats) float64 { return float64(s.Misses) })
	gauge("evictions", "Amortization cache evictions", func(s amortization.Stats) float64 { return float64(s.Evictions) })
	gauge("size", "Amortization factors currently cached", func(s amortization.Stats) float64 { return float64(s.Size) })
	gauge("hit_ratio", "Amortization cache hits over lookups", func(s amortization.Stats) float64 { return s.HitRate() })
}

// PeriodCompleted records one finished period.
func (m *Metrics) PeriodCompleted(dealID string, res *domain.PeriodResult) {
	m.PeriodsSimulated.WithLabelValues(dealID).Inc()

	diag := res.Diagnostics
	m.SolverIterations.Observe(float64(diag.Iterations))
	if !diag.Converged {
		m.SolverNonConverged.WithLabelValues(dealID).Inc()
	}
	if diag.Overridden {
		m.SolverOverridden.WithLabelValues(dealID).Inc()
	}

	for i := range res.Tranches {
		cf := &res.Tranches[i]
		if cf.Busted {
			m.PACBusted.WithLabelValues(dealID, cf.TrancheID).Inc()
		}
		if cf.InterestShortfall.IsPositive() {
			m.InterestShortfalls.WithLabelValues(dealID, cf.TrancheID).Inc()
		}
	}
}

// TriggerTransition records a trigger changing status.
func (m *Metrics) TriggerTransition(dealID string, tr trigger.Transition) {
	m.TriggerTransitions.WithLabelValues(dealID, tr.TriggerID, string(tr.To)).Inc()
}

// PathFinished records a path's outcome and wall time.
func (m *Metrics) PathFinished(dealID string, elapsed time.Duration, err error) {
	status := domain.RunStatusCompleted
	if err != nil {
		status = domain.RunStatusFailed
	}
	m.PathsTotal.WithLabelValues(dealID, status).Inc()
	m.PathDuration.WithLabelValues(dealID).Observe(elapsed.Seconds())
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns an HTTP handler serving a specific registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
