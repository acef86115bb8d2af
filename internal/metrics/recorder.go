// Package metrics records categorization run counters in Prometheus form.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Advisory call and cache lookup results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultHit     = "hit"
	ResultMiss    = "miss"
)

// Category creation kinds.
const (
	KindOnDemand = "on_demand"
	KindDynamic  = "dynamic"
)

// Recorder holds the run's counters on a private registry. A nil *Recorder
// is valid and records nothing.
type Recorder struct {
	registry          *prometheus.Registry
	outcomes          *prometheus.CounterVec
	advisoryCalls     *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	categoriesCreated *prometheus.CounterVec
	proposals         prometheus.Counter
	runDuration       prometheus.Histogram
}

// NewRecorder registers all collectors on a fresh registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saffron_outcomes_total",
				Help: "Categorization outcomes by method; an empty method means review",
			},
			[]string{"method"},
		),
		advisoryCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saffron_advisory_calls_total",
				Help: "External advisory sub-batch calls by result",
			},
			[]string{"result"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saffron_cache_lookups_total",
				Help: "Suggestion cache lookups by result",
			},
			[]string{"result"},
		),
		categoriesCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "saffron_categories_created_total",
				Help: "Categories created during categorization by kind",
			},
			[]string{"kind"},
		),
		proposals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "saffron_category_proposals_total",
				Help: "Evidence increments recorded for proposed categories",
			},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "saffron_run_duration_seconds",
				Help:    "Wall time of a categorization run",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Outcome counts one outcome by method label.
func (r *Recorder) Outcome(method string) {
	if r == nil {
		return
	}
	if method == "" {
		method = "review"
	}
	r.outcomes.WithLabelValues(method).Inc()
}

// AdvisoryCall counts one sub-batch call.
func (r *Recorder) AdvisoryCall(ok bool) {
	if r == nil {
		return
	}
	result := ResultSuccess
	if !ok {
		result = ResultFailure
	}
	r.advisoryCalls.WithLabelValues(result).Inc()
}

// CacheLookup counts one cache lookup.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// CategoryCreated counts one created category.
func (r *Recorder) CategoryCreated(kind string) {
	if r == nil {
		return
	}
	r.categoriesCreated.WithLabelValues(kind).Inc()
}

// ProposalRecorded counts one persisted evidence increment.
func (r *Recorder) ProposalRecorded() {
	if r == nil {
		return
	}
	r.proposals.Inc()
}

// ObserveRun records a run's duration.
func (r *Recorder) ObserveRun(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
