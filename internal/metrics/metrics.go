// Package metrics records run metrics for a reconciliation.
//
// Each Recorder owns its own registry so that a run (or a test) never sees
// another run's counts. CI jobs export the registry with WriteTextfile for the
// node-exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the run's collectors. All methods are safe to call on a nil
// receiver, which records nothing.
type Recorder struct {
	registry *prometheus.Registry

	actions        *prometheus.CounterVec
	cacheLookups   *prometheus.CounterVec
	generations    *prometheus.CounterVec
	generationTime prometheus.Histogram
	remoteDegraded prometheus.Gauge
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "velora_actions_total",
			Help: "Reconciliation actions by action and outcome.",
		}, []string{"action", "outcome"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "velora_cache_lookups_total",
			Help: "Generation cache lookups by the source that satisfied them.",
		}, []string{"source"}),
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "velora_generations_total",
			Help: "Generator invocations by result.",
		}, []string{"result"}),
		generationTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "velora_generation_seconds",
			Help:    "Generator call latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		remoteDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "velora_remote_cache_degraded",
			Help: "1 when the remote cache tier was unavailable during the run.",
		}),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Action counts one resolved action.
func (r *Recorder) Action(action, outcome string) {
	if r == nil {
		return
	}
	r.actions.WithLabelValues(action, outcome).Inc()
}

// CacheLookup counts a cache lookup satisfied by source.
func (r *Recorder) CacheLookup(source string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(source).Inc()
}

// Generation records one generator call.
func (r *Recorder) Generation(ok bool, elapsed time.Duration) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	r.generations.WithLabelValues(result).Inc()
	r.generationTime.Observe(elapsed.Seconds())
}

// RemoteDegraded marks the remote cache tier as unavailable.
func (r *Recorder) RemoteDegraded() {
	if r == nil {
		return
	}
	r.remoteDegraded.Set(1)
}

// WriteTextfile writes the registry in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
