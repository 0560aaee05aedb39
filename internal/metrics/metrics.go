// Package metrics keeps per-run Prometheus counters for the scan pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/digggggmori-pixel/agent-ferret-ioc/internal/search"
)

// Recorder holds the metrics of one scan run in a private registry
type Recorder struct {
	registry *prometheus.Registry

	// SearchRequests counts requests handed to each matcher.
	SearchRequests *prometheus.CounterVec
	// SearchHits counts evidence produced per modality.
	SearchHits *prometheus.CounterVec
	// SearchErrors counts scoped match errors.
	// Labels:
	//   - modality
	//   - kind: pattern, hash, io, os, privilege or unsupported
	SearchErrors *prometheus.CounterVec
	// SearchDuration measures how long each matcher ran
	SearchDuration *prometheus.HistogramVec
	// Confirmed is the number of IOCs confirmed by the last evaluation
	Confirmed prometheus.Gauge
	// IocsLoaded is the number of IOC definitions accepted for the run
	IocsLoaded prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		SearchRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ferret_ioc",
				Subsystem: "search",
				Name:      "requests_total",
				Help:      "Search requests handed to each modality matcher",
			},
			[]string{"modality"},
		),
		SearchHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ferret_ioc",
				Subsystem: "search",
				Name:      "hits_total",
				Help:      "Evidence records produced by each modality matcher",
			},
			[]string{"modality"},
		),
		SearchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ferret_ioc",
				Subsystem: "search",
				Name:      "errors_total",
				Help:      "Scoped match errors produced by each modality matcher",
			},
			[]string{"modality", "kind"},
		),
		SearchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ferret_ioc",
				Subsystem: "search",
				Name:      "duration_seconds",
				Help:      "Time spent in each modality matcher",
				// 1ms to ~30min, deep searches walk whole drives
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 11),
			},
			[]string{"modality"},
		),
		Confirmed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ferret_ioc",
			Name:      "confirmed",
			Help:      "IOCs confirmed by the last scan",
		}),
		IocsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "ferret_ioc",
			Name:      "iocs_loaded",
			Help:      "IOC definitions accepted for the last scan",
		}),
	}
}

// Registry exposes the private registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveSearch records one matcher run
func (r *Recorder) ObserveSearch(m search.Modality, requests int, outcomes []search.Outcome, took time.Duration) {
	mod := string(m)
	r.SearchRequests.WithLabelValues(mod).Add(float64(requests))
	r.SearchDuration.WithLabelValues(mod).Observe(took.Seconds())
	// make the hit series exist even when nothing matched
	hits := r.SearchHits.WithLabelValues(mod)
	for _, o := range outcomes {
		if o.OK() {
			hits.Inc()
			continue
		}
		if o.Err != nil {
			r.SearchErrors.WithLabelValues(mod, string(o.Err.Kind)).Inc()
		}
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
