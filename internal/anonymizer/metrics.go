package anonymizer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	// ResourcesTotal counts transformed resources by kind and outcome.
	ResourcesTotal *prometheus.CounterVec
	// WarningsTotal counts warnings by code.
	WarningsTotal *prometheus.CounterVec
	// TransformDuration observes per-resource transform latency by kind.
	TransformDuration *prometheus.HistogramVec
	// CacheEntries tracks cached pseudonyms per value class.
	CacheEntries *prometheus.GaugeVec
	// BatchesTotal counts AnonymizeBatch calls.
	BatchesTotal prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ResourcesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deid_resources_total",
			Help: "Total number of resources processed by kind and outcome",
		}, []string{"kind", "outcome"}),

		WarningsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "deid_warnings_total",
			Help: "Total number of anonymization warnings by code",
		}, []string{"code"}),

		TransformDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "deid_transform_duration_seconds",
			Help:    "Time spent transforming one resource",
			Buckets: []float64{.00005, .0001, .00025, .0005, .001, .0025, .005, .01, .05},
		}, []string{"kind"}),

		CacheEntries: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "deid_pseudonym_cache_entries",
			Help: "Current number of cached pseudonyms by value class",
		}, []string{"class"}),

		BatchesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "deid_batches_total",
			Help: "Total number of anonymization batches",
		}),
	}
}

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

func (m *Metrics) observe(kind Kind, err error, warns []Warning, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := outcomeSuccess
	if err != nil {
		outcome = outcomeFailure
	}
	m.ResourcesTotal.WithLabelValues(kind.String(), outcome).Inc()
	m.TransformDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	for _, w := range warns {
		m.WarningsTotal.WithLabelValues(string(w.Code)).Inc()
	}
}

func (m *Metrics) batch() {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
}

func (m *Metrics) setCache(stats CacheStats) {
	if m == nil {
		return
	}
	for class, n := range stats {
		m.CacheEntries.WithLabelValues(string(class)).Set(float64(n))
	}
}
