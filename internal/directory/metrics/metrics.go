package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for routing-code resolution and the
// external lookup client.
type Metrics struct {
	Resolutions       *prometheus.CounterVec
	LookupDuration    prometheus.Histogram
	LookupOutcomes    *prometheus.CounterVec
	LookupCacheHits   prometheus.Counter
	LookupCacheMisses prometheus.Counter
	BreakerState      prometheus.Gauge
}

// New creates a new Metrics instance with all directory metrics registered.
func New() *Metrics {
	return &Metrics{
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbank_routing_resolutions_total",
			Help: "Routing-code resolutions by outcome kind",
		}, []string{"kind"}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollbank_routing_lookup_duration_seconds",
			Help:    "Duration of calls to the external routing-code directory",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LookupOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbank_routing_lookup_outcomes_total",
			Help: "External routing-code lookups by outcome (found, not_found, error, short_circuit)",
		}, []string{"outcome"}),
		LookupCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pollbank_routing_lookup_cache_hits_total",
			Help: "Routing-code lookups answered from cache",
		}),
		LookupCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pollbank_routing_lookup_cache_misses_total",
			Help: "Routing-code lookups not found in cache",
		}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pollbank_routing_lookup_breaker_open",
			Help: "Lookup circuit breaker state (0=closed, 1=open)",
		}),
	}
}

func (m *Metrics) IncrementResolution(kind string) {
	m.Resolutions.WithLabelValues(kind).Inc()
}

// ObserveLookup records the duration of an external lookup call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveLookup(start time.Time, outcome string) {
	m.LookupDuration.Observe(time.Since(start).Seconds())
	m.LookupOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLookupOutcome(outcome string) {
	m.LookupOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementCacheHit() {
	m.LookupCacheHits.Inc()
}

func (m *Metrics) IncrementCacheMiss() {
	m.LookupCacheMisses.Inc()
}

func (m *Metrics) SetBreakerOpen(open bool) {
	if open {
		m.BreakerState.Set(1)
		return
	}
	m.BreakerState.Set(0)
}
