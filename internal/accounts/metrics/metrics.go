package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the record lifecycle: saves, verification changes and the
// directory enrichment that saves trigger.
type Metrics struct {
	Saves              *prometheus.CounterVec
	SaveDuration       prometheus.Histogram
	Verifications      *prometheus.CounterVec
	EnrichmentFailures *prometheus.CounterVec
	RefreshFailures    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Saves: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbank_account_saves_total",
			Help: "Account save attempts by outcome",
		}, []string{"outcome"}),
		SaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pollbank_account_save_duration_seconds",
			Help:    "End-to-end duration of the account save pipeline",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		Verifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbank_account_verification_changes_total",
			Help: "Verification changes by target state and outcome",
		}, []string{"target", "outcome"}),
		EnrichmentFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbank_directory_enrichment_failures_total",
			Help: "Bank or branch creations that failed during a save",
		}, []string{"step"}),
		RefreshFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pollbank_snapshot_refresh_failures_total",
			Help: "Post-mutation snapshot reloads that failed",
		}),
	}
}

// ObserveSave records a finished save. Call with time.Now() at the start of
// the operation.
func (m *Metrics) ObserveSave(start time.Time, outcome string) {
	m.SaveDuration.Observe(time.Since(start).Seconds())
	m.Saves.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementVerification(target bool, outcome string) {
	label := "unverified"
	if target {
		label = "verified"
	}
	m.Verifications.WithLabelValues(label, outcome).Inc()
}

func (m *Metrics) IncrementEnrichmentFailure(step string) {
	m.EnrichmentFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) IncrementRefreshFailure() {
	m.RefreshFailures.Inc()
}
