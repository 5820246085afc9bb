package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Logins     *prometheus.CounterVec
	PINChanges prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Logins: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pollbank_logins_total",
			Help: "Login attempts by kind (user, personnel) and outcome",
		}, []string{"kind", "outcome"}),
		PINChanges: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pollbank_pin_changes_total",
			Help: "Successful personnel PIN changes",
		}),
	}
}

func (m *Metrics) IncrementLogin(kind, outcome string) {
	m.Logins.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncrementPINChange() {
	m.PINChanges.Inc()
}
