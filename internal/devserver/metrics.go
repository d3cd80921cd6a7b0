package devserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts session endpoint outcomes. A nil *Metrics records nothing.
type Metrics struct {
	sessions  *prometheus.CounterVec
	refreshes *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "sessions_created_total",
			Help:      "POST /sessions outcomes.",
		}, []string{"result"}),
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessiond",
			Name:      "refreshes_total",
			Help:      "POST /refresh outcomes.",
		}, []string{"result"}),
	}
}

func (m *Metrics) session(result string) {
	if m != nil {
		m.sessions.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) refresh(result string) {
	if m != nil {
		m.refreshes.WithLabelValues(result).Inc()
	}
}
