package authsdk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Sign-out reasons recorded by Metrics.
const (
	ReasonUser          = "user"
	ReasonPeer          = "peer"
	ReasonRefreshFailed = "refresh_failed"
	ReasonUnauthorized  = "unauthorized"
	ReasonInitFailed    = "init_failed"
)

// Metrics records refresh coordination and sign-outs. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	refreshInFlight prometheus.Gauge
	waiters         prometheus.Counter
	staleReplays    prometheus.Counter
	signOuts        *prometheus.CounterVec
}

// NewMetrics registers the session metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		refreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionkit",
				Subsystem: "refresh",
				Name:      "total",
				Help:      "Token refreshes by result.",
			},
			[]string{"result"},
		),
		refreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "sessionkit",
				Subsystem: "refresh",
				Name:      "duration_seconds",
				Help:      "Time from starting a refresh to settling its waiters.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		refreshInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sessionkit",
				Subsystem: "refresh",
				Name:      "in_flight",
				Help:      "1 while a refresh is running.",
			},
		),
		waiters: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sessionkit",
				Subsystem: "refresh",
				Name:      "waiters_total",
				Help:      "Requests that joined an in-flight refresh instead of starting one.",
			},
		),
		staleReplays: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "sessionkit",
				Subsystem: "refresh",
				Name:      "stale_replays_total",
				Help:      "Expired requests replayed with an already-refreshed token.",
			},
		),
		signOuts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sessionkit",
				Subsystem: "session",
				Name:      "sign_outs_total",
				Help:      "Sign-outs by reason.",
			},
			[]string{"reason"},
		),
	}
}

func (m *Metrics) refreshStarted() {
	if m == nil {
		return
	}
	m.refreshInFlight.Set(1)
}

func (m *Metrics) refreshFinished(ok bool, seconds float64) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.refreshes.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(seconds)
	m.refreshInFlight.Set(0)
}

func (m *Metrics) waiterJoined() {
	if m == nil {
		return
	}
	m.waiters.Inc()
}

func (m *Metrics) staleReplay() {
	if m == nil {
		return
	}
	m.staleReplays.Inc()
}

func (m *Metrics) signedOut(reason string) {
	if m == nil {
		return
	}
	m.signOuts.WithLabelValues(reason).Inc()
}
