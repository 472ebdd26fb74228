package tdauth

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tdauth"

// metrics are the worker collectors.  They are always updated, and exported
// only if registered, see WithMetrics.
type metrics struct {
	sessions   *prometheus.GaugeVec
	updates    *prometheus.CounterVec
	dispatches *prometheus.CounterVec
	replies    prometheus.Histogram
}

func newMetrics() *metrics {
	return &metrics{
		sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "sessions",
				Help:      "Live sessions by client state.",
			},
			[]string{"state"},
		),
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "updates_total",
				Help:      "Objects received from the engine by type.",
			},
			[]string{"type"},
		),
		dispatches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "dispatches_total",
				Help:      "Authorization state dispatches by state and result.",
			},
			[]string{"state", "result"},
		),
		replies: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "reply_seconds",
				Help:      "Time to the engine reply to an authorization request.",
				Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
	}
}

func (m *metrics) register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.sessions, m.updates, m.dispatches, m.replies} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *metrics) moved(from, to ClientState) {
	if from == to {
		return
	}
	m.sessions.WithLabelValues(from.String()).Dec()
	m.sessions.WithLabelValues(to.String()).Inc()
}

func (m *metrics) dispatched(state string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.dispatches.WithLabelValues(state, result).Inc()
}
