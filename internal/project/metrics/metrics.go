package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Mutations        *prometheus.CounterVec
	MutationDuration *prometheus.HistogramVec
	NoopUpdates      prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projectdesk_project_mutations_total",
			Help: "Project mutations by operation and outcome",
		}, []string{"operation", "outcome"}),
		MutationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "projectdesk_project_mutation_duration_seconds",
			Help:    "End-to-end latency of project mutations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		NoopUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectdesk_project_noop_updates_total",
			Help: "Updates that changed no tracked field and recorded no audit entry",
		}),
	}
}

func (m *Metrics) ObserveMutation(operation, outcome string, seconds float64) {
	m.Mutations.WithLabelValues(operation, outcome).Inc()
	m.MutationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) IncNoopUpdates() {
	m.NoopUpdates.Inc()
}
