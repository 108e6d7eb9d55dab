package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers audit recording and outbox publishing.
type Metrics struct {
	EntriesRecorded   *prometheus.CounterVec
	WriteFailures     prometheus.Counter
	WriteDuration     prometheus.Histogram
	EventsPublished   prometheus.Counter
	PublishFailures   prometheus.Counter
	RelayBatchLatency prometheus.Histogram
}

// New registers the audit metrics on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projectdesk_audit_entries_recorded_total",
			Help: "Audit entries appended, by action",
		}, []string{"action"}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectdesk_audit_write_failures_total",
			Help: "Audit appends that failed and aborted their mutation",
		}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "projectdesk_audit_write_duration_seconds",
			Help:    "Latency of audit appends",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		EventsPublished: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectdesk_audit_events_published_total",
			Help: "Outbox messages delivered to Kafka",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectdesk_audit_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
		RelayBatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "projectdesk_audit_relay_batch_duration_seconds",
			Help:    "Time to drain one outbox batch",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) IncRecorded(action string) {
	m.EntriesRecorded.WithLabelValues(action).Inc()
}

func (m *Metrics) IncWriteFailures() {
	m.WriteFailures.Inc()
}

func (m *Metrics) ObserveWriteDuration(seconds float64) {
	m.WriteDuration.Observe(seconds)
}

func (m *Metrics) AddPublished(n int) {
	m.EventsPublished.Add(float64(n))
}

func (m *Metrics) IncPublishFailures() {
	m.PublishFailures.Inc()
}

func (m *Metrics) ObserveRelayBatch(seconds float64) {
	m.RelayBatchLatency.Observe(seconds)
}
