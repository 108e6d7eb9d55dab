package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the account lifecycle counters.
type Metrics struct {
	UsersCreated *prometheus.CounterVec
	UsersDeleted prometheus.Counter
}

// New creates and registers the account metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "projectdesk_users_created_total",
			Help: "Total number of users created, by role",
		}, []string{"role"}),
		UsersDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "projectdesk_users_deleted_total",
			Help: "Total number of users deleted",
		}),
	}
}

// IncrementUsersCreated increments the users created counter for role.
func (m *Metrics) IncrementUsersCreated(role string) {
	m.UsersCreated.WithLabelValues(role).Inc()
}

func (m *Metrics) IncrementUsersDeleted() {
	m.UsersDeleted.Inc()
}
