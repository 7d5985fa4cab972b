package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nimburion/entitykit/pkg/apperror"
)

// OutcomeOK labels operations that returned no error. Failed operations are
// labelled with their error kind.
const OutcomeOK = "ok"

// PersistenceMetrics records entity operation counts and latencies. It
// satisfies persistence.OperationObserver.
type PersistenceMetrics struct {
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	events   *prometheus.CounterVec
}

// NewPersistenceMetrics creates and registers the persistence collectors.
func NewPersistenceMetrics(reg *Registry) *PersistenceMetrics {
	factory := promauto.With(reg.Registerer())
	return &PersistenceMetrics{
		// Labels: entity, operation
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entity_operation_duration_seconds",
				Help:    "Entity operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity", "operation"},
		),
		// Labels: entity, operation, outcome
		total: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entity_operations_total",
				Help: "Total number of entity operations",
			},
			[]string{"entity", "operation", "outcome"},
		),
		// Labels: entity, action, outcome
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entity_change_events_published_total",
				Help: "Total number of entity change events handed to the event bus",
			},
			[]string{"entity", "action", "outcome"},
		),
	}
}

// ObserveOperation records one completed operation.
func (m *PersistenceMetrics) ObserveOperation(entity, operation string, duration time.Duration, err error) {
	m.duration.WithLabelValues(entity, operation).Observe(duration.Seconds())
	m.total.WithLabelValues(entity, operation, outcome(err)).Inc()
}

// ObservePublish records one change event publication attempt.
func (m *PersistenceMetrics) ObservePublish(entity, action string, err error) {
	m.events.WithLabelValues(entity, action, outcome(err)).Inc()
}

func outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	return string(apperror.KindOf(err))
}
