// Package metrics holds the Prometheus collectors of the booking service.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

const namespace = "app_agenda"

type Metrics struct {
	// Operations counts booking writes and queue calls by operation and result.
	Operations *prometheus.CounterVec
	// SlotQueryDuration observes availability computation latency.
	SlotQueryDuration prometheus.Histogram
	// Notifications counts dispatched notifications by kind and result.
	Notifications *prometheus.CounterVec
	// SweeperRuns counts sweeper job runs and how many records they touched.
	SweeperRuns     *prometheus.CounterVec
	SweeperAffected *prometheus.CounterVec
}

// New registers every collector on reg. Passing a fresh prometheus.NewRegistry keeps tests isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking and queue operations by result",
		}, []string{"operation", "result"}),
		SlotQueryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "availability",
			Name:      "slot_query_seconds",
			Help:      "Time spent computing available slots",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "dispatched_total",
			Help:      "Owner notifications handed to the outbox",
		}, []string{"kind", "result"}),
		SweeperRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Sweeper job runs by result",
		}, []string{"job", "result"}),
		SweeperAffected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweeper",
			Name:      "affected_total",
			Help:      "Records changed by sweeper jobs",
		}, []string{"job"}),
	}
}

// Observe counts one operation. A nil receiver is a no-op so callers need no guards.
func (m *Metrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, Result(err)).Inc()
}

func (m *Metrics) ObserveSlotQuery(start time.Time) {
	if m == nil {
		return
	}
	m.SlotQueryDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveNotification(kind model.NotificationKind, err error) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(string(kind), Result(err)).Inc()
}

func (m *Metrics) ObserveSweep(job string, affected int, err error) {
	if m == nil {
		return
	}
	m.SweeperRuns.WithLabelValues(job, Result(err)).Inc()
	if affected > 0 {
		m.SweeperAffected.WithLabelValues(job).Add(float64(affected))
	}
}

// Result maps an error to a bounded label value.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrInactive):
		return "inactive"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, model.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, model.ErrLimitExceeded):
		return "limit_exceeded"
	case errors.Is(err, model.ErrDuplicateDate):
		return "duplicate_date"
	case errors.Is(err, model.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, model.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
