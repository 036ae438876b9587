// Package store defines the persistence contract of the booking service. Every mutation runs
// inside ReadWrite, a serializable transaction that the implementation retries on conflict.
package store

import (
	"context"
	"time"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

// AppointmentFilter narrows owner listings. Zero values mean "any".
type AppointmentFilter struct {
	Date   string
	Status model.AppointmentStatus
	Limit  int
}

type Reader interface {
	GetService(ctx context.Context, businessID, serviceID string) (model.Service, error)
	// GetAvailability returns an empty Availability when the business has not configured one.
	GetAvailability(ctx context.Context, businessID string) (model.Availability, error)
	GetException(ctx context.Context, businessID, date string) (model.Exception, bool, error)
	// ListAppointmentsByDate lists one business day; an empty status lists every status.
	ListAppointmentsByDate(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error)
	ListAppointments(ctx context.Context, businessID string, filter AppointmentFilter) ([]model.Appointment, error)
	GetQueueClient(ctx context.Context, businessID, sessionID string) (model.QueueClient, error)
	ListStaleQueueClients(ctx context.Context, before time.Time, limit int) ([]model.QueueClient, error)
	ListProblemClients(ctx context.Context, businessID string) ([]model.ProblemClient, error)
}

// Tx is the view of the store inside a ReadWrite callback.
type Tx interface {
	Reader

	// GetQueue returns a zero queue for businesses that never had one.
	GetQueue(ctx context.Context, businessID string) (model.Queue, error)
	SaveQueue(ctx context.Context, q model.Queue) error
	SaveQueueClient(ctx context.Context, c model.QueueClient) error
	DeleteQueueClient(ctx context.Context, businessID, sessionID string) error
	// ShiftQueuePositions moves every client behind position `after` one place forward.
	ShiftQueuePositions(ctx context.Context, businessID string, after int) error

	// ListClientAppointments returns confirmed appointments of phone dated fromDate or later.
	ListClientAppointments(ctx context.Context, businessID, phone, fromDate string) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a model.Appointment) error
	// ListConfirmedAppointments spans every business; the sweeper uses it.
	ListConfirmedAppointments(ctx context.Context, fromDate, toDate string) ([]model.Appointment, error)

	GetProblemClient(ctx context.Context, businessID, phone string) (model.ProblemClient, bool, error)
	UpsertProblemClient(ctx context.Context, p model.ProblemClient) error

	// EnqueueNotification writes to the outbox; it becomes visible only if the transaction commits.
	EnqueueNotification(ctx context.Context, n model.Notification) error
}

type Store interface {
	Reader
	ReadWrite(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
