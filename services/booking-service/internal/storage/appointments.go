package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/outbox"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

const appointmentColumns = `
	id::text, business_id, service_id, service_name, duration_minutes, date, start_time, end_time,
	client_name, client_phone, status, created_at, updated_at, cancelled_at, COALESCE(cancelled_by, ''),
	completed_at, notifications_sent`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	var cancelledAt, completedAt *time.Time
	err := row.Scan(
		&a.ID,
		&a.BusinessID,
		&a.ServiceID,
		&a.ServiceName,
		&a.DurationMinutes,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.ClientName,
		&a.ClientPhone,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&cancelledAt,
		&a.CancelledBy,
		&completedAt,
		&a.NotificationsSent,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	a.CancelledAt = cancelledAt
	a.CompletedAt = completedAt
	if a.NotificationsSent == nil {
		a.NotificationsSent = []string{}
	}
	return a, nil
}

func (r reader) listAppointments(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r reader) ListAppointmentsByDate(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND date = $2 AND ($3 = '' OR status = $3)
		ORDER BY start_time ASC
	`, businessID, date, string(status))
}

func (r reader) ListAppointments(ctx context.Context, businessID string, f store.AppointmentFilter) ([]model.Appointment, error) {
	where := []string{"business_id = $1"}
	args := []any{businessID}
	if f.Date != "" {
		args = append(args, f.Date)
		where = append(where, fmt.Sprintf("date = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY date ASC, start_time ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.listAppointments(ctx, query, args...)
}

func (t *txStore) ListClientAppointments(ctx context.Context, businessID, phone, fromDate string) ([]model.Appointment, error) {
	return t.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE business_id = $1 AND client_phone = $2 AND status = 'confirmed' AND date >= $3
		ORDER BY date ASC
	`, businessID, phone, fromDate)
}

func (t *txStore) ListConfirmedAppointments(ctx context.Context, fromDate, toDate string) ([]model.Appointment, error) {
	return t.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND date >= $1 AND date <= $2
		ORDER BY date ASC, start_time ASC
	`, fromDate, toDate)
}

func (t *txStore) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.NotificationsSent == nil {
		a.NotificationsSent = []string{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, business_id, service_id, service_name, duration_minutes, date, start_time, end_time,
			 client_name, client_phone, status, created_at, updated_at, notifications_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.BusinessID, a.ServiceID, a.ServiceName, a.DurationMinutes, a.Date, a.StartTime, a.EndTime,
		a.ClientName, a.ClientPhone, string(a.Status), a.CreatedAt, a.UpdatedAt, a.NotificationsSent)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: appointment %s already exists", model.ErrInvalidState, a.ID)
	}
	return err
}

func (t *txStore) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if uuid.Validate(id) != nil {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	a, err := scanAppointment(t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return model.Appointment{}, notFound(err, "appointment "+id)
	}
	return a, nil
}

func (t *txStore) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	var cancelledBy *string
	if a.CancelledBy != "" {
		cancelledBy = &a.CancelledBy
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			updated_at = $3,
			cancelled_at = $4,
			cancelled_by = $5,
			completed_at = $6,
			notifications_sent = $7
		WHERE id = $1
	`, a.ID, string(a.Status), a.UpdatedAt, a.CancelledAt, cancelledBy, a.CompletedAt, a.NotificationsSent)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s", model.ErrNotFound, a.ID)
	}
	return nil
}

func (t *txStore) EnqueueNotification(ctx context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return outbox.Insert(ctx, t.tx, outbox.Event{
		EventID:       n.ID,
		AggregateType: "appointment",
		AggregateID:   n.AppointmentID,
		EventType:     model.NotificationRequestedEvent,
		Payload:       payload,
	})
}
