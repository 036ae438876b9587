// Package booking owns every appointment write: creation by the client at the head of the
// queue, cancellation by the owner and attendance reports.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/availability"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/metrics"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

type QueueRemover interface {
	Remove(ctx context.Context, businessID, sessionID string) error
}

type Notifier interface {
	Send(ctx context.Context, n model.Notification)
}

type SlotInvalidator interface {
	Invalidate(ctx context.Context, businessID, date string)
}

type Writer struct {
	store    store.Store
	queue    QueueRemover
	notifier Notifier
	slots    SlotInvalidator
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Writer)

func WithSlotInvalidator(s SlotInvalidator) Option {
	return func(w *Writer) { w.slots = s }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Writer) { w.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Writer) { w.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func NewWriter(s store.Store, q QueueRemover, n Notifier, opts ...Option) *Writer {
	w := &Writer{store: s, queue: q, notifier: n, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create books req inside one transaction. Queue removal and the owner notification happen
// after commit and never fail the booking.
func (w *Writer) Create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	appt, err := w.create(ctx, req)
	w.metrics.Observe("create", err)
	if err != nil {
		return model.Appointment{}, err
	}

	if err := w.queue.Remove(ctx, req.BusinessID, req.SessionID); err != nil {
		w.logger.Error("queue removal after booking failed", "err", err,
			"business_id", req.BusinessID, "session_id", req.SessionID, "appointment_id", appt.ID)
	}
	w.invalidate(ctx, appt)
	w.notifier.Send(ctx, model.NewNotification(model.NotifyNewAppointment, appt, w.now()))

	w.logger.Info("appointment created", "business_id", appt.BusinessID, "appointment_id", appt.ID,
		"date", appt.Date, "start_time", appt.StartTime)
	return appt, nil
}

func (w *Writer) create(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	req.normalize()
	if err := req.Validate(); err != nil {
		return model.Appointment{}, err
	}
	start, err := clock.TimeToMinutes(req.StartTime)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
	}

	now := w.now()
	today := clock.Today(now)
	if req.Date < today || (req.Date == today && start < clock.MinuteOfDay(now)) {
		return model.Appointment{}, fmt.Errorf("%w: %s %s is in the past", model.ErrSlotUnavailable, req.Date, req.StartTime)
	}

	var out model.Appointment
	err = w.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		qc, err := tx.GetQueueClient(ctx, req.BusinessID, req.SessionID)
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%w: session is not in the queue", model.ErrUnauthorized)
		}
		if err != nil {
			return err
		}
		if qc.Position != 1 {
			return fmt.Errorf("%w: session is at position %d", model.ErrUnauthorized, qc.Position)
		}

		svc, err := tx.GetService(ctx, req.BusinessID, req.ServiceID)
		if err != nil {
			return err
		}
		if !svc.Active {
			return fmt.Errorf("%w: service %s", model.ErrInactive, svc.ID)
		}
		end, err := clock.AddDuration(req.StartTime, svc.DurationMinutes)
		if err != nil {
			return fmt.Errorf("%w: %w", model.ErrSlotUnavailable, err)
		}

		day, err := availability.ResolveDay(ctx, tx, req.BusinessID, req.Date)
		if err != nil {
			return err
		}
		fits := false
		if day.Open {
			if fits, err = availability.FitsWindow(day.Windows, start, svc.DurationMinutes); err != nil {
				return err
			}
		}
		if !fits {
			return fmt.Errorf("%w: %s %s is outside opening hours", model.ErrSlotUnavailable, req.Date, req.StartTime)
		}

		booked, err := tx.ListAppointmentsByDate(ctx, req.BusinessID, req.Date, model.StatusConfirmed)
		if err != nil {
			return err
		}
		for _, b := range availability.BusyIntervals(booked) {
			if clock.Overlaps(start, start+svc.DurationMinutes, b.Start, b.End) {
				return fmt.Errorf("%w: %s %s overlaps another appointment", model.ErrSlotUnavailable, req.Date, req.StartTime)
			}
		}

		mine, err := tx.ListClientAppointments(ctx, req.BusinessID, req.ClientPhone, today)
		if err != nil {
			return err
		}
		if len(mine) >= model.MaxActiveBookings {
			return fmt.Errorf("%w: %d upcoming appointments", model.ErrLimitExceeded, len(mine))
		}
		for _, a := range mine {
			if a.Date == req.Date {
				return fmt.Errorf("%w: %s", model.ErrDuplicateDate, req.Date)
			}
		}

		stamp := now.UTC()
		out = model.Appointment{
			BusinessID:        req.BusinessID,
			ServiceID:         svc.ID,
			ServiceName:       svc.Name,
			DurationMinutes:   svc.DurationMinutes,
			Date:              req.Date,
			StartTime:         clock.MinutesToTime(start),
			EndTime:           end,
			ClientName:        req.ClientName,
			ClientPhone:       req.ClientPhone,
			Status:            model.StatusConfirmed,
			CreatedAt:         stamp,
			UpdatedAt:         stamp,
			NotificationsSent: []string{},
		}
		return tx.InsertAppointment(ctx, &out)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}

func (w *Writer) invalidate(ctx context.Context, a model.Appointment) {
	if w.slots != nil {
		w.slots.Invalidate(ctx, a.BusinessID, a.Date)
	}
}
