package booking

import (
	"context"
	"fmt"
	"strings"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

// Cancel is owner-only: callerBusinessID must own the appointment.
func (w *Writer) Cancel(ctx context.Context, appointmentID, callerBusinessID string) (model.Appointment, error) {
	appt, err := w.transition(ctx, appointmentID, callerBusinessID, model.StatusCancelled, nil)
	w.metrics.Observe("cancel", err)
	if err != nil {
		return model.Appointment{}, err
	}
	w.invalidate(ctx, appt)
	w.notifier.Send(ctx, model.NewNotification(model.NotifyCancelled, appt, w.now()))
	w.logger.Info("appointment cancelled", "business_id", appt.BusinessID, "appointment_id", appt.ID)
	return appt, nil
}

// transition loads the appointment, checks ownership and moves it out of confirmed. extra runs
// in the same transaction after the status change.
func (w *Writer) transition(ctx context.Context, appointmentID, callerBusinessID string, to model.AppointmentStatus,
	extra func(ctx context.Context, tx store.Tx, a model.Appointment) error) (model.Appointment, error) {
	appointmentID = strings.TrimSpace(appointmentID)
	if appointmentID == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment_id is required", model.ErrInvalidArgument)
	}

	var out model.Appointment
	err := w.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAppointment(ctx, appointmentID)
		if err != nil {
			return err
		}
		if a.BusinessID != callerBusinessID {
			return fmt.Errorf("%w: appointment %s belongs to another business", model.ErrUnauthorized, appointmentID)
		}
		if err := a.Transition(to, w.now()); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, a); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(ctx, tx, a); err != nil {
				return err
			}
		}
		out = a
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return out, nil
}
