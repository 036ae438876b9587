package booking

import (
	"context"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

// RecordAttendance closes a confirmed appointment. A no-show also counts against the client.
func (w *Writer) RecordAttendance(ctx context.Context, appointmentID, callerBusinessID string, attended bool) (model.Appointment, error) {
	to := model.StatusCompletedAttended
	var extra func(context.Context, store.Tx, model.Appointment) error
	if !attended {
		to = model.StatusCompletedNoShow
		extra = w.recordNoShow
	}
	appt, err := w.transition(ctx, appointmentID, callerBusinessID, to, extra)
	w.metrics.Observe("attendance", err)
	if err != nil {
		return model.Appointment{}, err
	}
	w.logger.Info("attendance recorded", "business_id", appt.BusinessID, "appointment_id", appt.ID, "status", appt.Status)
	return appt, nil
}

func (w *Writer) recordNoShow(ctx context.Context, tx store.Tx, a model.Appointment) error {
	p, ok, err := tx.GetProblemClient(ctx, a.BusinessID, a.ClientPhone)
	if err != nil {
		return err
	}
	if !ok {
		p = model.ProblemClient{BusinessID: a.BusinessID, ClientPhone: a.ClientPhone}
	}
	p.RecordNoShow(a.ClientName, w.now())
	return tx.UpsertProblemClient(ctx, p)
}
