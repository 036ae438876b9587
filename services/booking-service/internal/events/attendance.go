// Package events consumes the Kafka events the booking service reacts to.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/santiagopena171/app-agenda/libs/kafkax"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

type AttendanceRecorder interface {
	RecordAttendance(ctx context.Context, appointmentID, callerBusinessID string, attended bool) (model.Appointment, error)
}

// AttendanceHandler applies owner answers coming from the messaging bot. Answers for
// appointments that are already closed are ignored.
func AttendanceHandler(rec AttendanceRecorder, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var report model.AttendanceReport
		if err := json.Unmarshal(msg.Value, &report); err != nil {
			return fmt.Errorf("decode attendance report: %w", err)
		}
		if report.AppointmentID == "" || report.BusinessID == "" {
			return fmt.Errorf("%w: attendance report without appointment or business", model.ErrInvalidArgument)
		}

		appt, err := rec.RecordAttendance(ctx, report.AppointmentID, report.BusinessID, report.Attended)
		if errors.Is(err, model.ErrInvalidState) {
			logger.Info("attendance already recorded", "appointment_id", report.AppointmentID, "business_id", report.BusinessID)
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("attendance applied", "appointment_id", appt.ID, "status", appt.Status)
		return nil
	}
}
