package model

import "time"

type NotificationKind string

const (
	NotifyNewAppointment      NotificationKind = "new_appointment"
	NotifyReminder            NotificationKind = "reminder"
	NotifyConfirmationRequest NotificationKind = "confirmation_request"
	NotifyCancelled           NotificationKind = "cancelled"
)

// NotificationRequestedEvent is the outbox event type and Kafka topic for owner notifications.
const NotificationRequestedEvent = "booking.notification.requested.v1"

// AttendanceReportedEvent is produced by the notification service when the owner answers a
// confirmation request.
const AttendanceReportedEvent = "booking.attendance.reported.v1"

// Notification is the payload carried by NotificationRequestedEvent.
type Notification struct {
	ID            string           `json:"id"`
	Kind          NotificationKind `json:"kind"`
	BusinessID    string           `json:"business_id"`
	AppointmentID string           `json:"appointment_id"`
	ServiceName   string           `json:"service_name"`
	ClientName    string           `json:"client_name"`
	ClientPhone   string           `json:"client_phone"`
	Date          string           `json:"date"`
	StartTime     string           `json:"start_time"`
	EndTime       string           `json:"end_time"`
	CreatedAt     time.Time        `json:"created_at"`
}

func NewNotification(kind NotificationKind, a Appointment, now time.Time) Notification {
	return Notification{
		Kind:          kind,
		BusinessID:    a.BusinessID,
		AppointmentID: a.ID,
		ServiceName:   a.ServiceName,
		ClientName:    a.ClientName,
		ClientPhone:   a.ClientPhone,
		Date:          a.Date,
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		CreatedAt:     now.UTC(),
	}
}

// AttendanceReport is the payload carried by AttendanceReportedEvent.
type AttendanceReport struct {
	AppointmentID string    `json:"appointment_id"`
	BusinessID    string    `json:"business_id"`
	Attended      bool      `json:"attended"`
	ReportedAt    time.Time `json:"reported_at"`
}
