package model

import (
	"fmt"
	"slices"
	"time"
)

type AppointmentStatus string

const (
	StatusConfirmed         AppointmentStatus = "confirmed"
	StatusCancelled         AppointmentStatus = "cancelled"
	StatusCompletedAttended AppointmentStatus = "completed_attended"
	StatusCompletedNoShow   AppointmentStatus = "completed_no_show"
	StatusExpired           AppointmentStatus = "expired"
)

// Terminal statuses never change again.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompletedAttended, StatusCompletedNoShow, StatusExpired:
		return true
	}
	return false
}

func (s AppointmentStatus) Valid() bool {
	return s == StatusConfirmed || s.Terminal()
}

// CancelledByOwner is the only canceller the booking service records.
const CancelledByOwner = "owner"

// MaxActiveBookings caps confirmed appointments dated today or later per client phone.
const MaxActiveBookings = 3

type Appointment struct {
	ID                string            `json:"id"`
	BusinessID        string            `json:"business_id"`
	ServiceID         string            `json:"service_id"`
	ServiceName       string            `json:"service_name"`
	DurationMinutes   int               `json:"duration_minutes"`
	Date              string            `json:"date"`
	StartTime         string            `json:"start_time"`
	EndTime           string            `json:"end_time"`
	ClientName        string            `json:"client_name"`
	ClientPhone       string            `json:"client_phone"`
	Status            AppointmentStatus `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	CancelledAt       *time.Time        `json:"cancelled_at,omitempty"`
	CancelledBy       string            `json:"cancelled_by,omitempty"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	NotificationsSent []string          `json:"notifications_sent"`
}

// Transition moves a confirmed appointment into a terminal status and stamps the
// matching timestamp. Anything else is ErrInvalidState.
func (a *Appointment) Transition(to AppointmentStatus, at time.Time) error {
	if a.Status != StatusConfirmed {
		return fmt.Errorf("%w: appointment %s is %s", ErrInvalidState, a.ID, a.Status)
	}
	if !to.Terminal() {
		return fmt.Errorf("%w: cannot move appointment to %q", ErrInvalidState, to)
	}
	at = at.UTC()
	switch to {
	case StatusCancelled:
		a.CancelledAt = &at
		a.CancelledBy = CancelledByOwner
	case StatusCompletedAttended, StatusCompletedNoShow:
		a.CompletedAt = &at
	}
	a.Status = to
	a.UpdatedAt = at
	return nil
}

func (a Appointment) Notified(kind NotificationKind) bool {
	return slices.Contains(a.NotificationsSent, string(kind))
}

// MarkNotified appends kind once. It is the only mutation allowed on terminal records.
func (a *Appointment) MarkNotified(kind NotificationKind) bool {
	if a.Notified(kind) {
		return false
	}
	a.NotificationsSent = append(a.NotificationsSent, string(kind))
	return true
}

// Clone returns a copy that shares no slices or pointers with a.
func (a Appointment) Clone() Appointment {
	out := a
	out.NotificationsSent = slices.Clone(a.NotificationsSent)
	if out.NotificationsSent == nil {
		out.NotificationsSent = []string{}
	}
	if a.CancelledAt != nil {
		t := *a.CancelledAt
		out.CancelledAt = &t
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	return out
}
