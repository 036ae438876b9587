// Package delivery turns booking notification events into Telegram messages for the owner.
package delivery

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/santiagopena171/app-agenda/services/notification-service/internal/telegram"
)

const (
	KindNewAppointment      = "new_appointment"
	KindReminder            = "reminder"
	KindConfirmationRequest = "confirmation_request"
	KindCancelled           = "cancelled"
)

// Notification mirrors the payload of booking.notification.requested.v1.
type Notification struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	BusinessID    string    `json:"business_id"`
	AppointmentID string    `json:"appointment_id"`
	ServiceName   string    `json:"service_name"`
	ClientName    string    `json:"client_name"`
	ClientPhone   string    `json:"client_phone"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
}

func (n Notification) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"kind":           n.Kind,
		"business_id":    n.BusinessID,
		"appointment_id": n.AppointmentID,
		"date":           n.Date,
		"start_time":     n.StartTime,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("notification missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Callback data prefixes for the attendance buttons.
const (
	CallbackAttended = "attended:"
	CallbackNoShow   = "no_show:"
)

// Render builds the owner-facing text and any buttons.
func Render(n Notification) (string, [][]telegram.Button, error) {
	when := formatDate(n.Date) + " " + n.StartTime
	if n.EndTime != "" {
		when += "-" + n.EndTime
	}
	client := n.ClientName
	if n.ClientPhone != "" {
		client += " (" + n.ClientPhone + ")"
	}

	switch n.Kind {
	case KindNewAppointment:
		return fmt.Sprintf("Nueva reserva\n%s\n%s\nCliente: %s", n.ServiceName, when, client), nil, nil
	case KindReminder:
		return fmt.Sprintf("Recordatorio: turno en 1 hora\n%s\n%s\nCliente: %s", n.ServiceName, when, client), nil, nil
	case KindCancelled:
		return fmt.Sprintf("Turno cancelado\n%s\n%s\nCliente: %s", n.ServiceName, when, client), nil, nil
	case KindConfirmationRequest:
		text := fmt.Sprintf("¿%s asistió a su turno?\n%s\n%s", client, n.ServiceName, when)
		buttons := [][]telegram.Button{{
			{Text: "Asistió", CallbackData: CallbackAttended + n.AppointmentID},
			{Text: "No asistió", CallbackData: CallbackNoShow + n.AppointmentID},
		}}
		return text, buttons, nil
	default:
		return "", nil, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}

func formatDate(date string) string {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return d.Format("02/01/2006")
}

// ParseCallback reads button data produced by Render.
func ParseCallback(data string) (appointmentID string, attended bool, ok bool) {
	switch {
	case strings.HasPrefix(data, CallbackAttended):
		appointmentID, attended = strings.TrimPrefix(data, CallbackAttended), true
	case strings.HasPrefix(data, CallbackNoShow):
		appointmentID = strings.TrimPrefix(data, CallbackNoShow)
	default:
		return "", false, false
	}
	if appointmentID == "" {
		return "", false, false
	}
	return appointmentID, attended, true
}
