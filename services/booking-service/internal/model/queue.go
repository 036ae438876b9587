package model

import "time"

// QueueCapacity is the maximum number of clients waiting per business.
const QueueCapacity = 20

// QueueTimeout is how long a client may go without a heartbeat before the sweeper drops it.
const QueueTimeout = 10 * time.Minute

type QueueStatus string

const (
	QueueWaiting QueueStatus = "waiting"
	QueueActive  QueueStatus = "active"
	QueueExpired QueueStatus = "expired"
)

type Queue struct {
	BusinessID   string    `json:"business_id"`
	CurrentCount int       `json:"current_count"`
	LastPosition int       `json:"last_position"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type QueueClient struct {
	BusinessID   string      `json:"business_id"`
	SessionID    string      `json:"session_id"`
	Position     int         `json:"position"`
	JoinedAt     time.Time   `json:"joined_at"`
	LastActivity time.Time   `json:"last_activity"`
	Status       QueueStatus `json:"status"`
	ClientIP     string      `json:"-"`
}

// StatusForPosition is active for the head of the queue and waiting otherwise.
func StatusForPosition(position int) QueueStatus {
	if position == 1 {
		return QueueActive
	}
	return QueueWaiting
}
