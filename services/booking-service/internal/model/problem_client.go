package model

import "time"

// NoShowBlockThreshold flags a client as blocked once they miss this many appointments.
const NoShowBlockThreshold = 2

type ProblemClient struct {
	BusinessID   string    `json:"business_id"`
	ClientPhone  string    `json:"client_phone"`
	ClientName   string    `json:"client_name"`
	NoShowCount  int       `json:"no_show_count"`
	Blocked      bool      `json:"blocked"`
	LastNoShowAt time.Time `json:"last_no_show_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecordNoShow bumps the counter for another missed appointment.
func (p *ProblemClient) RecordNoShow(name string, at time.Time) {
	p.NoShowCount++
	if name != "" {
		p.ClientName = name
	}
	p.Blocked = p.NoShowCount >= NoShowBlockThreshold
	p.LastNoShowAt = at.UTC()
	p.UpdatedAt = at.UTC()
}
