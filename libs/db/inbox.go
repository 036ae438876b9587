package db

import "context"

// Inbox de-duplicates consumed events by id.
type Inbox struct {
	pool *Pool
}

func NewInbox(pool *Pool) *Inbox {
	return &Inbox{pool: pool}
}

// Record returns false when the event was already seen.
func (i *Inbox) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := i.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// Forget deletes the record of eventID so that the event can be processed again.
func (i *Inbox) Forget(ctx context.Context, eventID string) error {
	_, err := i.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}
