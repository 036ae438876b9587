package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

const queueClientColumns = `business_id, session_id, position, joined_at, last_activity, status, client_ip`

func scanQueueClient(row pgx.Row) (model.QueueClient, error) {
	var c model.QueueClient
	var status string
	if err := row.Scan(&c.BusinessID, &c.SessionID, &c.Position, &c.JoinedAt, &c.LastActivity, &status, &c.ClientIP); err != nil {
		return model.QueueClient{}, err
	}
	c.Status = model.QueueStatus(status)
	return c, nil
}

func (r reader) GetQueueClient(ctx context.Context, businessID, sessionID string) (model.QueueClient, error) {
	c, err := scanQueueClient(r.q.QueryRow(ctx, `
		SELECT `+queueClientColumns+`
		FROM queue_clients
		WHERE business_id = $1 AND session_id = $2
	`, businessID, sessionID))
	if err != nil {
		return model.QueueClient{}, notFound(err, "session "+sessionID+" not in queue")
	}
	return c, nil
}

func (r reader) ListStaleQueueClients(ctx context.Context, before time.Time, limit int) ([]model.QueueClient, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+queueClientColumns+`
		FROM queue_clients
		WHERE last_activity < $1
		ORDER BY last_activity ASC
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueueClient
	for rows.Next() {
		c, err := scanQueueClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (t *txStore) GetQueue(ctx context.Context, businessID string) (model.Queue, error) {
	q := model.Queue{BusinessID: businessID}
	err := t.tx.QueryRow(ctx, `
		SELECT current_count, last_position, updated_at
		FROM queues
		WHERE business_id = $1
		FOR UPDATE
	`, businessID).Scan(&q.CurrentCount, &q.LastPosition, &q.UpdatedAt)
	if db.IsNotFound(err) {
		return q, nil
	}
	return q, err
}

func (t *txStore) SaveQueue(ctx context.Context, q model.Queue) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO queues (business_id, current_count, last_position, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id)
		DO UPDATE SET current_count = EXCLUDED.current_count,
		              last_position = EXCLUDED.last_position,
		              updated_at = EXCLUDED.updated_at
	`, q.BusinessID, q.CurrentCount, q.LastPosition, q.UpdatedAt)
	return err
}

func (t *txStore) SaveQueueClient(ctx context.Context, c model.QueueClient) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO queue_clients (`+queueClientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, session_id)
		DO UPDATE SET position = EXCLUDED.position,
		              last_activity = EXCLUDED.last_activity,
		              status = EXCLUDED.status
	`, c.BusinessID, c.SessionID, c.Position, c.JoinedAt, c.LastActivity, string(c.Status), c.ClientIP)
	return err
}

func (t *txStore) DeleteQueueClient(ctx context.Context, businessID, sessionID string) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM queue_clients WHERE business_id = $1 AND session_id = $2`, businessID, sessionID)
	return err
}

func (t *txStore) ShiftQueuePositions(ctx context.Context, businessID string, after int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE queue_clients
		SET position = position - 1,
			status = CASE
				WHEN status = 'expired' THEN status
				WHEN position - 1 = 1 THEN 'active'
				ELSE 'waiting'
			END
		WHERE business_id = $1 AND position > $2
	`, businessID, after)
	return err
}
