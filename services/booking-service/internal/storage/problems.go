package storage

import (
	"context"

	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

func (r reader) ListProblemClients(ctx context.Context, businessID string) ([]model.ProblemClient, error) {
	rows, err := r.q.Query(ctx, `
		SELECT business_id, client_phone, client_name, no_show_count, blocked, last_no_show_at, updated_at
		FROM problem_clients
		WHERE business_id = $1
		ORDER BY no_show_count DESC, client_phone ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ProblemClient
	for rows.Next() {
		var p model.ProblemClient
		if err := rows.Scan(&p.BusinessID, &p.ClientPhone, &p.ClientName, &p.NoShowCount, &p.Blocked, &p.LastNoShowAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (t *txStore) GetProblemClient(ctx context.Context, businessID, phone string) (model.ProblemClient, bool, error) {
	var p model.ProblemClient
	err := t.tx.QueryRow(ctx, `
		SELECT business_id, client_phone, client_name, no_show_count, blocked, last_no_show_at, updated_at
		FROM problem_clients
		WHERE business_id = $1 AND client_phone = $2
		FOR UPDATE
	`, businessID, phone).Scan(&p.BusinessID, &p.ClientPhone, &p.ClientName, &p.NoShowCount, &p.Blocked, &p.LastNoShowAt, &p.UpdatedAt)
	if db.IsNotFound(err) {
		return model.ProblemClient{}, false, nil
	}
	if err != nil {
		return model.ProblemClient{}, false, err
	}
	return p, true, nil
}

func (t *txStore) UpsertProblemClient(ctx context.Context, p model.ProblemClient) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO problem_clients (business_id, client_phone, client_name, no_show_count, blocked, last_no_show_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (business_id, client_phone)
		DO UPDATE SET client_name = EXCLUDED.client_name,
		              no_show_count = EXCLUDED.no_show_count,
		              blocked = EXCLUDED.blocked,
		              last_no_show_at = EXCLUDED.last_no_show_at,
		              updated_at = EXCLUDED.updated_at
	`, p.BusinessID, p.ClientPhone, p.ClientName, p.NoShowCount, p.Blocked, p.LastNoShowAt, p.UpdatedAt)
	return err
}
