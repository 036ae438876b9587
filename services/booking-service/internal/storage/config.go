package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

func (r reader) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var svc model.Service
	err := r.q.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, active, sort_order
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&svc.ID, &svc.BusinessID, &svc.Name, &svc.DurationMinutes, &svc.Active, &svc.Order)
	if err != nil {
		return model.Service{}, notFound(err, "service "+serviceID)
	}
	return svc, nil
}

func (r reader) GetAvailability(ctx context.Context, businessID string) (model.Availability, error) {
	var raw []byte
	err := r.q.QueryRow(ctx, `SELECT templates FROM availability WHERE business_id = $1`, businessID).Scan(&raw)
	if db.IsNotFound(err) {
		return model.Availability{BusinessID: businessID}, nil
	}
	if err != nil {
		return model.Availability{}, err
	}
	av := model.Availability{BusinessID: businessID}
	if err := json.Unmarshal(raw, &av.Templates); err != nil {
		return model.Availability{}, fmt.Errorf("decode availability of %s: %w", businessID, err)
	}
	return av, nil
}

func (r reader) GetException(ctx context.Context, businessID, date string) (model.Exception, bool, error) {
	ex := model.Exception{BusinessID: businessID, Date: date}
	var kind string
	var windows []byte
	err := r.q.QueryRow(ctx, `
		SELECT kind, reason, windows
		FROM availability_exceptions
		WHERE business_id = $1 AND date = $2
	`, businessID, date).Scan(&kind, &ex.Reason, &windows)
	if db.IsNotFound(err) {
		return model.Exception{}, false, nil
	}
	if err != nil {
		return model.Exception{}, false, err
	}
	ex.Kind = model.ExceptionKind(kind)
	if err := json.Unmarshal(windows, &ex.Windows); err != nil {
		return model.Exception{}, false, fmt.Errorf("decode exception windows: %w", err)
	}
	return ex, true, nil
}

// UpsertService, PutAvailability and PutException back the seed command of local setups.
func (s *Store) UpsertService(ctx context.Context, svc model.Service) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO services (business_id, id, name, duration_minutes, active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (business_id, id)
		DO UPDATE SET name = EXCLUDED.name,
		              duration_minutes = EXCLUDED.duration_minutes,
		              active = EXCLUDED.active,
		              sort_order = EXCLUDED.sort_order
	`, svc.BusinessID, svc.ID, svc.Name, svc.DurationMinutes, svc.Active, svc.Order)
	return err
}

func (s *Store) PutAvailability(ctx context.Context, businessID string, av model.Availability) error {
	raw, err := json.Marshal(av.Templates)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO availability (business_id, templates)
		VALUES ($1, $2)
		ON CONFLICT (business_id)
		DO UPDATE SET templates = EXCLUDED.templates, updated_at = now()
	`, businessID, raw)
	return err
}

func (s *Store) PutException(ctx context.Context, ex model.Exception) error {
	raw, err := json.Marshal(ex.Windows)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO availability_exceptions (business_id, date, kind, reason, windows)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (business_id, date)
		DO UPDATE SET kind = EXCLUDED.kind, reason = EXCLUDED.reason, windows = EXCLUDED.windows
	`, ex.BusinessID, ex.Date, string(ex.Kind), ex.Reason, raw)
	return err
}
