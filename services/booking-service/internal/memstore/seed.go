package memstore

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

// Seed is the JSON document accepted by LoadSeed for local runs.
type Seed struct {
	Services     []model.Service               `json:"services"`
	Availability map[string]model.Availability `json:"availability"`
	Exceptions   []model.Exception             `json:"exceptions"`
}

func (s *Store) LoadSeed(r io.Reader) error {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, svc := range seed.Services {
		if svc.ID == "" || svc.BusinessID == "" || svc.DurationMinutes <= 0 {
			return fmt.Errorf("%w: seed service %q", model.ErrInvalidArgument, svc.ID)
		}
		s.PutService(svc)
	}
	for businessID, av := range seed.Availability {
		s.PutAvailability(businessID, av)
	}
	for _, ex := range seed.Exceptions {
		s.PutException(ex)
	}
	return nil
}
