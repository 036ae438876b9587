// Package queue admits public clients one at a time: only the client at position 1 may book.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

type Gate struct {
	store    store.Store
	capacity int
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Gate)

func WithCapacity(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.capacity = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func NewGate(s store.Store, opts ...Option) *Gate {
	g := &Gate{store: s, capacity: model.QueueCapacity, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func validateIDs(businessID, sessionID string) error {
	if strings.TrimSpace(businessID) == "" || strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: business_id and session_id are required", model.ErrInvalidArgument)
	}
	if len(sessionID) > 128 {
		return fmt.Errorf("%w: session_id too long", model.ErrInvalidArgument)
	}
	return nil
}

// Join appends the session to the business queue. Joining twice returns the existing record.
func (g *Gate) Join(ctx context.Context, businessID, sessionID, clientIP string) (model.QueueClient, error) {
	if err := validateIDs(businessID, sessionID); err != nil {
		return model.QueueClient{}, err
	}

	var out model.QueueClient
	err := g.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetQueueClient(ctx, businessID, sessionID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return err
		}

		q, err := tx.GetQueue(ctx, businessID)
		if err != nil {
			return err
		}
		if q.CurrentCount >= g.capacity {
			return fmt.Errorf("%w: %d clients already waiting", model.ErrQueueFull, q.CurrentCount)
		}

		now := g.now().UTC()
		// LastPosition tracks the tail; it equals CurrentCount whenever positions are contiguous.
		q.LastPosition = q.CurrentCount + 1
		q.CurrentCount++
		q.BusinessID = businessID
		q.UpdatedAt = now

		out = model.QueueClient{
			BusinessID:   businessID,
			SessionID:    sessionID,
			Position:     q.LastPosition,
			JoinedAt:     now,
			LastActivity: now,
			Status:       model.StatusForPosition(q.LastPosition),
			ClientIP:     clientIP,
		}
		if err := tx.SaveQueueClient(ctx, out); err != nil {
			return err
		}
		return tx.SaveQueue(ctx, q)
	})
	if err != nil {
		return model.QueueClient{}, err
	}
	return out, nil
}

// Heartbeat refreshes LastActivity so the sweeper keeps the session.
func (g *Gate) Heartbeat(ctx context.Context, businessID, sessionID string) (model.QueueClient, error) {
	if err := validateIDs(businessID, sessionID); err != nil {
		return model.QueueClient{}, err
	}
	var out model.QueueClient
	err := g.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := tx.GetQueueClient(ctx, businessID, sessionID)
		if err != nil {
			return err
		}
		c.LastActivity = g.now().UTC()
		out = c
		return tx.SaveQueueClient(ctx, c)
	})
	if err != nil {
		return model.QueueClient{}, err
	}
	return out, nil
}

// Remove takes the session out and closes the gap behind it. Unknown sessions are a no-op.
func (g *Gate) Remove(ctx context.Context, businessID, sessionID string) error {
	if err := validateIDs(businessID, sessionID); err != nil {
		return err
	}
	return g.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := removeTx(ctx, tx, businessID, sessionID, g.now().UTC())
		return err
	})
}

func removeTx(ctx context.Context, tx store.Tx, businessID, sessionID string, now time.Time) (bool, error) {
	c, err := tx.GetQueueClient(ctx, businessID, sessionID)
	if errors.Is(err, model.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := tx.DeleteQueueClient(ctx, businessID, sessionID); err != nil {
		return false, err
	}
	if err := tx.ShiftQueuePositions(ctx, businessID, c.Position); err != nil {
		return false, err
	}

	q, err := tx.GetQueue(ctx, businessID)
	if err != nil {
		return false, err
	}
	if q.CurrentCount > 0 {
		q.CurrentCount--
	}
	q.LastPosition = q.CurrentCount
	q.UpdatedAt = now
	return true, tx.SaveQueue(ctx, q)
}

// Position is the polling read for waiting clients.
func (g *Gate) Position(ctx context.Context, businessID, sessionID string) (model.QueueClient, error) {
	if err := validateIDs(businessID, sessionID); err != nil {
		return model.QueueClient{}, err
	}
	return g.store.GetQueueClient(ctx, businessID, sessionID)
}
