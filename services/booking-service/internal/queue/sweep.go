package queue

import (
	"context"
	"errors"
	"time"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

const sweepBatch = 200

// Sweep expires clients without a heartbeat for longer than timeout and removes them, each in
// its own transaction. It returns how many were removed.
func (g *Gate) Sweep(ctx context.Context, timeout time.Duration) (int, error) {
	if timeout <= 0 {
		timeout = model.QueueTimeout
	}
	cutoff := g.now().Add(-timeout)
	stale, err := g.store.ListStaleQueueClients(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range stale {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		var gone bool
		err := g.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
			gone = false
			cur, err := tx.GetQueueClient(ctx, c.BusinessID, c.SessionID)
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			// A heartbeat may have landed since the scan.
			if !cur.LastActivity.Before(cutoff) {
				return nil
			}
			cur.Status = model.QueueExpired
			if err := tx.SaveQueueClient(ctx, cur); err != nil {
				return err
			}
			gone, err = removeTx(ctx, tx, c.BusinessID, c.SessionID, g.now().UTC())
			return err
		})
		if err != nil {
			g.logger.Error("queue sweep failed", "err", err, "business_id", c.BusinessID, "session_id", c.SessionID)
			continue
		}
		if gone {
			removed++
			g.logger.Info("queue client expired", "business_id", c.BusinessID, "session_id", c.SessionID, "position", c.Position)
		}
	}
	return removed, nil
}
