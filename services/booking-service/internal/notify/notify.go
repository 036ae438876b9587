// Package notify hands owner notifications off without blocking the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/metrics"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, n model.Notification) error
}

// StoreDispatcher writes the notification to the outbox in its own transaction; the outbox
// publisher forwards it to Kafka.
type StoreDispatcher struct {
	store store.Store
}

func NewStoreDispatcher(s store.Store) *StoreDispatcher {
	return &StoreDispatcher{store: s}
}

func (d *StoreDispatcher) Dispatch(ctx context.Context, n model.Notification) error {
	return d.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.EnqueueNotification(ctx, n)
	})
}

// LogDispatcher only logs; it stands in for delivery in local runs without Kafka.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, n model.Notification) error {
	d.logger.Info("notification", "kind", n.Kind, "business_id", n.BusinessID, "appointment_id", n.AppointmentID,
		"date", n.Date, "start_time", n.StartTime)
	return nil
}

// Async runs a Dispatcher in the background. Failures are logged and counted, never returned.
type Async struct {
	next    Dispatcher
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Dispatcher, logger *slog.Logger, m *metrics.Metrics, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{next: next, logger: logger, metrics: m, timeout: timeout}
}

// Send returns immediately. The dispatch outlives the request context but keeps its values
// (trace and request id).
func (a *Async) Send(ctx context.Context, n model.Notification) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		err := a.next.Dispatch(ctx, n)
		a.metrics.ObserveNotification(n.Kind, err)
		if err != nil {
			a.logger.Error("notification dispatch failed", "err", err, "kind", n.Kind,
				"business_id", n.BusinessID, "appointment_id", n.AppointmentID)
		}
	}()
}

// Wait blocks until every in-flight Send has finished or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
