// Package sweeper runs the periodic maintenance jobs of the booking service: queue expiry,
// reminders, attendance confirmation requests and appointment expiry.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/metrics"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

type Job string

const (
	JobQueue         Job = "queue"
	JobReminders     Job = "reminders"
	JobConfirmations Job = "confirmations"
	JobExpiry        Job = "expiry"
)

var Jobs = []Job{JobQueue, JobReminders, JobConfirmations, JobExpiry}

func ParseJob(s string) (Job, error) {
	for _, j := range Jobs {
		if string(j) == s {
			return j, nil
		}
	}
	return "", fmt.Errorf("%w: unknown job %q", model.ErrInvalidArgument, s)
}

type QueueSweeper interface {
	Sweep(ctx context.Context, timeout time.Duration) (int, error)
}

type Config struct {
	QueueEvery       time.Duration
	AppointmentEvery time.Duration
	QueueTimeout     time.Duration
	// Reminders go out for appointments starting between ReminderFrom and ReminderTo from now.
	ReminderFrom time.Duration
	ReminderTo   time.Duration
	// ConfirmWithin is how long after the start a confirmation request may still be sent.
	ConfirmWithin time.Duration
	ExpireAfter   time.Duration
	// ExpireLookback bounds how far back the expiry scan reads; older records are left alone.
	ExpireLookback time.Duration
}

func (c Config) withDefaults() Config {
	if c.QueueEvery <= 0 {
		c.QueueEvery = time.Minute
	}
	if c.AppointmentEvery <= 0 {
		c.AppointmentEvery = time.Minute
	}
	if c.QueueTimeout <= 0 {
		c.QueueTimeout = model.QueueTimeout
	}
	if c.ReminderFrom <= 0 {
		c.ReminderFrom = 55 * time.Minute
	}
	if c.ReminderTo <= c.ReminderFrom {
		c.ReminderTo = c.ReminderFrom + 10*time.Minute
	}
	if c.ConfirmWithin <= 0 {
		c.ConfirmWithin = 10 * time.Minute
	}
	if c.ExpireAfter <= 0 {
		c.ExpireAfter = 30 * time.Minute
	}
	if c.ExpireLookback <= 0 {
		c.ExpireLookback = 7 * 24 * time.Hour
	}
	return c
}

type Sweeper struct {
	store   store.Store
	queue   QueueSweeper
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func New(s store.Store, q QueueSweeper, logger *slog.Logger, cfg Config, opts ...Option) *Sweeper {
	sw := &Sweeper{
		store:  s,
		queue:  q,
		logger: logger,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(sw)
	}
	return sw
}

// Run ticks the queue job and the appointment jobs on their own intervals until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(ctx, s.cfg.QueueEvery, JobQueue)
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, s.cfg.AppointmentEvery, JobReminders, JobConfirmations, JobExpiry)
		return nil
	})
	return g.Wait()
}

func (s *Sweeper) loop(ctx context.Context, every time.Duration, jobs ...Job) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		for _, job := range jobs {
			if _, err := s.RunOnce(ctx, job); err != nil && ctx.Err() == nil {
				s.logger.Error("sweeper job failed", "err", err, "job", job)
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce executes one pass of job and returns how many records it changed.
func (s *Sweeper) RunOnce(ctx context.Context, job Job) (int, error) {
	var (
		n   int
		err error
	)
	switch job {
	case JobQueue:
		n, err = s.queue.Sweep(ctx, s.cfg.QueueTimeout)
	case JobReminders:
		n, err = s.notifyDue(ctx, model.NotifyReminder, s.cfg.ReminderFrom, s.cfg.ReminderTo)
	case JobConfirmations:
		n, err = s.notifyDue(ctx, model.NotifyConfirmationRequest, -s.cfg.ConfirmWithin, 0)
	case JobExpiry:
		n, err = s.expire(ctx)
	default:
		return 0, fmt.Errorf("%w: unknown job %q", model.ErrInvalidArgument, job)
	}
	s.metrics.ObserveSweep(string(job), n, err)
	if n > 0 {
		s.logger.Info("sweeper job done", "job", job, "affected", n)
	}
	return n, err
}

// notifyDue enqueues kind for confirmed appointments starting within [now+from, now+to] that
// have not received it yet.
func (s *Sweeper) notifyDue(ctx context.Context, kind model.NotificationKind, from, to time.Duration) (int, error) {
	now := s.now()
	lo, hi := now.Add(from), now.Add(to)
	candidates, err := s.scan(ctx, clock.Today(lo), clock.Today(hi), func(a model.Appointment) (bool, error) {
		if a.Notified(kind) {
			return false, nil
		}
		start, err := clock.At(a.Date, a.StartTime)
		if err != nil {
			return false, err
		}
		return !start.Before(lo) && !start.After(hi), nil
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, id := range candidates {
		var marked bool
		err := s.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
			marked = false
			a, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if a.Status != model.StatusConfirmed || !a.MarkNotified(kind) {
				return nil
			}
			a.UpdatedAt = now.UTC()
			if err := tx.UpdateAppointment(ctx, a); err != nil {
				return err
			}
			marked = true
			return tx.EnqueueNotification(ctx, model.NewNotification(kind, a, now))
		})
		if err != nil {
			if ctx.Err() != nil {
				return sent, ctx.Err()
			}
			s.logger.Error("notification enqueue failed", "err", err, "kind", kind, "appointment_id", id)
			continue
		}
		if marked {
			sent++
		}
	}
	return sent, nil
}

// expire moves confirmed appointments dated within ExpireLookback that ended more than
// ExpireAfter ago to expired.
func (s *Sweeper) expire(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.ExpireAfter)
	isStale := func(a model.Appointment) (bool, error) {
		end, err := clock.At(a.Date, a.EndTime)
		if err != nil {
			return false, err
		}
		return end.Before(cutoff), nil
	}
	candidates, err := s.scan(ctx, clock.Today(now.Add(-s.cfg.ExpireLookback)), clock.Today(now), isStale)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range candidates {
		var changed bool
		err := s.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
			changed = false
			a, err := tx.GetAppointment(ctx, id)
			if err != nil {
				return err
			}
			if a.Status != model.StatusConfirmed {
				return nil
			}
			if stale, err := isStale(a); err != nil || !stale {
				return err
			}
			if err := a.Transition(model.StatusExpired, now); err != nil {
				return err
			}
			changed = true
			return tx.UpdateAppointment(ctx, a)
		})
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return expired, ctx.Err()
			}
			s.logger.Error("appointment expiry failed", "err", err, "appointment_id", id)
			continue
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

// scan lists confirmed appointments dated fromDate..toDate that match keep. Records with a
// broken date or time are logged and skipped.
func (s *Sweeper) scan(ctx context.Context, fromDate, toDate string, keep func(model.Appointment) (bool, error)) ([]string, error) {
	var ids []string
	err := s.store.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		ids = ids[:0]
		appts, err := tx.ListConfirmedAppointments(ctx, fromDate, toDate)
		if err != nil {
			return err
		}
		for _, a := range appts {
			ok, err := keep(a)
			if err != nil {
				s.logger.Warn("skipping malformed appointment", "err", err, "appointment_id", a.ID)
				continue
			}
			if ok {
				ids = append(ids, a.ID)
			}
		}
		return nil
	})
	return ids, err
}
