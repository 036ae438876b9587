package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

// Day is the resolved opening plan of one business date.
type Day struct {
	Open     bool
	Windows  []model.TimeWindow
	Interval int
}

// ResolveDay applies exception, dated template and weekly template in that order.
func ResolveDay(ctx context.Context, r store.Reader, businessID, date string) (Day, error) {
	weekday, err := clock.Weekday(date)
	if err != nil {
		return Day{}, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
	}

	av, err := r.GetAvailability(ctx, businessID)
	if err != nil {
		return Day{}, err
	}
	sched, hasSched := av.ScheduleFor(date, weekday)

	ex, hasEx, err := r.GetException(ctx, businessID, date)
	if err != nil {
		return Day{}, err
	}
	if hasEx {
		switch ex.Kind {
		case model.ExceptionBlocked:
			return Day{}, nil
		case model.ExceptionCustom:
			// Custom hours keep the step of whatever template covers the date.
			return Day{Open: len(ex.Windows) > 0, Windows: ex.Windows, Interval: sched.Interval()}, nil
		}
	}

	if !hasSched || !sched.Enabled || len(sched.Windows) == 0 {
		return Day{}, nil
	}
	return Day{Open: true, Windows: sched.Windows, Interval: sched.Interval()}, nil
}

// Cache stores the free slots of a (business, service, date) before the "now" cut-off is
// applied. Entries are tagged with the business date's version; Invalidate bumps it so that
// a Set racing with a booking can only write under the old version.
type Cache interface {
	Version(ctx context.Context, businessID, date string) (int64, error)
	Get(ctx context.Context, businessID, serviceID, date string, version int64) ([]string, bool, error)
	Set(ctx context.Context, businessID, serviceID, date string, version int64, slots []string) error
	Invalidate(ctx context.Context, businessID, date string) error
}

type Resolver struct {
	reader store.Reader
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Resolver)

func WithCache(c Cache) Option {
	return func(r *Resolver) { r.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

func NewResolver(reader store.Reader, opts ...Option) *Resolver {
	r := &Resolver{reader: reader, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AvailableSlots returns the bookable "HH:MM" starts for serviceID on date, sorted ascending.
// Past dates yield an empty list; on today's date starts already gone are dropped.
func (r *Resolver) AvailableSlots(ctx context.Context, businessID, serviceID, date string) ([]string, error) {
	if businessID == "" || serviceID == "" {
		return nil, fmt.Errorf("%w: business_id and service_id are required", model.ErrInvalidArgument)
	}
	if _, err := clock.ParseDate(date); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
	}

	svc, err := r.reader.GetService(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, fmt.Errorf("%w: service %s", model.ErrInactive, serviceID)
	}

	now := r.now()
	today := clock.Today(now)
	if date < today {
		return []string{}, nil
	}
	notBefore := 0
	if date == today {
		notBefore = clock.MinuteOfDay(now)
	}

	version, cached := int64(-1), false
	if r.cache != nil {
		version, err = r.cache.Version(ctx, businessID, date)
		if err != nil {
			r.logger.Warn("slot cache version read failed", "err", err, "business_id", businessID, "date", date)
			version = -1
		}
	}
	if version >= 0 {
		var slots []string
		slots, cached, err = r.cache.Get(ctx, businessID, serviceID, date, version)
		if err != nil {
			r.logger.Warn("slot cache read failed", "err", err, "business_id", businessID, "date", date)
		} else if cached {
			return r.recheck(ctx, svc, date, slots, notBefore)
		}
	}

	free, err := r.freeSlots(ctx, svc, date)
	if err != nil {
		return nil, err
	}
	if version >= 0 {
		if err := r.cache.Set(ctx, businessID, serviceID, date, version, free); err != nil {
			r.logger.Warn("slot cache write failed", "err", err, "business_id", businessID, "date", date)
		}
	}
	return dropBefore(free, notBefore), nil
}

func (r *Resolver) freeSlots(ctx context.Context, svc model.Service, date string) ([]string, error) {
	day, err := ResolveDay(ctx, r.reader, svc.BusinessID, date)
	if err != nil {
		return nil, err
	}
	if !day.Open {
		return []string{}, nil
	}
	cands, err := Candidates(day.Windows, svc.DurationMinutes, day.Interval)
	if err != nil {
		return nil, err
	}
	booked, err := r.reader.ListAppointmentsByDate(ctx, svc.BusinessID, date, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	return FormatSlots(Free(cands, svc.DurationMinutes, BusyIntervals(booked), 0)), nil
}

// recheck filters cached starts against the confirmed appointments of the date, so a missed
// invalidation can only leave stale free slots out, never offer a booked one.
func (r *Resolver) recheck(ctx context.Context, svc model.Service, date string, slots []string, notBefore int) ([]string, error) {
	booked, err := r.reader.ListAppointmentsByDate(ctx, svc.BusinessID, date, model.StatusConfirmed)
	if err != nil {
		return nil, err
	}
	cands := make([]int, 0, len(slots))
	for _, s := range slots {
		m, err := clock.TimeToMinutes(s)
		if err != nil {
			continue
		}
		cands = append(cands, m)
	}
	return FormatSlots(Free(cands, svc.DurationMinutes, BusyIntervals(booked), notBefore)), nil
}

func dropBefore(slots []string, notBefore int) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		m, err := clock.TimeToMinutes(s)
		if err != nil || m < notBefore {
			continue
		}
		out = append(out, s)
	}
	return out
}

const (
	invalidateAttempts = 2
	invalidateTimeout  = 2 * time.Second
)

// Invalidate forgets cached slots of a business date after a booking or cancellation. It runs
// detached from the caller's cancellation since the write it follows is already committed.
func (r *Resolver) Invalidate(ctx context.Context, businessID, date string) {
	if r.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var err error
	for attempt := 0; attempt < invalidateAttempts; attempt++ {
		err = r.invalidateOnce(ctx, businessID, date)
		if err == nil {
			return
		}
	}
	r.logger.Warn("slot cache invalidation failed", "err", err, "business_id", businessID, "date", date)
}

func (r *Resolver) invalidateOnce(ctx context.Context, businessID, date string) error {
	ctx, cancel := context.WithTimeout(ctx, invalidateTimeout)
	defer cancel()
	return r.cache.Invalidate(ctx, businessID, date)
}
