// Package memstore is an in-memory store.Store. Each ReadWrite works on a private copy of
// the data and commits only if no other transaction committed in the meantime; losers are
// retried with the same policy as the Postgres store.
package memstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

// ErrConflict is returned by a commit that lost the race; ReadWrite retries it.
var ErrConflict = errors.New("memstore: concurrent update conflict")

type Store struct {
	mu      sync.Mutex
	data    *state
	version uint64
	policy  db.RetryPolicy
}

var _ store.Store = (*Store)(nil)

type Option func(*Store)

func WithRetryPolicy(p db.RetryPolicy) Option {
	return func(s *Store) { s.policy = p }
}

func New(opts ...Option) *Store {
	s := &Store{data: newState(), policy: db.DefaultRetryPolicy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ReadWrite(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := db.Retry(ctx, s.policy, isConflict, func(ctx context.Context) error {
		s.mu.Lock()
		base := s.version
		work := s.data.clone()
		s.mu.Unlock()

		if err := fn(ctx, &tx{view: view{st: work}}); err != nil {
			return err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.version != base {
			return ErrConflict
		}
		s.data = work
		s.version++
		return nil
	})
	if errors.Is(err, db.ErrRetriesExhausted) {
		return fmt.Errorf("%w: %w", model.ErrTransient, err)
	}
	return err
}

func isConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// snapshot is safe to read without the lock: committed states are never mutated.
func (s *Store) snapshot() view {
	s.mu.Lock()
	defer s.mu.Unlock()
	return view{st: s.data}
}

func (s *Store) GetService(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	return s.snapshot().GetService(ctx, businessID, serviceID)
}

func (s *Store) GetAvailability(ctx context.Context, businessID string) (model.Availability, error) {
	return s.snapshot().GetAvailability(ctx, businessID)
}

func (s *Store) GetException(ctx context.Context, businessID, date string) (model.Exception, bool, error) {
	return s.snapshot().GetException(ctx, businessID, date)
}

func (s *Store) ListAppointmentsByDate(ctx context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error) {
	return s.snapshot().ListAppointmentsByDate(ctx, businessID, date, status)
}

func (s *Store) ListAppointments(ctx context.Context, businessID string, filter store.AppointmentFilter) ([]model.Appointment, error) {
	return s.snapshot().ListAppointments(ctx, businessID, filter)
}

func (s *Store) GetQueueClient(ctx context.Context, businessID, sessionID string) (model.QueueClient, error) {
	return s.snapshot().GetQueueClient(ctx, businessID, sessionID)
}

func (s *Store) ListStaleQueueClients(ctx context.Context, before time.Time, limit int) ([]model.QueueClient, error) {
	return s.snapshot().ListStaleQueueClients(ctx, before, limit)
}

func (s *Store) ListProblemClients(ctx context.Context, businessID string) ([]model.ProblemClient, error) {
	return s.snapshot().ListProblemClients(ctx, businessID)
}

// Notifications returns every notification committed to the outbox so far.
func (s *Store) Notifications() []model.Notification {
	return slices.Clone(s.snapshot().st.outbox)
}

// Queue returns the committed queue counters of a business.
func (s *Store) Queue(businessID string) model.Queue {
	q, ok := s.snapshot().st.queues[businessID]
	if !ok {
		return model.Queue{BusinessID: businessID}
	}
	return q
}

// QueueClients returns the committed clients of a business ordered by position.
func (s *Store) QueueClients(businessID string) []model.QueueClient {
	var out []model.QueueClient
	for _, c := range s.snapshot().st.clients[businessID] {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.QueueClient) int { return cmp.Compare(a.Position, b.Position) })
	return out
}

// PutService and the other Put helpers write configuration outside of a transaction.
func (s *Store) PutService(svc model.Service) {
	s.mutate(func(st *state) { st.services[svcKey(svc.BusinessID, svc.ID)] = svc })
}

func (s *Store) PutAvailability(businessID string, av model.Availability) {
	av.BusinessID = businessID
	s.mutate(func(st *state) { st.availability[businessID] = av })
}

func (s *Store) PutException(ex model.Exception) {
	s.mutate(func(st *state) { st.exceptions[pairKey(ex.BusinessID, ex.Date)] = ex })
}

func (s *Store) mutate(fn func(*state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	fn(work)
	s.data = work
	s.version++
}

type state struct {
	services     map[string]model.Service
	availability map[string]model.Availability
	exceptions   map[string]model.Exception
	appointments map[string]model.Appointment
	queues       map[string]model.Queue
	clients      map[string]map[string]model.QueueClient
	problems     map[string]model.ProblemClient
	outbox       []model.Notification
}

func newState() *state {
	return &state{
		services:     map[string]model.Service{},
		availability: map[string]model.Availability{},
		exceptions:   map[string]model.Exception{},
		appointments: map[string]model.Appointment{},
		queues:       map[string]model.Queue{},
		clients:      map[string]map[string]model.QueueClient{},
		problems:     map[string]model.ProblemClient{},
	}
}

// clone copies every mutable container. Configuration values are replaced wholesale by the
// Put helpers and never edited in place, so sharing them is fine.
func (st *state) clone() *state {
	out := &state{
		services:     cloneMap(st.services),
		availability: cloneMap(st.availability),
		exceptions:   cloneMap(st.exceptions),
		appointments: make(map[string]model.Appointment, len(st.appointments)),
		queues:       cloneMap(st.queues),
		clients:      make(map[string]map[string]model.QueueClient, len(st.clients)),
		problems:     cloneMap(st.problems),
		outbox:       slices.Clone(st.outbox),
	}
	for id, a := range st.appointments {
		out.appointments[id] = a.Clone()
	}
	for b, m := range st.clients {
		out.clients[b] = cloneMap(m)
	}
	return out
}

func cloneMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func svcKey(businessID, serviceID string) string { return businessID + "/" + serviceID }
func pairKey(businessID, date string) string     { return businessID + "/" + date }

type view struct {
	st *state
}

func (v view) GetService(_ context.Context, businessID, serviceID string) (model.Service, error) {
	svc, ok := v.st.services[svcKey(businessID, serviceID)]
	if !ok {
		return model.Service{}, fmt.Errorf("%w: service %s", model.ErrNotFound, serviceID)
	}
	return svc, nil
}

func (v view) GetAvailability(_ context.Context, businessID string) (model.Availability, error) {
	av, ok := v.st.availability[businessID]
	if !ok {
		return model.Availability{BusinessID: businessID}, nil
	}
	return av, nil
}

func (v view) GetException(_ context.Context, businessID, date string) (model.Exception, bool, error) {
	ex, ok := v.st.exceptions[pairKey(businessID, date)]
	return ex, ok, nil
}

func (v view) ListAppointmentsByDate(_ context.Context, businessID, date string, status model.AppointmentStatus) ([]model.Appointment, error) {
	return v.filterAppointments(func(a model.Appointment) bool {
		return a.BusinessID == businessID && a.Date == date && (status == "" || a.Status == status)
	}, 0), nil
}

func (v view) ListAppointments(_ context.Context, businessID string, f store.AppointmentFilter) ([]model.Appointment, error) {
	return v.filterAppointments(func(a model.Appointment) bool {
		return a.BusinessID == businessID &&
			(f.Date == "" || a.Date == f.Date) &&
			(f.Status == "" || a.Status == f.Status)
	}, f.Limit), nil
}

func (v view) filterAppointments(keep func(model.Appointment) bool, limit int) []model.Appointment {
	var out []model.Appointment
	for _, a := range v.st.appointments {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	slices.SortFunc(out, func(a, b model.Appointment) int {
		return cmp.Or(cmp.Compare(a.Date, b.Date), cmp.Compare(a.StartTime, b.StartTime), cmp.Compare(a.ID, b.ID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (v view) GetQueueClient(_ context.Context, businessID, sessionID string) (model.QueueClient, error) {
	c, ok := v.st.clients[businessID][sessionID]
	if !ok {
		return model.QueueClient{}, fmt.Errorf("%w: session %s not in queue", model.ErrNotFound, sessionID)
	}
	return c, nil
}

func (v view) ListStaleQueueClients(_ context.Context, before time.Time, limit int) ([]model.QueueClient, error) {
	var out []model.QueueClient
	for _, m := range v.st.clients {
		for _, c := range m {
			if c.LastActivity.Before(before) {
				out = append(out, c)
			}
		}
	}
	slices.SortFunc(out, func(a, b model.QueueClient) int { return a.LastActivity.Compare(b.LastActivity) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v view) ListProblemClients(_ context.Context, businessID string) ([]model.ProblemClient, error) {
	var out []model.ProblemClient
	for _, p := range v.st.problems {
		if p.BusinessID == businessID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b model.ProblemClient) int {
		return cmp.Or(cmp.Compare(b.NoShowCount, a.NoShowCount), cmp.Compare(a.ClientPhone, b.ClientPhone))
	})
	return out, nil
}

type tx struct {
	view
}

func (t *tx) GetQueue(_ context.Context, businessID string) (model.Queue, error) {
	q, ok := t.st.queues[businessID]
	if !ok {
		return model.Queue{BusinessID: businessID}, nil
	}
	return q, nil
}

func (t *tx) SaveQueue(_ context.Context, q model.Queue) error {
	t.st.queues[q.BusinessID] = q
	return nil
}

func (t *tx) SaveQueueClient(_ context.Context, c model.QueueClient) error {
	m, ok := t.st.clients[c.BusinessID]
	if !ok {
		m = map[string]model.QueueClient{}
		t.st.clients[c.BusinessID] = m
	}
	m[c.SessionID] = c
	return nil
}

func (t *tx) DeleteQueueClient(_ context.Context, businessID, sessionID string) error {
	delete(t.st.clients[businessID], sessionID)
	return nil
}

func (t *tx) ShiftQueuePositions(_ context.Context, businessID string, after int) error {
	m := t.st.clients[businessID]
	for id, c := range m {
		if c.Position > after {
			c.Position--
			if c.Status != model.QueueExpired {
				c.Status = model.StatusForPosition(c.Position)
			}
			m[id] = c
		}
	}
	return nil
}

func (t *tx) ListClientAppointments(_ context.Context, businessID, phone, fromDate string) ([]model.Appointment, error) {
	return t.filterAppointments(func(a model.Appointment) bool {
		return a.BusinessID == businessID && a.ClientPhone == phone &&
			a.Status == model.StatusConfirmed && a.Date >= fromDate
	}, 0), nil
}

func (t *tx) InsertAppointment(_ context.Context, a *model.Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if _, exists := t.st.appointments[a.ID]; exists {
		return fmt.Errorf("%w: appointment %s already exists", model.ErrInvalidState, a.ID)
	}
	t.st.appointments[a.ID] = a.Clone()
	return nil
}

func (t *tx) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", model.ErrNotFound, id)
	}
	return a.Clone(), nil
}

func (t *tx) UpdateAppointment(_ context.Context, a model.Appointment) error {
	if _, ok := t.st.appointments[a.ID]; !ok {
		return fmt.Errorf("%w: appointment %s", model.ErrNotFound, a.ID)
	}
	t.st.appointments[a.ID] = a.Clone()
	return nil
}

func (t *tx) ListConfirmedAppointments(_ context.Context, fromDate, toDate string) ([]model.Appointment, error) {
	return t.filterAppointments(func(a model.Appointment) bool {
		return a.Status == model.StatusConfirmed && a.Date >= fromDate && a.Date <= toDate
	}, 0), nil
}

func (t *tx) GetProblemClient(_ context.Context, businessID, phone string) (model.ProblemClient, bool, error) {
	p, ok := t.st.problems[pairKey(businessID, phone)]
	return p, ok, nil
}

func (t *tx) UpsertProblemClient(_ context.Context, p model.ProblemClient) error {
	t.st.problems[pairKey(p.BusinessID, p.ClientPhone)] = p
	return nil
}

func (t *tx) EnqueueNotification(_ context.Context, n model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	t.st.outbox = append(t.st.outbox, n)
	return nil
}
