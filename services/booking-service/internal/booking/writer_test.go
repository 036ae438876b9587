package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/memstore"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/queue"
)

// 2026-01-25 08:00 in UTC-3.
var now = time.Date(2026, 1, 25, 11, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recorder) Send(_ context.Context, n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
}

func (r *recorder) kinds() []model.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.NotificationKind
	for _, n := range r.sent {
		out = append(out, n.Kind)
	}
	return out
}

type noopRemover struct{}

func (noopRemover) Remove(context.Context, string, string) error { return nil }

type fixture struct {
	store    *memstore.Store
	gate     *queue.Gate
	writer   *Writer
	notifier *recorder
}

func newFixture(t *testing.T, remover QueueRemover) *fixture {
	t.Helper()
	s := memstore.New()
	s.PutService(model.Service{ID: "cut", BusinessID: "b1", Name: "Haircut", DurationMinutes: 60, Active: true})
	s.PutService(model.Service{ID: "off", BusinessID: "b1", Name: "Retired", DurationMinutes: 30})
	days := map[string]model.DaySchedule{}
	for _, d := range []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"} {
		days[d] = model.DaySchedule{Enabled: true, Windows: []model.TimeWindow{{Start: "09:00", End: "18:00"}}, IntervalMinutes: 30}
	}
	s.PutAvailability("b1", model.Availability{Templates: []model.Template{{Kind: model.TemplateWeekly, Days: days}}})

	clk := func() time.Time { return now }
	gate := queue.NewGate(s, queue.WithClock(clk))
	if remover == nil {
		remover = gate
	}
	rec := &recorder{}
	w := NewWriter(s, remover, rec, WithClock(clk), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return &fixture{store: s, gate: gate, writer: w, notifier: rec}
}

func (f *fixture) join(t *testing.T, session string) {
	t.Helper()
	_, err := f.gate.Join(context.Background(), "b1", session, "")
	require.NoError(t, err)
}

func request(session, date, start, phone string) CreateRequest {
	return CreateRequest{
		BusinessID:  "b1",
		ServiceID:   "cut",
		SessionID:   session,
		Date:        date,
		StartTime:   start,
		ClientName:  "Ana Pérez",
		ClientPhone: phone,
	}
}

func TestCreate_HappyPath(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "s1")

	appt, err := f.writer.Create(context.Background(), request("s1", "2026-01-25", "10:00", "1155550000"))
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
	assert.Equal(t, "11:00", appt.EndTime)
	assert.Equal(t, "Haircut", appt.ServiceName)
	assert.Equal(t, []string{}, appt.NotificationsSent)

	assert.Equal(t, 0, f.store.Queue("b1").CurrentCount, "booker leaves the queue")
	assert.Equal(t, []model.NotificationKind{model.NotifyNewAppointment}, f.notifier.kinds())
}

func TestCreate_OnlyHeadOfQueueMayBook(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t, "first")
	f.join(t, "second")

	_, err := f.writer.Create(context.Background(), request("second", "2026-01-25", "10:00", "1155550000"))
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.writer.Create(context.Background(), request("stranger", "2026-01-25", "10:00", "1155550000"))
	assert.ErrorIs(t, err, model.ErrUnauthorized)
	assert.Empty(t, f.notifier.kinds())
}

func TestCreate_ConcurrentOverlapsAdmitOne(t *testing.T) {
	f := newFixture(t, noopRemover{})
	f.join(t, "s1")

	starts := []string{"10:00", "10:30", "10:00", "10:30", "10:00", "10:30"}
	errs := make([]error, len(starts))
	var wg sync.WaitGroup
	for i, start := range starts {
		wg.Add(1)
		go func(i int, start string) {
			defer wg.Done()
			_, errs[i] = f.writer.Create(context.Background(), request("s1", "2026-01-26", start, fmt.Sprintf("11555500%02d", i)))
		}(i, start)
	}
	wg.Wait()

	ok, taken := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrSlotUnavailable):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, len(starts)-1, taken)

	booked, err := f.store.ListAppointmentsByDate(context.Background(), "b1", "2026-01-26", model.StatusConfirmed)
	require.NoError(t, err)
	assert.Len(t, booked, 1)
}

func TestCreate_CapAndCancellationReenables(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	phone := "1155550000"

	var first model.Appointment
	for i, date := range []string{"2026-01-26", "2026-01-27", "2026-01-28"} {
		f.join(t, "s1")
		appt, err := f.writer.Create(ctx, request("s1", date, "09:00", phone))
		require.NoError(t, err)
		if i == 0 {
			first = appt
		}
	}

	f.join(t, "s1")
	_, err := f.writer.Create(ctx, request("s1", "2026-01-29", "09:00", phone))
	require.ErrorIs(t, err, model.ErrLimitExceeded)

	_, err = f.writer.Cancel(ctx, first.ID, "b1")
	require.NoError(t, err)

	_, err = f.writer.Create(ctx, request("s1", "2026-01-29", "09:00", phone))
	require.NoError(t, err, "cancelling frees one of the three places")
}

func TestCreate_OnePerDate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.join(t, "s1")
	_, err := f.writer.Create(ctx, request("s1", "2026-01-26", "09:00", "1155550000"))
	require.NoError(t, err)

	f.join(t, "s1")
	_, err = f.writer.Create(ctx, request("s1", "2026-01-26", "15:00", "1155550000"))
	assert.ErrorIs(t, err, model.ErrDuplicateDate)
}

func TestCreate_SlotChecks(t *testing.T) {
	f := newFixture(t, noopRemover{})
	f.join(t, "s1")
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"outside hours", request("s1", "2026-01-26", "17:30", "1155550001"), model.ErrSlotUnavailable},
		{"before opening", request("s1", "2026-01-26", "08:00", "1155550001"), model.ErrSlotUnavailable},
		{"earlier today", request("s1", "2026-01-25", "07:00", "1155550001"), model.ErrSlotUnavailable},
		{"past date", request("s1", "2026-01-20", "10:00", "1155550001"), model.ErrSlotUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.writer.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	inactive := request("s1", "2026-01-26", "10:00", "1155550001")
	inactive.ServiceID = "off"
	_, err := f.writer.Create(ctx, inactive)
	assert.ErrorIs(t, err, model.ErrInactive)

	missing := request("s1", "2026-01-26", "10:00", "1155550001")
	missing.ServiceID = "nope"
	_, err = f.writer.Create(ctx, missing)
	assert.ErrorIs(t, err, model.ErrNotFound)

	f.store.PutException(model.Exception{BusinessID: "b1", Date: "2026-01-27", Kind: model.ExceptionBlocked})
	_, err = f.writer.Create(ctx, request("s1", "2026-01-27", "10:00", "1155550001"))
	assert.ErrorIs(t, err, model.ErrSlotUnavailable)
}

func TestCreate_ValidationHappensFirst(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bad := []CreateRequest{
		request("s1", "2026-01-26", "10:00", "12-34"),
		request("s1", "2026-01-26", "10:00", "1234567"),
		request("s1", "2026-01-26", "25:00", "1155550000"),
		request("s1", "26/01/2026", "10:00", "1155550000"),
		request("", "2026-01-26", "10:00", "1155550000"),
	}
	short := request("s1", "2026-01-26", "10:00", "1155550000")
	short.ClientName = " A "
	bad = append(bad, short)

	for _, req := range bad {
		_, err := f.writer.Create(ctx, req)
		assert.ErrorIs(t, err, model.ErrInvalidArgument, "%+v", req)
	}
	assert.Empty(t, f.notifier.kinds())
}

func TestCancel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.join(t, "s1")
	appt, err := f.writer.Create(ctx, request("s1", "2026-01-26", "10:00", "1155550000"))
	require.NoError(t, err)

	_, err = f.writer.Cancel(ctx, "missing", "b1")
	assert.ErrorIs(t, err, model.ErrNotFound)
	_, err = f.writer.Cancel(ctx, appt.ID, "b2")
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	cancelled, err := f.writer.Cancel(ctx, appt.ID, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, model.CancelledByOwner, cancelled.CancelledBy)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.writer.Cancel(ctx, appt.ID, "b1")
	assert.ErrorIs(t, err, model.ErrInvalidState)
	assert.Equal(t, []model.NotificationKind{model.NotifyNewAppointment, model.NotifyCancelled}, f.notifier.kinds())

	// The slot opens up again.
	f.join(t, "s2")
	_, err = f.writer.Create(ctx, request("s2", "2026-01-26", "10:00", "1155559999"))
	assert.NoError(t, err)
}

func TestRecordAttendance_NoShowsFlagClient(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	var ids []string
	for _, date := range []string{"2026-01-26", "2026-01-27"} {
		f.join(t, "s1")
		appt, err := f.writer.Create(ctx, request("s1", date, "10:00", "1155550000"))
		require.NoError(t, err)
		ids = append(ids, appt.ID)
	}

	got, err := f.writer.RecordAttendance(ctx, ids[0], "b1", false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompletedNoShow, got.Status)
	require.NotNil(t, got.CompletedAt)

	problems, err := f.store.ListProblemClients(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Equal(t, 1, problems[0].NoShowCount)
	assert.False(t, problems[0].Blocked)

	_, err = f.writer.RecordAttendance(ctx, ids[1], "b1", false)
	require.NoError(t, err)
	problems, err = f.store.ListProblemClients(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, problems[0].NoShowCount)
	assert.True(t, problems[0].Blocked)

	_, err = f.writer.RecordAttendance(ctx, ids[1], "b1", true)
	assert.ErrorIs(t, err, model.ErrInvalidState, "terminal records stay put")
}

func TestRecordAttendance_Attended(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.join(t, "s1")
	appt, err := f.writer.Create(ctx, request("s1", "2026-01-26", "10:00", "1155550000"))
	require.NoError(t, err)

	got, err := f.writer.RecordAttendance(ctx, appt.ID, "b1", true)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompletedAttended, got.Status)

	problems, err := f.store.ListProblemClients(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, problems)
}
