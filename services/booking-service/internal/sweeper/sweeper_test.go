package sweeper

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santiagopena171/app-agenda/services/booking-service/internal/memstore"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

// 12:00 business time on 2026-03-10.
var fixedNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type fakeQueue struct {
	calls   atomic.Int32
	timeout time.Duration
	onSweep func()
}

func (f *fakeQueue) Sweep(_ context.Context, timeout time.Duration) (int, error) {
	f.calls.Add(1)
	f.timeout = timeout
	if f.onSweep != nil {
		f.onSweep()
	}
	return 2, nil
}

func newSweeper(t *testing.T, q QueueSweeper) (*Sweeper, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(mem, q, logger, Config{}, WithClock(func() time.Time { return fixedNow })), mem
}

func insert(t *testing.T, mem *memstore.Store, id, date, start, end string, status model.AppointmentStatus) {
	t.Helper()
	err := mem.ReadWrite(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertAppointment(ctx, &model.Appointment{
			ID: id, BusinessID: "b1", ServiceID: "s1", ServiceName: "Corte", DurationMinutes: 30,
			Date: date, StartTime: start, EndTime: end, ClientName: "Ana", ClientPhone: "099123456",
			Status: status, CreatedAt: fixedNow.Add(-24 * time.Hour), UpdatedAt: fixedNow.Add(-24 * time.Hour),
			NotificationsSent: []string{},
		})
	})
	require.NoError(t, err)
}

func get(t *testing.T, mem *memstore.Store, id string) model.Appointment {
	t.Helper()
	var out model.Appointment
	require.NoError(t, mem.ReadWrite(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.GetAppointment(ctx, id)
		return err
	}))
	return out
}

func seedDay(t *testing.T, mem *memstore.Store) {
	insert(t, mem, "soon", "2026-03-10", "13:00", "13:30", model.StatusConfirmed)
	insert(t, mem, "later", "2026-03-10", "14:30", "15:00", model.StatusConfirmed)
	insert(t, mem, "started", "2026-03-10", "11:55", "12:25", model.StatusConfirmed)
	insert(t, mem, "ended", "2026-03-10", "11:00", "11:20", model.StatusConfirmed)
	insert(t, mem, "cancelled", "2026-03-10", "13:00", "13:30", model.StatusCancelled)
	insert(t, mem, "yesterday", "2026-03-09", "09:00", "09:30", model.StatusConfirmed)
}

func kinds(ns []model.Notification) map[string]model.NotificationKind {
	out := map[string]model.NotificationKind{}
	for _, n := range ns {
		out[n.AppointmentID] = n.Kind
	}
	return out
}

func TestReminders(t *testing.T) {
	sw, mem := newSweeper(t, &fakeQueue{})
	seedDay(t, mem)

	n, err := sw.RunOnce(context.Background(), JobReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]model.NotificationKind{"soon": model.NotifyReminder}, kinds(mem.Notifications()))
	assert.True(t, get(t, mem, "soon").Notified(model.NotifyReminder))

	n, err = sw.RunOnce(context.Background(), JobReminders)
	require.NoError(t, err)
	assert.Zero(t, n, "a reminder goes out once")
	assert.Len(t, mem.Notifications(), 1)
}

func TestConfirmationRequests(t *testing.T) {
	sw, mem := newSweeper(t, &fakeQueue{})
	seedDay(t, mem)

	n, err := sw.RunOnce(context.Background(), JobConfirmations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]model.NotificationKind{"started": model.NotifyConfirmationRequest}, kinds(mem.Notifications()))
}

func TestExpiry(t *testing.T) {
	sw, mem := newSweeper(t, &fakeQueue{})
	seedDay(t, mem)

	n, err := sw.RunOnce(context.Background(), JobExpiry)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for id, want := range map[string]model.AppointmentStatus{
		"ended":     model.StatusExpired,
		"yesterday": model.StatusExpired,
		"started":   model.StatusConfirmed,
		"soon":      model.StatusConfirmed,
		"cancelled": model.StatusCancelled,
	} {
		assert.Equal(t, want, get(t, mem, id).Status, id)
	}
	assert.Empty(t, mem.Notifications())
}

func TestExpiryLookback(t *testing.T) {
	sw, mem := newSweeper(t, &fakeQueue{})
	insert(t, mem, "last-month", "2026-02-10", "09:00", "09:30", model.StatusConfirmed)
	insert(t, mem, "last-week", "2026-03-05", "09:00", "09:30", model.StatusConfirmed)

	n, err := sw.RunOnce(context.Background(), JobExpiry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.StatusExpired, get(t, mem, "last-week").Status)
	assert.Equal(t, model.StatusConfirmed, get(t, mem, "last-month").Status, "outside the lookback")

	wide := New(mem, &fakeQueue{}, slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config{ExpireLookback: 60 * 24 * time.Hour}, WithClock(func() time.Time { return fixedNow }))
	n, err = wide.RunOnce(context.Background(), JobExpiry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.StatusExpired, get(t, mem, "last-month").Status)
}

func TestQueueJobUsesTimeout(t *testing.T) {
	q := &fakeQueue{}
	sw, _ := newSweeper(t, q)

	n, err := sw.RunOnce(context.Background(), JobQueue)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, model.QueueTimeout, q.timeout)
}

func TestParseJob(t *testing.T) {
	j, err := ParseJob("expiry")
	require.NoError(t, err)
	assert.Equal(t, JobExpiry, j)

	_, err = ParseJob("vacuum")
	assert.ErrorIs(t, err, model.ErrInvalidArgument)

	sw, _ := newSweeper(t, &fakeQueue{})
	_, err = sw.RunOnce(context.Background(), Job("vacuum"))
	assert.ErrorIs(t, err, model.ErrInvalidArgument)
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := &fakeQueue{onSweep: cancel}
	sw, _ := newSweeper(t, q)

	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, q.calls.Load(), int32(1))
}
