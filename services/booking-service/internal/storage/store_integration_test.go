package storage_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/queue"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

// Runs against a real Postgres when BOOKING_TEST_DATABASE_URL is set.
func openStore(t *testing.T) *storage.Store {
	t.Helper()
	url := os.Getenv("BOOKING_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BOOKING_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := storage.New(pool, db.DefaultRetryPolicy)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestPostgresQueueAndAppointments(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	business := "it-" + uuid.NewString()

	require.NoError(t, s.UpsertService(ctx, model.Service{ID: "cut", BusinessID: business, Name: "Haircut", DurationMinutes: 30, Active: true}))
	svc, err := s.GetService(ctx, business, "cut")
	require.NoError(t, err)
	assert.Equal(t, 30, svc.DurationMinutes)

	gate := queue.NewGate(s)
	for _, id := range []string{"a", "b", "c"} {
		_, err := gate.Join(ctx, business, id, "127.0.0.1")
		require.NoError(t, err)
	}
	require.NoError(t, gate.Remove(ctx, business, "a"))
	b, err := gate.Position(ctx, business, "b")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Position)
	assert.Equal(t, model.QueueActive, b.Status)

	now := time.Now().UTC().Truncate(time.Microsecond)
	appt := &model.Appointment{
		BusinessID: business, ServiceID: "cut", ServiceName: "Haircut", DurationMinutes: 30,
		Date: "2030-01-02", StartTime: "09:00", EndTime: "09:30",
		ClientName: "Ana", ClientPhone: "1155550000", Status: model.StatusConfirmed,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.InsertAppointment(ctx, appt)
	}))

	require.NoError(t, s.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetAppointment(ctx, appt.ID)
		if err != nil {
			return err
		}
		got.MarkNotified(model.NotifyReminder)
		if err := got.Transition(model.StatusCancelled, now); err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, got); err != nil {
			return err
		}
		return tx.EnqueueNotification(ctx, model.NewNotification(model.NotifyCancelled, got, now))
	}))

	list, err := s.ListAppointmentsByDate(ctx, business, "2030-01-02", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.StatusCancelled, list[0].Status)
	assert.Equal(t, []string{"reminder"}, list[0].NotificationsSent)
	assert.Equal(t, model.CancelledByOwner, list[0].CancelledBy)

	err = s.ReadWrite(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetAppointment(ctx, uuid.NewString())
		return err
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
