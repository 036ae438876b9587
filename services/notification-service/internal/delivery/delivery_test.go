package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/santiagopena171/app-agenda/libs/kafkax"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/telegram"
)

type chats map[string]int64

func (c chats) ChatForBusiness(_ context.Context, businessID string) (int64, error) {
	id, ok := c[businessID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", storage.ErrNoChat, businessID)
	}
	return id, nil
}

type recorder struct{ rows []storage.Notification }

func (r *recorder) Insert(_ context.Context, n storage.Notification) error {
	r.rows = append(r.rows, n)
	return nil
}

type sent struct {
	chatID  int64
	text    string
	buttons [][]telegram.Button
}

type fakeSender struct {
	msgs []sent
	err  error
}

func (f *fakeSender) ProviderID() string { return "fake" }

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string, buttons [][]telegram.Button) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, sent{chatID, text, buttons})
	return nil
}

func message(kind, business string) kafka.Message {
	payload := fmt.Sprintf(`{"id":"n1","kind":%q,"business_id":%q,"appointment_id":"a1","service_name":"Corte",
		"client_name":"Ana","client_phone":"099123456","date":"2026-03-10","start_time":"10:00","end_time":"10:30"}`, kind, business)
	return kafkax.NewEventMessage(context.Background(), "booking.notification.requested.v1", "evt-1", "a1", []byte(payload))
}

func newHandler(s *fakeSender) (*Handler, *recorder) {
	rec := &recorder{}
	return NewHandler(chats{"b1": 77}, rec, s, slog.New(slog.NewTextHandler(io.Discard, nil))), rec
}

func TestHandleSendsRenderedMessage(t *testing.T) {
	s := &fakeSender{}
	h, rec := newHandler(s)

	require.NoError(t, h.Handle(context.Background(), message(KindNewAppointment, "b1")))
	require.Len(t, s.msgs, 1)
	assert.EqualValues(t, 77, s.msgs[0].chatID)
	assert.Contains(t, s.msgs[0].text, "Nueva reserva")
	assert.Contains(t, s.msgs[0].text, "10/03/2026 10:00-10:30")
	assert.Empty(t, s.msgs[0].buttons)

	require.Len(t, rec.rows, 1)
	assert.Equal(t, storage.StatusSent, rec.rows[0].Status)
	assert.Equal(t, "evt-1", rec.rows[0].EventID)
	assert.Equal(t, "fake", rec.rows[0].Provider)
}

func TestConfirmationRequestCarriesButtons(t *testing.T) {
	s := &fakeSender{}
	h, _ := newHandler(s)

	require.NoError(t, h.Handle(context.Background(), message(KindConfirmationRequest, "b1")))
	require.Len(t, s.msgs, 1)
	require.Len(t, s.msgs[0].buttons, 1)
	row := s.msgs[0].buttons[0]
	assert.Equal(t, "attended:a1", row[0].CallbackData)
	assert.Equal(t, "no_show:a1", row[1].CallbackData)
}

func TestHandleOutcomes(t *testing.T) {
	s := &fakeSender{}
	h, rec := newHandler(s)
	require.NoError(t, h.Handle(context.Background(), message(KindReminder, "unlinked")))
	assert.Equal(t, storage.StatusSkipped, rec.rows[0].Status)

	require.NoError(t, h.Handle(context.Background(), message("birthday", "b1")))
	assert.Equal(t, storage.StatusFailed, rec.rows[1].Status)

	s.err = errors.New("telegram down")
	require.NoError(t, h.Handle(context.Background(), message(KindCancelled, "b1")))
	assert.Equal(t, storage.StatusFailed, rec.rows[2].Status)
	assert.Equal(t, "telegram down", rec.rows[2].ErrorReason)

	// Malformed payloads are dropped without a log row.
	require.NoError(t, h.Handle(context.Background(), kafka.Message{Value: []byte(`{"kind":"reminder"}`)}))
	require.NoError(t, h.Handle(context.Background(), kafka.Message{Value: []byte(`nope`)}))
	assert.Len(t, rec.rows, 3)
}

func TestParseCallback(t *testing.T) {
	id, attended, ok := ParseCallback("attended:a1")
	assert.True(t, ok)
	assert.True(t, attended)
	assert.Equal(t, "a1", id)

	id, attended, ok = ParseCallback("no_show:a2")
	assert.True(t, ok)
	assert.False(t, attended)
	assert.Equal(t, "a2", id)

	for _, bad := range []string{"", "attended:", "maybe:a1"} {
		_, _, ok := ParseCallback(bad)
		assert.False(t, ok, bad)
	}
}
