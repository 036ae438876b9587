package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/santiagopena171/app-agenda/libs/kafkax"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/telegram"
)

type ChatDirectory interface {
	ChatForBusiness(ctx context.Context, businessID string) (int64, error)
}

type Recorder interface {
	Insert(ctx context.Context, n storage.Notification) error
}

type Handler struct {
	chats  ChatDirectory
	log    Recorder
	sender telegram.Sender
	logger *slog.Logger
}

func NewHandler(chats ChatDirectory, log Recorder, sender telegram.Sender, logger *slog.Logger) *Handler {
	return &Handler{chats: chats, log: log, sender: sender, logger: logger}
}

// Handle is a kafkax.Handler. Malformed payloads are dropped; the delivery outcome is always
// written to the notifications log.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	var n Notification
	if err := json.Unmarshal(msg.Value, &n); err != nil {
		h.logger.Error("invalid notification payload", "err", err)
		return nil
	}
	if err := n.validate(); err != nil {
		h.logger.Error("invalid notification", "err", err, "event_id", kafkax.ExtractEventMeta(msg).EventID)
		return nil
	}

	rec := storage.Notification{
		EventID:       kafkax.ExtractEventMeta(msg).EventID,
		AppointmentID: n.AppointmentID,
		BusinessID:    n.BusinessID,
		Kind:          n.Kind,
		Provider:      h.sender.ProviderID(),
		Status:        storage.StatusSent,
	}

	text, buttons, err := Render(n)
	if err != nil {
		rec.Status, rec.ErrorReason = storage.StatusFailed, err.Error()
		return h.finish(ctx, rec)
	}
	rec.Body = text

	chatID, err := h.chats.ChatForBusiness(ctx, n.BusinessID)
	if errors.Is(err, storage.ErrNoChat) {
		rec.Status, rec.ErrorReason = storage.StatusSkipped, err.Error()
		return h.finish(ctx, rec)
	}
	if err != nil {
		return fmt.Errorf("lookup chat: %w", err)
	}
	rec.ChatID = chatID

	if err := h.sender.SendMessage(ctx, chatID, text, buttons); err != nil {
		h.logger.Error("telegram send failed", "err", err, "business_id", n.BusinessID, "kind", n.Kind)
		rec.Status, rec.ErrorReason = storage.StatusFailed, err.Error()
	}
	return h.finish(ctx, rec)
}

func (h *Handler) finish(ctx context.Context, rec storage.Notification) error {
	if err := h.log.Insert(ctx, rec); err != nil {
		h.logger.Error("failed to persist notification", "err", err)
		return err
	}
	h.logger.Info("notification processed", "appointment_id", rec.AppointmentID, "kind", rec.Kind, "status", rec.Status)
	return nil
}
