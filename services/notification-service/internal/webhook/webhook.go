// Package webhook receives Telegram button presses and the owner's chat link requests.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/santiagopena171/app-agenda/libs/auth"
	"github.com/santiagopena171/app-agenda/libs/db"
	"github.com/santiagopena171/app-agenda/libs/httpx"
	"github.com/santiagopena171/app-agenda/libs/kafkax"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/delivery"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/storage"
	"github.com/santiagopena171/app-agenda/services/notification-service/internal/telegram"
)

// AttendanceTopic is consumed by the booking service.
const AttendanceTopic = "booking.attendance.reported.v1"

// SecretHeader carries the secret_token registered with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Businesses interface {
	BusinessForChat(ctx context.Context, chatID int64) (string, error)
	LinkChat(ctx context.Context, businessID, name string, chatID int64) error
}

type CallbackAnswerer interface {
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type AttendanceReport struct {
	AppointmentID string    `json:"appointment_id"`
	BusinessID    string    `json:"business_id"`
	Attended      bool      `json:"attended"`
	ReportedAt    time.Time `json:"reported_at"`
}

type Handler struct {
	businesses Businesses
	bot        CallbackAnswerer
	events     MessageWriter
	secret     string
	logger     *slog.Logger
	now        func() time.Time
}

func NewHandler(businesses Businesses, bot CallbackAnswerer, events MessageWriter, secret string, logger *slog.Logger) *Handler {
	return &Handler{
		businesses: businesses,
		bot:        bot,
		events:     events,
		secret:     secret,
		logger:     logger,
		now:        time.Now,
	}
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Header.Get(SecretHeader)), []byte(h.secret)) == 1
}

func (h *Handler) Register(mux *http.ServeMux, requireOwner func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /telegram/webhook", h.Telegram)
	mux.Handle("PUT /api/v1/owner/telegram", requireOwner(http.HandlerFunc(h.LinkChat)))
}

// Telegram handles an Update. Only a failure to publish returns a 5xx so Telegram retries.
// Without a configured secret every update is rejected.
func (h *Handler) Telegram(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var upd telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	cb := upd.CallbackQuery
	if cb == nil || cb.Message == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	ctx := r.Context()

	appointmentID, attended, ok := delivery.ParseCallback(cb.Data)
	if !ok {
		h.answer(ctx, cb.ID, "Acción desconocida.")
		w.WriteHeader(http.StatusOK)
		return
	}
	businessID, err := h.businesses.BusinessForChat(ctx, cb.Message.Chat.ID)
	if errors.Is(err, storage.ErrNoChat) {
		h.logger.Warn("callback from unlinked chat", "chat_id", cb.Message.Chat.ID)
		h.answer(ctx, cb.ID, "Este chat no está vinculado a ningún negocio.")
		w.WriteHeader(http.StatusOK)
		return
	}
	if err != nil {
		h.logger.Error("business lookup failed", "err", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(AttendanceReport{
		AppointmentID: appointmentID,
		BusinessID:    businessID,
		Attended:      attended,
		ReportedAt:    h.now().UTC(),
	})
	if err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	// The callback query id is unique per press, so a retried update keeps its event id.
	msg := kafkax.NewEventMessage(ctx, AttendanceTopic, "tg-"+cb.ID, appointmentID, payload)
	if err := h.events.WriteMessages(ctx, msg); err != nil {
		h.logger.Error("attendance publish failed", "err", err, "appointment_id", appointmentID)
		http.Error(w, "publish failed", http.StatusServiceUnavailable)
		return
	}

	reply := "Registrado: no asistió."
	if attended {
		reply = "Registrado: asistió."
	}
	h.answer(ctx, cb.ID, reply)
	h.logger.Info("attendance reported", "appointment_id", appointmentID, "business_id", businessID, "attended", attended)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) answer(ctx context.Context, callbackID, text string) {
	if err := h.bot.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		h.logger.Warn("answerCallbackQuery failed", "err", err)
	}
}

type linkRequest struct {
	ChatID int64  `json:"chat_id"`
	Name   string `json:"name"`
}

// LinkChat binds the caller's business to a Telegram chat.
func (h *Handler) LinkChat(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
		return
	}
	var req linkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.ChatID == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", "chat_id is required")
		return
	}
	err := h.businesses.LinkChat(r.Context(), claims.BusinessID, req.Name, req.ChatID)
	if db.IsUniqueViolation(err) {
		httpx.WriteError(w, http.StatusConflict, "conflict", "chat is already linked to another business")
		return
	}
	if err != nil {
		h.logger.Error("link chat failed", "err", err, "business_id", claims.BusinessID)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "could not link chat")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"business_id": claims.BusinessID, "chat_id": req.ChatID})
}
