package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/santiagopena171/app-agenda/libs/httpx"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/booking"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/metrics"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
)

type SlotResolver interface {
	AvailableSlots(ctx context.Context, businessID, serviceID, date string) ([]string, error)
}

type QueueGate interface {
	Join(ctx context.Context, businessID, sessionID, clientIP string) (model.QueueClient, error)
	Heartbeat(ctx context.Context, businessID, sessionID string) (model.QueueClient, error)
	Remove(ctx context.Context, businessID, sessionID string) error
	Position(ctx context.Context, businessID, sessionID string) (model.QueueClient, error)
}

type Booker interface {
	Create(ctx context.Context, req booking.CreateRequest) (model.Appointment, error)
}

// PublicHandler serves the unauthenticated booking link.
type PublicHandler struct {
	slots   SlotResolver
	queue   QueueGate
	booker  Booker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewPublicHandler(slots SlotResolver, queue QueueGate, booker Booker, m *metrics.Metrics, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{slots: slots, queue: queue, booker: booker, metrics: m, logger: logger}
}

// Register mounts the public routes; wrap applies the public middleware (rate limit, CORS).
func (h *PublicHandler) Register(mux *http.ServeMux, wrap httpx.Middleware) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("GET /api/v1/public/slots", wrap(http.HandlerFunc(h.Slots)))
	mux.Handle("POST /api/v1/public/queue/join", wrap(http.HandlerFunc(h.Join)))
	mux.Handle("POST /api/v1/public/queue/heartbeat", wrap(http.HandlerFunc(h.Heartbeat)))
	mux.Handle("POST /api/v1/public/queue/leave", wrap(http.HandlerFunc(h.Leave)))
	mux.Handle("GET /api/v1/public/queue/position", wrap(http.HandlerFunc(h.Position)))
	mux.Handle("POST /api/v1/public/book", wrap(http.HandlerFunc(h.Book)))
	// Preflight requests for the JSON POST routes.
	mux.Handle("OPTIONS /api/v1/public/", wrap(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))
}

type slotsResponse struct {
	BusinessID string   `json:"business_id"`
	ServiceID  string   `json:"service_id"`
	Date       string   `json:"date"`
	Slots      []string `json:"slots"`
}

func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	businessID := strings.TrimSpace(q.Get("business_id"))
	serviceID := strings.TrimSpace(q.Get("service_id"))
	date := strings.TrimSpace(q.Get("date"))
	if businessID == "" || serviceID == "" || date == "" {
		badRequest(w, "business_id, service_id and date are required")
		return
	}

	start := time.Now()
	slots, err := h.slots.AvailableSlots(r.Context(), businessID, serviceID, date)
	h.metrics.ObserveSlotQuery(start)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{BusinessID: businessID, ServiceID: serviceID, Date: date, Slots: slots})
}

type sessionRequest struct {
	BusinessID string `json:"business_id"`
	SessionID  string `json:"session_id"`
}

func decodeSession(w http.ResponseWriter, r *http.Request) (sessionRequest, bool) {
	var req sessionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return sessionRequest{}, false
	}
	return req, true
}

func (h *PublicHandler) Join(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSession(w, r)
	if !ok {
		return
	}
	c, err := h.queue.Join(r.Context(), req.BusinessID, req.SessionID, httpx.ClientIP(r))
	h.metrics.Observe("queue_join", err)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *PublicHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSession(w, r)
	if !ok {
		return
	}
	c, err := h.queue.Heartbeat(r.Context(), req.BusinessID, req.SessionID)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *PublicHandler) Leave(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSession(w, r)
	if !ok {
		return
	}
	err := h.queue.Remove(r.Context(), req.BusinessID, req.SessionID)
	h.metrics.Observe("queue_leave", err)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PublicHandler) Position(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := h.queue.Position(r.Context(), q.Get("business_id"), q.Get("session_id"))
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req booking.CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	appt, err := h.booker.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, h.logger, err, false)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}
