package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/santiagopena171/app-agenda/libs/auth"
	"github.com/santiagopena171/app-agenda/libs/httpx"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/clock"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/model"
	"github.com/santiagopena171/app-agenda/services/booking-service/internal/store"
)

type OwnerActions interface {
	Cancel(ctx context.Context, appointmentID, callerBusinessID string) (model.Appointment, error)
	RecordAttendance(ctx context.Context, appointmentID, callerBusinessID string, attended bool) (model.Appointment, error)
}

// OwnerHandler serves the routes behind auth.RequireOwner. The business comes from the token.
type OwnerHandler struct {
	actions OwnerActions
	reader  store.Reader
	logger  *slog.Logger
}

func NewOwnerHandler(actions OwnerActions, reader store.Reader, logger *slog.Logger) *OwnerHandler {
	return &OwnerHandler{actions: actions, reader: reader, logger: logger}
}

func (h *OwnerHandler) Register(mux *http.ServeMux, requireOwner func(http.Handler) http.Handler) {
	mux.Handle("POST /api/v1/appointments/cancel", requireOwner(http.HandlerFunc(h.Cancel)))
	mux.Handle("GET /api/v1/appointments", requireOwner(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/v1/appointments/attendance", requireOwner(http.HandlerFunc(h.Attendance)))
	mux.Handle("GET /api/v1/problem-clients", requireOwner(http.HandlerFunc(h.ProblemClients)))
}

func businessFromToken(r *http.Request) string {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.BusinessID
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *OwnerHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	appt, err := h.actions.Cancel(r.Context(), req.AppointmentID, businessFromToken(r))
	if err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

type attendanceRequest struct {
	AppointmentID string `json:"appointment_id"`
	Attended      *bool  `json:"attended"`
}

func (h *OwnerHandler) Attendance(w http.ResponseWriter, r *http.Request) {
	var req attendanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		badRequest(w, "invalid json body")
		return
	}
	if req.Attended == nil {
		badRequest(w, "attended is required")
		return
	}
	appt, err := h.actions.RecordAttendance(r.Context(), req.AppointmentID, businessFromToken(r), *req.Attended)
	if err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type listResponse struct {
	Appointments []model.Appointment `json:"appointments"`
}

func (h *OwnerHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AppointmentFilter{Limit: defaultListLimit}

	if date := strings.TrimSpace(q.Get("date")); date != "" {
		if _, err := clock.ParseDate(date); err != nil {
			badRequest(w, "date must be YYYY-MM-DD")
			return
		}
		filter.Date = date
	}
	if status := model.AppointmentStatus(strings.TrimSpace(q.Get("status"))); status != "" {
		if !status.Valid() {
			badRequest(w, "unknown status")
			return
		}
		filter.Status = status
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, maxListLimit)
	}

	items, err := h.reader.ListAppointments(r.Context(), businessFromToken(r), filter)
	if err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	if items == nil {
		items = []model.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Appointments: items})
}

type problemClientsResponse struct {
	ProblemClients []model.ProblemClient `json:"problem_clients"`
}

func (h *OwnerHandler) ProblemClients(w http.ResponseWriter, r *http.Request) {
	items, err := h.reader.ListProblemClients(r.Context(), businessFromToken(r))
	if err != nil {
		writeError(w, r, h.logger, err, true)
		return
	}
	if items == nil {
		items = []model.ProblemClient{}
	}
	httpx.WriteJSON(w, http.StatusOK, problemClientsResponse{ProblemClients: items})
}
