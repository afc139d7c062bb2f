package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// CancelRequest is the body of POST /api/appointments/{number}/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// Handler exposes appointment records to patients and administrators.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// ListMine handles GET /api/appointments.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	if user == nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	recs, err := h.service.ListForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed to list appointments", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to list appointments", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(recs)})
}

// Cancel handles POST /api/appointments/{number}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := identity.FromContext(r.Context())
	if user == nil {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	}
	number := appointment.NormalizeNumber(chi.URLParam(r, "number"))
	if !appointment.HasNumberPrefix(number) {
		http.Error(w, "Invalid appointment number", http.StatusBadRequest)
		return
	}
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		http.Error(w, "A cancellation reason is required", http.StatusBadRequest)
		return
	}

	rec, err := h.service.Cancel(r.Context(), *user, number, strings.TrimSpace(req.Reason))
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, rec)
	case errors.Is(err, appointment.ErrNotFound):
		http.Error(w, "Appointment not found", http.StatusNotFound)
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		http.Error(w, "Appointment already cancelled", http.StatusConflict)
	default:
		h.logger.Error("failed to cancel appointment", "appointment_number", number, "error", err)
		http.Error(w, "Failed to cancel appointment", http.StatusInternalServerError)
	}
}

// ListAll handles GET /admin/appointments.
func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list all appointments", "error", err)
		http.Error(w, "Failed to list appointments", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(recs)})
}

// Delete handles DELETE /admin/appointments/{owner}/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, id := chi.URLParam(r, "owner"), chi.URLParam(r, "id")
	err := h.service.Delete(r.Context(), owner, id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, appointment.ErrNotFound):
		http.Error(w, "Appointment not found", http.StatusNotFound)
	default:
		h.logger.Error("failed to delete appointment", "owner_id", owner, "appointment_id", id, "error", err)
		http.Error(w, "Failed to delete appointment", http.StatusInternalServerError)
	}
}

// Capacity handles GET /admin/capacity.
func (h *Handler) Capacity(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.Capacity(r.Context())
	if err != nil {
		h.logger.Error("failed to load capacity", "error", err)
		http.Error(w, "Failed to load capacity", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"departments": entries})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func nonNil(recs []appointment.Record) []appointment.Record {
	if recs == nil {
		return []appointment.Record{}
	}
	return recs
}
