package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

const defaultMaxUploadBytes = 10 << 20

// MessageRequest is the body of POST /api/chat/sessions/{id}/messages.
type MessageRequest struct {
	Text string `json:"text"`
}

// SessionView is the client-facing projection of a session.
type SessionView struct {
	ID           string            `json:"id"`
	Stage        appointment.Stage `json:"stage"`
	IsCancelling bool              `json:"isCancelling"`
	Messages     []Message         `json:"messages"`
}

// TranscriptReader lists the stored history of a session.
type TranscriptReader interface {
	List(ctx context.Context, sessionID string) ([]Message, error)
}

// Handler wires HTTP requests to the conversation engine.
type Handler struct {
	engine         *Engine
	transcripts    TranscriptReader
	maxUploadBytes int64
	logger         *logging.Logger
}

// NewHandler creates a conversation handler.
func NewHandler(engine *Engine, transcripts TranscriptReader, maxUploadBytes int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{
		engine:         engine,
		transcripts:    transcripts,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// CreateSession handles POST /api/chat/sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.StartSession(r.Context(), identity.FromContext(r.Context()))
	if err != nil {
		h.logger.Error("failed to start chat session", "error", err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, viewOf(sess))
}

// GetSession handles GET /api/chat/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Session(r.Context(), chi.URLParam(r, "id"), identity.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, "failed to load chat session", err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(sess))
}

// PostMessage handles POST /api/chat/sessions/{id}/messages.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode message request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.engine.ProcessTurn(r.Context(), chi.URLParam(r, "id"), identity.FromContext(r.Context()), req.Text)
	if err != nil {
		h.writeError(w, "failed to process message", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// UploadAttachment handles POST /api/chat/sessions/{id}/attachments (multipart field "file").
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	result, err := h.engine.AttachFile(r.Context(), chi.URLParam(r, "id"), identity.FromContext(r.Context()), Upload{
		Name:        header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.writeError(w, "failed to attach file", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, result)
}

// ResetSession handles DELETE /api/chat/sessions/{id}.
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Reset(r.Context(), chi.URLParam(r, "id"), identity.FromContext(r.Context()))
	if err != nil {
		h.writeError(w, "failed to reset chat session", err)
		return
	}
	h.writeJSON(w, http.StatusOK, viewOf(sess))
}

// Transcript handles GET /admin/sessions/{id}/transcript.
func (h *Handler) Transcript(w http.ResponseWriter, r *http.Request) {
	if h.transcripts == nil {
		http.Error(w, "Transcripts are not configured", http.StatusNotImplemented)
		return
	}
	msgs, err := h.transcripts.List(r.Context(), strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		h.logger.Error("failed to load transcript", "error", err)
		http.Error(w, "Failed to load transcript", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, appointment.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, appointment.ErrAuthRequired):
		http.Error(w, "Authentication required", http.StatusUnauthorized)
	default:
		h.logger.Error(msg, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func viewOf(sess *Session) SessionView {
	return SessionView{
		ID:           sess.ID,
		Stage:        sess.Draft.Stage,
		IsCancelling: sess.Cancellation.IsCancelling,
		Messages:     sess.Messages,
	}
}
