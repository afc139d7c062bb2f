package webchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/conversation"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// Engine is the part of the dialogue loop the WebSocket transport drives.
type Engine interface {
	StartSession(ctx context.Context, user *identity.User) (*conversation.Session, error)
	Session(ctx context.Context, id string, user *identity.User) (*conversation.Session, error)
	ProcessTurn(ctx context.Context, id string, user *identity.User, text string, opts ...conversation.TurnOption) (conversation.TurnResult, error)
	Reset(ctx context.Context, id string, user *identity.User) (*conversation.Session, error)
}

// Handler serves the chat client's WebSocket.
type Handler struct {
	engine Engine
	logger *logging.Logger
}

// InboundMessage is what the chat client sends.
type InboundMessage struct {
	Type string `json:"type"` // "message", "reset", "ping"
	Text string `json:"text"`
}

// OutboundMessage is what we send to the chat client.
type OutboundMessage struct {
	Type         string                 `json:"type"` // "session", "history", "typing", "message", "error", "pong"
	Text         string                 `json:"text,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	Stage        appointment.Stage      `json:"stage,omitempty"`
	RequiresAuth bool                   `json:"requires_auth,omitempty"`
	MessageID    int                    `json:"message_id,omitempty"`
	Timestamp    string                 `json:"timestamp,omitempty"`
	Messages     []conversation.Message `json:"messages,omitempty"`
}

func NewHandler(engine Engine, logger *logging.Logger) *Handler {
	if engine == nil {
		panic("webchat: engine cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{engine: engine, logger: logger}
}

// HandleWebSocket handles GET /api/chat/ws?session=<id>. Without a session id a new
// session is started and its id sent first.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r)
	}).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn, r *http.Request) {
	ctx := r.Context()
	user := identity.FromContext(ctx)

	sess, err := h.open(ctx, strings.TrimSpace(r.URL.Query().Get("session")), user)
	if err != nil {
		h.send(conn, OutboundMessage{Type: "error", Text: errorText(err)})
		return
	}
	h.send(conn, OutboundMessage{Type: "session", SessionID: sess.ID, Stage: sess.Draft.Stage})
	h.send(conn, OutboundMessage{Type: "history", Messages: sess.Messages})

	h.logger.Info("webchat: connection opened", "session_id", sess.ID, "authenticated", user.Authenticated())
	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			h.logger.Debug("webchat: connection closed", "session_id", sess.ID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			h.send(conn, OutboundMessage{Type: "pong"})
		case "reset":
			reset, err := h.engine.Reset(ctx, sess.ID, user)
			if err != nil {
				h.send(conn, OutboundMessage{Type: "error", Text: errorText(err)})
				continue
			}
			h.send(conn, OutboundMessage{Type: "history", SessionID: reset.ID, Stage: reset.Draft.Stage, Messages: reset.Messages})
		case "message":
			h.processMessage(ctx, conn, sess.ID, user, msg.Text)
		}
	}
}

func (h *Handler) open(ctx context.Context, id string, user *identity.User) (*conversation.Session, error) {
	if id == "" {
		return h.engine.StartSession(ctx, user)
	}
	return h.engine.Session(ctx, id, user)
}

func (h *Handler) processMessage(ctx context.Context, conn *websocket.Conn, id string, user *identity.User, text string) {
	typing := conversation.WithTypingNotifier(func(m conversation.Message) {
		h.send(conn, OutboundMessage{Type: "typing", MessageID: m.ID})
	})
	result, err := h.engine.ProcessTurn(ctx, id, user, text, typing)
	if err != nil {
		h.logger.Error("webchat: turn failed", "session_id", id, "error", err)
		h.send(conn, OutboundMessage{Type: "error", Text: errorText(err)})
		return
	}

	out := OutboundMessage{
		Type:         "message",
		Text:         result.Reply,
		SessionID:    result.SessionID,
		Stage:        result.Stage,
		RequiresAuth: result.RequiresAuth,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
	}
	if n := len(result.Messages); n > 0 {
		out.MessageID = result.Messages[n-1].ID
	}
	h.send(conn, out)
}

func (h *Handler) send(conn *websocket.Conn, msg OutboundMessage) {
	if err := websocket.JSON.Send(conn, msg); err != nil {
		h.logger.Debug("webchat: send failed", "type", msg.Type, "error", err)
	}
}

func errorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, appointment.ErrForbidden):
		return "forbidden"
	}
	return "Sorry, something went wrong. Please try again."
}
