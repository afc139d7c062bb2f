package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/internal/observability/metrics"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// TranscriptRecorder receives every message written to a session.
type TranscriptRecorder interface {
	Append(ctx context.Context, sess *Session, msgs []Message) error
}

// AttachmentUploader stores a patient's file and returns where it lives.
type AttachmentUploader interface {
	Upload(ctx context.Context, ownerID string, file Upload) (appointment.Attachment, error)
}

// Upload is a file received from the chat client.
type Upload struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// TurnResult is returned to transports after a turn completes.
type TurnResult struct {
	SessionID    string            `json:"sessionId"`
	Reply        string            `json:"reply"`
	Stage        appointment.Stage `json:"stage"`
	RequiresAuth bool              `json:"requires_auth"`
	Messages     []Message         `json:"messages"`
}

// TurnOption customizes a single ProcessTurn call.
type TurnOption func(*turnConfig)

type turnConfig struct {
	onTyping func(Message)
}

// WithTypingNotifier is called with the typing placeholder before the reply resolves.
func WithTypingNotifier(fn func(Message)) TurnOption {
	return func(c *turnConfig) { c.onTyping = fn }
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

func WithTranscripts(rec TranscriptRecorder) EngineOption {
	return func(e *Engine) { e.transcripts = rec }
}

func WithUploader(u AttachmentUploader) EngineOption {
	return func(e *Engine) { e.uploader = u }
}

func WithEngineMetrics(m *metrics.ConversationMetrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithTypingDelay holds the placeholder for d before resolving it.
func WithTypingDelay(d time.Duration) EngineOption {
	return func(e *Engine) { e.typingDelay = d }
}

// WithSessionLease adds a cross-process lease on top of the in-process session locks,
// for deployments where several replicas share one session store.
func WithSessionLease(lease SessionLease) EngineOption {
	return func(e *Engine) { e.lease = lease }
}

func WithEngineLogger(logger *logging.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

const undoTimeout = 5 * time.Second

// Engine is the dialogue loop. It owns session lifecycle and serializes turns per session.
type Engine struct {
	machine     *Machine
	scheduler   Scheduler
	sessions    SessionStore
	transcripts TranscriptRecorder
	uploader    AttachmentUploader
	metrics     *metrics.ConversationMetrics
	locks       *sessionLocks
	lease       SessionLease
	typingDelay time.Duration
	now         func() time.Time
	logger      *logging.Logger
}

func NewEngine(machine *Machine, sessions SessionStore, opts ...EngineOption) *Engine {
	if machine == nil {
		panic("conversation: machine required")
	}
	if sessions == nil {
		panic("conversation: session store required")
	}
	e := &Engine{
		machine:   machine,
		scheduler: machine.scheduler,
		sessions:  sessions,
		locks:     newSessionLocks(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartSession creates a session holding the welcome message.
func (e *Engine) StartSession(ctx context.Context, user *identity.User) (*Session, error) {
	sess := newSession(e.now())
	if user.Authenticated() {
		sess.OwnerID = user.ID
	}
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	e.record(ctx, sess, sess.Messages)
	e.logger.Info("chat session started", "session_id", sess.ID, "owner_id", sess.OwnerID)
	return sess, nil
}

// Session loads a session visible to user.
func (e *Engine) Session(ctx context.Context, id string, user *identity.User) (*Session, error) {
	sess, err := e.sessions.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(sess, user); err != nil {
		return nil, err
	}
	return sess, nil
}

// ProcessTurn runs one user input through the session identified by id.
// If the session cannot be saved, the reservation or booking the turn made is undone
// so that resending the input starts again from the stored draft.
func (e *Engine) ProcessTurn(ctx context.Context, id string, user *identity.User, text string, opts ...TurnOption) (TurnResult, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	sess, err := e.Session(ctx, id, user)
	if err != nil {
		return TurnResult{}, err
	}
	before := len(sess.Messages)
	result, reply := e.process(ctx, sess, user, text, opts...)
	if err := e.sessions.Save(ctx, sess); err != nil {
		e.undo(ctx, sess.ID, user, reply)
		return TurnResult{}, err
	}
	e.record(ctx, sess, sess.Messages[before:])
	return result, nil
}

// Process applies text to sess in memory: it appends the user message and a typing
// placeholder, awaits the machine's reply, then resolves the placeholder.
func (e *Engine) Process(ctx context.Context, sess *Session, user *identity.User, text string, opts ...TurnOption) TurnResult {
	result, _ := e.process(ctx, sess, user, text, opts...)
	return result
}

func (e *Engine) process(ctx context.Context, sess *Session, user *identity.User, text string, opts ...TurnOption) (TurnResult, Reply) {
	var cfg turnConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if sess.OwnerID == "" && user.Authenticated() {
		sess.OwnerID = user.ID
	}

	now := e.now()
	if strings.TrimSpace(text) != "" {
		sess.appendMessage(text, SenderUser, now)
	}
	placeholder := sess.appendMessage("", SenderBot, now)
	placeholder.IsTyping = true
	placeholderID := placeholder.ID
	if cfg.onTyping != nil {
		cfg.onTyping(*placeholder)
	}

	reply := e.machine.Respond(ctx, sess, user, text)
	e.wait(ctx)

	if msg := sess.messageByID(placeholderID); msg != nil {
		msg.Text = reply.Text
		msg.IsTyping = false
		msg.CreatedAt = e.now()
	}
	sess.UpdatedAt = e.now()
	e.metrics.ObserveTurn(string(sess.Draft.Stage), string(reply.Outcome))

	return TurnResult{
		SessionID:    sess.ID,
		Reply:        reply.Text,
		Stage:        sess.Draft.Stage,
		RequiresAuth: reply.RequiresAuth,
		Messages:     append([]Message(nil), sess.Messages...),
	}, reply
}

// undo reverses what a turn committed when its session state could not be stored.
// It runs detached from ctx, which may be the reason the save failed.
func (e *Engine) undo(ctx context.Context, sessionID string, user *identity.User, reply Reply) {
	if reply.Reserved == "" && reply.BookedID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), undoTimeout)
	defer cancel()

	if reply.Reserved != "" {
		if err := e.scheduler.Release(ctx, reply.Reserved); err != nil {
			e.logger.Error("failed to release reservation of unsaved turn", "session_id", sessionID, "department", reply.Reserved, "error", err)
		} else {
			e.logger.Warn("released reservation of unsaved turn", "session_id", sessionID, "department", reply.Reserved)
		}
	}
	if reply.BookedID != "" && user.Authenticated() {
		if err := e.scheduler.Revoke(ctx, *user, reply.BookedID); err != nil {
			e.logger.Error("failed to revoke booking of unsaved turn", "session_id", sessionID, "appointment_id", reply.BookedID, "error", err)
		}
	}
}

// Reset clears the session's dialogue, releasing a reservation that was never booked.
func (e *Engine) Reset(ctx context.Context, id string, user *identity.User) (*Session, error) {
	unlock, err := e.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := e.Session(ctx, id, user)
	if err != nil {
		return nil, err
	}
	if sess.Draft.Reserved() {
		if err := e.scheduler.Release(ctx, sess.Draft.Department); err != nil {
			return nil, fmt.Errorf("conversation: release reservation: %w", err)
		}
		e.logger.Info("released unbooked reservation", "session_id", id, "department", sess.Draft.Department)
	}
	now := e.now()
	sess.resetBooking()
	sess.Cancellation = CancellationState{}
	sess.Messages = nil
	sess.appendMessage(welcomeMessage, SenderBot, now)
	sess.UpdatedAt = now
	if err := e.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	e.record(ctx, sess, sess.Messages)
	return sess, nil
}

// AttachFile uploads a medical record and records it on the session.
// Executable files are accepted with a warning.
func (e *Engine) AttachFile(ctx context.Context, id string, user *identity.User, file Upload) (TurnResult, error) {
	if !user.Authenticated() {
		return TurnResult{}, appointment.ErrAuthRequired
	}
	if e.uploader == nil {
		return TurnResult{}, errors.New("conversation: attachments are not configured")
	}
	unlock, err := e.lock(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	sess, err := e.Session(ctx, id, user)
	if err != nil {
		return TurnResult{}, err
	}
	if sess.OwnerID == "" {
		sess.OwnerID = user.ID
	}
	att, err := e.uploader.Upload(ctx, user.ID, file)
	if err != nil {
		return TurnResult{}, err
	}

	before := len(sess.Messages)
	now := e.now()
	sess.Attachments = append(sess.Attachments, att)
	msg := sess.appendMessage("", SenderUser, now)
	msg.Attachment = &MessageAttachment{Name: att.Name, SizeOrURL: att.URL, MimeType: att.MimeType}

	reply := attachmentReceivedReply(att.Name)
	if isExecutable(att.Name) {
		e.logger.Warn("executable attachment uploaded", "session_id", id, "name", att.Name)
		reply = attachmentWarning + " " + reply
	}
	sess.appendMessage(reply, SenderBot, now)
	sess.UpdatedAt = now

	if err := e.sessions.Save(ctx, sess); err != nil {
		return TurnResult{}, err
	}
	e.record(ctx, sess, sess.Messages[before:])
	return TurnResult{
		SessionID: sess.ID,
		Reply:     reply,
		Stage:     sess.Draft.Stage,
		Messages:  append([]Message(nil), sess.Messages...),
	}, nil
}

// lock takes the in-process lock for id, then the shared lease when one is configured.
func (e *Engine) lock(ctx context.Context, id string) (func(), error) {
	unlock := e.locks.Lock(id)
	if e.lease == nil {
		return unlock, nil
	}
	release, err := e.lease.Acquire(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}
	return func() {
		release()
		unlock()
	}, nil
}

func (e *Engine) record(ctx context.Context, sess *Session, msgs []Message) {
	if e.transcripts == nil || len(msgs) == 0 {
		return
	}
	if err := e.transcripts.Append(ctx, sess, msgs); err != nil {
		e.logger.Warn("transcript append failed", "session_id", sess.ID, "error", err)
	}
}

func (e *Engine) wait(ctx context.Context) {
	if e.typingDelay <= 0 {
		return
	}
	timer := time.NewTimer(e.typingDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func authorize(sess *Session, user *identity.User) error {
	if sess.OwnerID == "" {
		return nil
	}
	if !user.Authenticated() || user.ID != sess.OwnerID {
		return appointment.ErrForbidden
	}
	return nil
}

func isExecutable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".exe", ".bat", ".sh":
		return true
	}
	return false
}
