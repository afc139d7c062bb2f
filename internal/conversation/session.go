package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// MessageAttachment is the file metadata shown alongside a chat message.
type MessageAttachment struct {
	Name      string `json:"name"`
	SizeOrURL string `json:"sizeOrUrl"`
	MimeType  string `json:"mimeType"`
}

// Message is one entry in a session transcript.
type Message struct {
	ID         int                `json:"id"`
	Text       string             `json:"text"`
	Sender     Sender             `json:"sender"`
	IsTyping   bool               `json:"isTyping,omitempty"`
	Attachment *MessageAttachment `json:"attachment,omitempty"`
	CreatedAt  time.Time          `json:"createdAt"`
}

// CancellationState tracks the two-step cancellation dialogue.
type CancellationState struct {
	IsCancelling      bool   `json:"isCancelling"`
	AppointmentNumber string `json:"appointmentNumber,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

// AwaitingNumber reports whether the sub-flow still needs an appointment number.
func (c CancellationState) AwaitingNumber() bool {
	return c.IsCancelling && c.AppointmentNumber == ""
}

// Session is the explicit per-conversation context owned by the Engine.
type Session struct {
	ID            string                   `json:"id"`
	OwnerID       string                   `json:"ownerId,omitempty"`
	Draft         appointment.Draft        `json:"draft"`
	Cancellation  CancellationState        `json:"cancellation"`
	Messages      []Message                `json:"messages"`
	Attachments   []appointment.Attachment `json:"attachments,omitempty"`
	NextMessageID int                      `json:"nextMessageId"`
	CreatedAt     time.Time                `json:"createdAt"`
	UpdatedAt     time.Time                `json:"updatedAt"`
}

func newSession(now time.Time) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		Draft:     appointment.NewDraft(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.appendMessage(welcomeMessage, SenderBot, now)
	return s
}

func (s *Session) appendMessage(text string, sender Sender, now time.Time) *Message {
	s.NextMessageID++
	s.Messages = append(s.Messages, Message{
		ID:        s.NextMessageID,
		Text:      text,
		Sender:    sender,
		CreatedAt: now,
	})
	return &s.Messages[len(s.Messages)-1]
}

// messageByID returns a pointer into Messages so placeholders can be resolved in place.
func (s *Session) messageByID(id int) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// resetBooking clears the draft and the uploaded files buffer.
func (s *Session) resetBooking() {
	s.Draft = appointment.NewDraft()
	s.Attachments = nil
}
