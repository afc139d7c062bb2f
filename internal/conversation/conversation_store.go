package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// TranscriptStore persists chat messages to PostgreSQL for long-term history.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore creates a transcript store. A nil db yields a nil store, which is a no-op.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	if db == nil {
		return nil
	}
	return &TranscriptStore{db: db}
}

// Append upserts msgs for the session. Placeholders resolved later overwrite their earlier body.
func (s *TranscriptStore) Append(ctx context.Context, sess *Session, msgs []Message) error {
	if s == nil || s.db == nil || len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("conversation: begin transcript tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, msg := range msgs {
		var attachment []byte
		if msg.Attachment != nil {
			if attachment, err = json.Marshal(msg.Attachment); err != nil {
				return fmt.Errorf("conversation: marshal attachment: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO chat_messages (
				session_id, owner_id, message_id, sender, body, attachment, stage, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (session_id, message_id)
			DO UPDATE SET body = EXCLUDED.body, attachment = EXCLUDED.attachment, stage = EXCLUDED.stage
		`, sess.ID, sess.OwnerID, msg.ID, string(msg.Sender), msg.Text, attachment, string(sess.Draft.Stage), msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("conversation: insert transcript message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("conversation: commit transcript: %w", err)
	}
	return nil
}

// List returns the stored transcript for a session in message order.
func (s *TranscriptStore) List(ctx context.Context, sessionID string) ([]Message, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender, body, attachment, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY message_id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("conversation: query transcript: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg        Message
			sender     string
			attachment []byte
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.Text, &attachment, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan transcript: %w", err)
		}
		msg.Sender = Sender(sender)
		if len(attachment) > 0 {
			msg.Attachment = &MessageAttachment{}
			if err := json.Unmarshal(attachment, msg.Attachment); err != nil {
				return nil, fmt.Errorf("conversation: decode attachment: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: iterate transcript: %w", err)
	}
	return out, nil
}
