package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const selectColumns = `id::text, owner_id, appointment_number, full_name, age, date_of_birth, blood_group,
	symptoms, appointment_type, department, status, cancellation_reason, cancelled_at, attachments, created_at`

// PostgresStore persists appointments in the appointments table.
type PostgresStore struct {
	pool rowQuerier
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("appointments: exec required")
	}
	return &PostgresStore{pool: exec}
}

func (s *PostgresStore) Create(ctx context.Context, rec appointment.Record) (appointment.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	attachments, err := json.Marshal(nonNilAttachments(rec.Attachments))
	if err != nil {
		return appointment.Record{}, fmt.Errorf("appointments: marshal attachments: %w", err)
	}
	query := `
		INSERT INTO appointments (
			id, owner_id, appointment_number, full_name, age, date_of_birth, blood_group,
			symptoms, appointment_type, department, status, attachments, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.pool.Exec(ctx, query,
		rec.ID, rec.OwnerID, rec.AppointmentNumber, rec.FullName, rec.Age, rec.DateOfBirth, rec.BloodGroup,
		rec.Symptoms, string(rec.Type), rec.Department, string(rec.Status), attachments, rec.CreatedAt,
	)
	if err != nil {
		return appointment.Record{}, fmt.Errorf("appointments: insert: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (appointment.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE owner_id = $1 AND id = $2`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		return appointment.Record{}, fmt.Errorf("appointments: get: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByNumber(ctx context.Context, ownerID, number string) (appointment.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments
		WHERE owner_id = $1 AND appointment_number = $2
		ORDER BY created_at DESC LIMIT 1`
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, ownerID, number))
	if err != nil {
		return appointment.Record{}, fmt.Errorf("appointments: find by number: %w", err)
	}
	return rec, nil
}

// UpdateStatus only moves a record that is not already in update.Status, so two
// racing cancellations cannot both succeed.
func (s *PostgresStore) UpdateStatus(ctx context.Context, ownerID, id string, update appointment.StatusUpdate) error {
	query := `
		UPDATE appointments
		SET status = $3, cancellation_reason = $4, cancelled_at = $5
		WHERE owner_id = $1 AND id = $2 AND status <> $3
	`
	var cancelledAt *time.Time
	if !update.CancelledAt.IsZero() {
		cancelledAt = &update.CancelledAt
	}
	ct, err := s.pool.Exec(ctx, query, ownerID, id, string(update.Status), update.CancellationReason, cancelledAt)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE owner_id = $1 AND id = $2)`, ownerID, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("appointments: update status: %w", err)
	}
	if exists {
		return appointment.ErrAlreadyCancelled
	}
	return appointment.ErrNotFound
}

func (s *PostgresStore) ListForUser(ctx context.Context, ownerID string) ([]appointment.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE owner_id = $1 ORDER BY created_at DESC`
	return s.list(ctx, query, ownerID)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]appointment.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments ORDER BY created_at DESC`
	return s.list(ctx, query)
}

// Delete removes the record and returns it as it was at deletion time.
func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) (appointment.Record, error) {
	query := `DELETE FROM appointments WHERE owner_id = $1 AND id = $2 RETURNING ` + selectColumns
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		return appointment.Record{}, fmt.Errorf("appointments: delete: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]appointment.Record, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()

	out := make([]appointment.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: list: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (appointment.Record, error) {
	var (
		rec         appointment.Record
		apptType    string
		status      string
		reason      *string
		attachments []byte
	)
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.AppointmentNumber, &rec.FullName, &rec.Age, &rec.DateOfBirth, &rec.BloodGroup,
		&rec.Symptoms, &apptType, &rec.Department, &status, &reason, &rec.CancelledAt, &attachments, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return appointment.Record{}, appointment.ErrNotFound
		}
		return appointment.Record{}, err
	}
	rec.Type = appointment.Type(apptType)
	rec.Status = appointment.Status(status)
	if reason != nil {
		rec.CancellationReason = *reason
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &rec.Attachments); err != nil {
			return appointment.Record{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	return rec, nil
}

func nonNilAttachments(in []appointment.Attachment) []appointment.Attachment {
	if in == nil {
		return []appointment.Attachment{}
	}
	return in
}
