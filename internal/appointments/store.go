// Package appointments persists booked appointments and keeps them in step
// with the capacity ledger.
package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

// Store is the appointment record store.
type Store interface {
	Create(ctx context.Context, rec appointment.Record) (appointment.Record, error)
	Get(ctx context.Context, ownerID, id string) (appointment.Record, error)
	FindByNumber(ctx context.Context, ownerID, number string) (appointment.Record, error)
	// UpdateStatus fails with appointment.ErrAlreadyCancelled when the record
	// already holds update.Status. The check and the write are one step.
	UpdateStatus(ctx context.Context, ownerID, id string, update appointment.StatusUpdate) error
	ListForUser(ctx context.Context, ownerID string) ([]appointment.Record, error)
	ListAll(ctx context.Context) ([]appointment.Record, error)
	// Delete removes a record and returns its last stored state.
	Delete(ctx context.Context, ownerID, id string) (appointment.Record, error)
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]appointment.Record
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]appointment.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, rec appointment.Record) (appointment.Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.Attachments = append([]appointment.Attachment(nil), rec.Attachments...)
	s.mu.Lock()
	s.records[rec.ID] = rec
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID, id string) (appointment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return appointment.Record{}, appointment.ErrNotFound
	}
	return rec, nil
}

// FindByNumber returns the most recent record with the number, since numbers are not unique.
func (s *MemoryStore) FindByNumber(_ context.Context, ownerID, number string) (appointment.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found appointment.Record
		ok    bool
	)
	for _, rec := range s.records {
		if rec.OwnerID != ownerID || rec.AppointmentNumber != number {
			continue
		}
		if !ok || rec.CreatedAt.After(found.CreatedAt) {
			found, ok = rec, true
		}
	}
	if !ok {
		return appointment.Record{}, appointment.ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, ownerID, id string, update appointment.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return appointment.ErrNotFound
	}
	if rec.Status == update.Status {
		return appointment.ErrAlreadyCancelled
	}
	rec.Status = update.Status
	rec.CancellationReason = update.CancellationReason
	if !update.CancelledAt.IsZero() {
		at := update.CancelledAt
		rec.CancelledAt = &at
	}
	s.records[id] = rec
	return nil
}

func (s *MemoryStore) ListForUser(_ context.Context, ownerID string) ([]appointment.Record, error) {
	s.mu.RLock()
	out := make([]appointment.Record, 0)
	for _, rec := range s.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]appointment.Record, error) {
	s.mu.RLock()
	out := make([]appointment.Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID, id string) (appointment.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.OwnerID != ownerID {
		return appointment.Record{}, appointment.ErrNotFound
	}
	delete(s.records, id)
	return rec, nil
}

func sortNewestFirst(recs []appointment.Record) {
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
}
