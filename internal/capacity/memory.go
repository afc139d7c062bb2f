package capacity

import (
	"context"
	"sync"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

// MemoryLedger is an in-process ledger for tests and single-node development.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry)}
}

func (l *MemoryLedger) CheckAvailability(_ context.Context, key string, limit int) (bool, error) {
	key = Key(key)
	if key == "" {
		return false, errEmptyKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	return !ok || entry.ActiveCount < limit, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, key string, apptType appointment.Type, limit int) (Entry, error) {
	key = Key(key)
	if key == "" {
		return Entry{}, errEmptyKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := l.entries[key]
	if entry.ActiveCount >= limit {
		return entry, ErrFull(key, limit)
	}
	entry.Key = key
	entry.ActiveCount++
	entry.AppointmentType = apptType
	l.entries[key] = entry
	return entry, nil
}

func (l *MemoryLedger) Release(_ context.Context, key string) (Entry, error) {
	key = Key(key)
	if key == "" {
		return Entry{}, errEmptyKey
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		return Entry{Key: key}, nil
	}
	if entry.ActiveCount > 0 {
		entry.ActiveCount--
	}
	l.entries[key] = entry
	return entry, nil
}

func (l *MemoryLedger) Get(_ context.Context, key string) (Entry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[Key(key)]
	return entry, ok, nil
}

func (l *MemoryLedger) List(_ context.Context) ([]Entry, error) {
	l.mu.Lock()
	out := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		out = append(out, entry)
	}
	l.mu.Unlock()
	sortEntries(out)
	return out, nil
}
