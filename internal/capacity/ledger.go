// Package capacity tracks active appointments per department against a limit.
package capacity

import (
	"context"
	"errors"
	"sort"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

// Entry is the ledger state for one department key.
type Entry struct {
	Key             string           `json:"key" dynamodbav:"departmentKey"`
	ActiveCount     int              `json:"activeCount" dynamodbav:"activeCount"`
	AppointmentType appointment.Type `json:"appointmentType" dynamodbav:"appointmentType"`
}

// Ledger is implemented by every capacity backend.
// Reserve must check and increment in one atomic step.
type Ledger interface {
	CheckAvailability(ctx context.Context, key string, limit int) (bool, error)
	Reserve(ctx context.Context, key string, apptType appointment.Type, limit int) (Entry, error)
	Release(ctx context.Context, key string) (Entry, error)
	Get(ctx context.Context, key string) (Entry, bool, error)
	List(ctx context.Context) ([]Entry, error)
}

var errEmptyKey = errors.New("capacity: key required")

// Key normalizes a department name into a ledger key.
func Key(department string) string {
	return appointment.CapacityKey(department)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}

// ErrFull builds the capacity error returned when key is at limit.
func ErrFull(key string, limit int) error {
	return &appointment.CapacityError{Department: key, Limit: limit}
}
