package appointment

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks user input that failed a stage's acceptance rule.
	ErrValidation = errors.New("appointment: invalid input")
	// ErrAuthRequired is returned when an action needs an authenticated user.
	ErrAuthRequired = errors.New("appointment: authentication required")
	// ErrCapacityExceeded is returned when a department has no free capacity for a type.
	ErrCapacityExceeded = errors.New("appointment: capacity exceeded")
	// ErrNotFound is returned when no record matches the owner and appointment number.
	ErrNotFound = errors.New("appointment: not found")
	// ErrAlreadyCancelled is returned when cancelling a record that is already cancelled.
	ErrAlreadyCancelled = errors.New("appointment: already cancelled")
)

// CapacityError carries the department and limit that rejected a reservation.
type CapacityError struct {
	Department string
	Limit      int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("appointment: %s is at full capacity (%d appointments)", e.Department, e.Limit)
}

// Is lets errors.Is(err, ErrCapacityExceeded) match a CapacityError.
func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// ErrForbidden is returned when a user acts on a session or record they do not own.
var ErrForbidden = errors.New("appointment: forbidden")
