package appointment

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a persisted appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Attachment is metadata for a file uploaded during a booking.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType"`
}

// Draft is the in-progress appointment accumulated across dialogue turns.
type Draft struct {
	FullName          string `json:"fullName,omitempty"`
	Age               string `json:"age,omitempty"`
	DateOfBirth       string `json:"dateOfBirth,omitempty"`
	BloodGroup        string `json:"bloodGroup,omitempty"`
	Symptoms          string `json:"symptoms,omitempty"`
	Type              Type   `json:"appointmentType,omitempty"`
	Department        string `json:"department,omitempty"`
	AppointmentNumber string `json:"appointmentNumber,omitempty"`
	Stage             Stage  `json:"stage"`
}

// NewDraft returns an empty draft positioned at type selection.
func NewDraft() Draft {
	return Draft{Stage: StageTypeSelection}
}

// Reserved reports whether the draft holds a capacity reservation that has not been persisted.
func (d Draft) Reserved() bool {
	return d.AppointmentNumber != "" && d.Stage == StagePaymentConfirmation
}

// Record is a persisted appointment.
type Record struct {
	ID                 string       `json:"id"`
	OwnerID            string       `json:"ownerId"`
	AppointmentNumber  string       `json:"appointmentNumber"`
	FullName           string       `json:"fullName"`
	Age                string       `json:"age"`
	DateOfBirth        string       `json:"dateOfBirth"`
	BloodGroup         string       `json:"bloodGroup"`
	Symptoms           string       `json:"symptoms"`
	Type               Type         `json:"appointmentType"`
	Department         string       `json:"department"`
	Status             Status       `json:"status"`
	CancellationReason string       `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time   `json:"cancelledAt,omitempty"`
	Attachments        []Attachment `json:"attachments,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// RecordFromDraft copies the draft's fields into a confirmed record owned by ownerID.
func RecordFromDraft(ownerID string, d Draft, attachments []Attachment) Record {
	return Record{
		OwnerID:           ownerID,
		AppointmentNumber: d.AppointmentNumber,
		FullName:          d.FullName,
		Age:               d.Age,
		DateOfBirth:       d.DateOfBirth,
		BloodGroup:        d.BloodGroup,
		Symptoms:          d.Symptoms,
		Type:              d.Type,
		Department:        d.Department,
		Status:            StatusConfirmed,
		Attachments:       append([]Attachment(nil), attachments...),
	}
}

// StatusUpdate carries the fields changed when a record is cancelled.
type StatusUpdate struct {
	Status             Status
	CancellationReason string
	CancelledAt        time.Time
}

// NormalizeNumber trims s and upper-cases its AP- prefix.
func NormalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= len(NumberPrefix) && strings.EqualFold(s[:len(NumberPrefix)], NumberPrefix) {
		return NumberPrefix + s[len(NumberPrefix):]
	}
	return s
}
