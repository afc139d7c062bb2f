package events

import (
	"time"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
)

// AppointmentChangedV1 is published whenever an appointment is booked, cancelled or deleted.
type AppointmentChangedV1 struct {
	Kind               string             `json:"kind"`
	AppointmentID      string             `json:"appointment_id"`
	AppointmentNumber  string             `json:"appointment_number"`
	OwnerID            string             `json:"owner_id"`
	AppointmentType    appointment.Type   `json:"appointment_type"`
	Department         string             `json:"department"`
	Status             appointment.Status `json:"status"`
	CancellationReason string             `json:"cancellation_reason,omitempty"`
	AttachmentCount    int                `json:"attachment_count"`
	OccurredAt         time.Time          `json:"occurred_at"`
}

// EventType returns the versioned routing key, e.g. "appointment.booked.v1".
func (e AppointmentChangedV1) EventType() string {
	return e.Kind + ".v1"
}

// NewAppointmentChanged projects rec into an event payload. Patient details stay out of the bus.
func NewAppointmentChanged(kind string, rec appointment.Record, at time.Time) AppointmentChangedV1 {
	return AppointmentChangedV1{
		Kind:               kind,
		AppointmentID:      rec.ID,
		AppointmentNumber:  rec.AppointmentNumber,
		OwnerID:            rec.OwnerID,
		AppointmentType:    rec.Type,
		Department:         rec.Department,
		Status:             rec.Status,
		CancellationReason: rec.CancellationReason,
		AttachmentCount:    len(rec.Attachments),
		OccurredAt:         at.UTC(),
	}
}
