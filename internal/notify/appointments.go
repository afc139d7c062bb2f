package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/appointments"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// AppointmentNotifier e-mails patients when their appointments are booked or cancelled.
type AppointmentNotifier struct {
	email  EmailSender
	logger *logging.Logger
}

var _ appointments.Notifier = (*AppointmentNotifier)(nil)

func NewAppointmentNotifier(email EmailSender, logger *logging.Logger) *AppointmentNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentNotifier{email: email, logger: logger}
}

// AppointmentBooked sends the booking confirmation.
func (n *AppointmentNotifier) AppointmentBooked(ctx context.Context, user identity.User, rec appointment.Record) error {
	return n.send(ctx, user,
		fmt.Sprintf("Appointment %s confirmed", rec.AppointmentNumber),
		bookedBody(user, rec))
}

// AppointmentCancelled sends the cancellation receipt.
func (n *AppointmentNotifier) AppointmentCancelled(ctx context.Context, user identity.User, rec appointment.Record) error {
	return n.send(ctx, user,
		fmt.Sprintf("Appointment %s cancelled", rec.AppointmentNumber),
		cancelledBody(user, rec))
}

func (n *AppointmentNotifier) send(ctx context.Context, user identity.User, subject, body string) error {
	if n == nil || n.email == nil {
		return nil
	}
	to := strings.TrimSpace(user.Email)
	if to == "" {
		n.logger.Debug("notify: user has no email, skipping", "user_id", user.ID)
		return nil
	}
	if err := n.email.Send(ctx, EmailMessage{To: to, ToName: user.DisplayName, Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("notify: send %q: %w", subject, err)
	}
	return nil
}

func greeting(user identity.User) string {
	if user.DisplayName == "" {
		return "Hello,"
	}
	return fmt.Sprintf("Hello %s,", user.DisplayName)
}

func bookedBody(user identity.User, rec appointment.Record) string {
	var b strings.Builder
	b.WriteString(greeting(user))
	b.WriteString("\n\nYour appointment has been successfully booked.\n\n")
	fmt.Fprintf(&b, "Appointment #: %s\n", rec.AppointmentNumber)
	fmt.Fprintf(&b, "Type: %s\n", rec.Type)
	fmt.Fprintf(&b, "Department: %s\n", rec.Department)
	fmt.Fprintf(&b, "Patient: %s\n", rec.FullName)
	if len(rec.Attachments) > 0 {
		fmt.Fprintf(&b, "Medical records on file: %d\n", len(rec.Attachments))
	}
	b.WriteString("\nPlease arrive 15 minutes before your scheduled time.\n\nMediCare")
	return b.String()
}

func cancelledBody(user identity.User, rec appointment.Record) string {
	var b strings.Builder
	b.WriteString(greeting(user))
	fmt.Fprintf(&b, "\n\nAppointment %s (%s, %s) has been cancelled.\n", rec.AppointmentNumber, rec.Type, rec.Department)
	if rec.CancellationReason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", rec.CancellationReason)
	}
	b.WriteString("\nYou can book a new appointment at any time through the MediCare Assistant.\n\nMediCare")
	return b.String()
}
