package conversation

import (
	"context"
	"errors"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/identity"
)

func (m *Machine) startCancellation(sess *Session, user *identity.User) Reply {
	if !user.Authenticated() {
		return Reply{Text: cancelLoginReply, RequiresAuth: true, Outcome: OutcomeAuthRequired}
	}
	sess.Cancellation = CancellationState{IsCancelling: true}
	return Reply{Text: cancelStartReply, Outcome: OutcomeAdvanced}
}

// continueCancellation runs the awaiting-number and awaiting-reason steps.
// The outcome of the store call is the turn's reply.
func (m *Machine) continueCancellation(ctx context.Context, sess *Session, user *identity.User, input string) Reply {
	c := &sess.Cancellation
	if c.AwaitingNumber() {
		if !appointment.HasNumberPrefix(input) {
			return Reply{Text: cancelNumberInvalid, Outcome: OutcomeReprompt}
		}
		c.AppointmentNumber = appointment.NormalizeNumber(input)
		return Reply{Text: cancelReasonPrompt, Outcome: OutcomeAdvanced}
	}

	if !user.Authenticated() {
		return Reply{Text: cancelLoginReply, RequiresAuth: true, Outcome: OutcomeAuthRequired}
	}
	number := c.AppointmentNumber
	c.Reason = input
	_, err := m.scheduler.Cancel(ctx, *user, number, input)
	switch {
	case err == nil:
		sess.Cancellation = CancellationState{}
		return Reply{Text: cancelSuccessReply(number), Outcome: OutcomeAdvanced}
	case errors.Is(err, appointment.ErrNotFound):
		sess.Cancellation = CancellationState{}
		return Reply{Text: cancelNotFound, Outcome: OutcomeNotFound}
	case errors.Is(err, appointment.ErrAlreadyCancelled):
		sess.Cancellation = CancellationState{}
		return Reply{Text: cancelAlreadyReply(number), Outcome: OutcomeNotFound}
	case errors.Is(err, appointment.ErrAuthRequired):
		c.Reason = ""
		return Reply{Text: cancelLoginReply, RequiresAuth: true, Outcome: OutcomeAuthRequired}
	}
	c.Reason = ""
	m.logger.Error("appointment cancellation failed", "session_id", sess.ID, "appointment_number", number, "error", err)
	return Reply{Text: cancelError, Outcome: OutcomeStoreError}
}

func cancellationPrompt(c CancellationState) string {
	if c.AwaitingNumber() {
		return cancelStartReply
	}
	return cancelReasonPrompt
}
