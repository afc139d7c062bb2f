package conversation

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/capacity"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// Scheduler performs the awaited side effects of the booking and cancellation dialogues.
type Scheduler interface {
	Reserve(ctx context.Context, department string, apptType appointment.Type, limit int) (capacity.Entry, error)
	Release(ctx context.Context, department string) error
	Book(ctx context.Context, user identity.User, draft appointment.Draft, attachments []appointment.Attachment) (appointment.Record, error)
	Cancel(ctx context.Context, user identity.User, number, reason string) (appointment.Record, error)
	// Revoke deletes a record booked by a turn whose session was never saved.
	// The draft still holds the reservation, so capacity is not released.
	Revoke(ctx context.Context, user identity.User, recordID string) error
}

// Outcome classifies how a turn was handled.
type Outcome string

const (
	OutcomeAdvanced     Outcome = "advanced"
	OutcomeReprompt     Outcome = "reprompt"
	OutcomeIntercepted  Outcome = "intercepted"
	OutcomeAuthRequired Outcome = "auth_required"
	OutcomeCapacityFull Outcome = "capacity_full"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeStoreError   Outcome = "store_error"
)

// Reply is the machine's answer to one user input. Reserved and BookedID name the
// side effects the turn committed, so they can be undone if the session is lost.
type Reply struct {
	Text         string
	RequiresAuth bool
	Outcome      Outcome
	Reserved     string
	BookedID     string
}

var strictDOB = regexp.MustCompile(`^\d{1,2}[/-]\d{1,2}[/-]\d{4}$`)

var bloodGroups = map[string]struct{}{
	"A+": {}, "B+": {}, "AB+": {}, "O+": {},
	"A-": {}, "B-": {}, "AB-": {}, "O-": {},
}

// MachineOption customizes a Machine.
type MachineOption func(*Machine)

func WithLimits(limits appointment.Limits) MachineOption {
	return func(m *Machine) { m.limits = limits }
}

func WithNumberGenerator(gen appointment.NumberGenerator) MachineOption {
	return func(m *Machine) {
		if gen != nil {
			m.numbers = gen
		}
	}
}

// WithPermissiveDOB also accepts any date of birth containing a digit.
func WithPermissiveDOB(enabled bool) MachineOption {
	return func(m *Machine) { m.dobPermissive = enabled }
}

func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func WithMachineLogger(logger *logging.Logger) MachineOption {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Machine is the booking state machine plus its interceptors and cancellation sub-flow.
type Machine struct {
	scheduler     Scheduler
	limits        appointment.Limits
	numbers       appointment.NumberGenerator
	dobPermissive bool
	now           func() time.Time
	logger        *logging.Logger
}

func NewMachine(scheduler Scheduler, opts ...MachineOption) *Machine {
	if scheduler == nil {
		panic("conversation: scheduler required")
	}
	m := &Machine{
		scheduler: scheduler,
		limits:    appointment.DefaultLimits(),
		numbers:   appointment.RandomNumbers{},
		now:       time.Now,
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Respond handles one input against sess, mutating its draft and cancellation state.
// Interceptors run in a fixed order: security, active cancellation, cancellation
// intent, thanks, greeting. None of them reset the draft.
func (m *Machine) Respond(ctx context.Context, sess *Session, user *identity.User, text string) Reply {
	input := strings.TrimSpace(text)
	if input == "" {
		if sess.Cancellation.IsCancelling {
			return Reply{Text: cancellationPrompt(sess.Cancellation), Outcome: OutcomeReprompt}
		}
		return Reply{Text: stagePrompt(sess.Draft), Outcome: OutcomeReprompt}
	}

	if warning, ok := CheckSecurityThreat(input); ok {
		return Reply{Text: warning, Outcome: OutcomeIntercepted}
	}
	if sess.Cancellation.IsCancelling {
		return m.continueCancellation(ctx, sess, user, input)
	}
	if IsCancellationIntent(input) {
		return m.startCancellation(sess, user)
	}
	if IsThankYou(input) {
		return Reply{Text: thanksReply, Outcome: OutcomeIntercepted}
	}
	if IsGreeting(input) {
		return Reply{Text: greetingReply(TimeOfDayGreeting(m.now())), Outcome: OutcomeIntercepted}
	}
	return m.dispatch(ctx, sess, user, input)
}

func (m *Machine) dispatch(ctx context.Context, sess *Session, user *identity.User, input string) Reply {
	d := &sess.Draft
	switch d.Stage {
	case appointment.StageTypeSelection:
		return m.handleType(d, user, input)
	case appointment.StageFullName:
		d.FullName = input
		return advance(d, appointment.StageAge, nameAcceptedReply(input))
	case appointment.StageAge:
		if !validAge(input) {
			return Reply{Text: ageInvalid, Outcome: OutcomeReprompt}
		}
		d.Age = input
		return advance(d, appointment.StageDateOfBirth, dobPrompt)
	case appointment.StageDateOfBirth:
		if !m.validDOB(input) {
			return Reply{Text: dobInvalid, Outcome: OutcomeReprompt}
		}
		d.DateOfBirth = input
		return advance(d, appointment.StageBloodGroup, bloodGroupPrompt)
	case appointment.StageBloodGroup:
		group, ok := normalizeBloodGroup(input)
		if !ok {
			return Reply{Text: bloodGroupInvalid, Outcome: OutcomeReprompt}
		}
		d.BloodGroup = group
		return advance(d, appointment.StageSymptoms, symptomsPrompt)
	case appointment.StageSymptoms:
		d.Symptoms = input
		return advance(d, appointment.StageRecordsUpload, uploadPrompt)
	case appointment.StageRecordsUpload:
		return advance(d, appointment.StageDepartmentSelection, departmentMenuReply())
	case appointment.StageDepartmentSelection:
		return m.handleDepartment(ctx, d, input)
	case appointment.StagePaymentConfirmation:
		return m.handlePayment(ctx, sess, user)
	case appointment.StageComplete:
		sess.resetBooking()
		return Reply{Text: completeReply, Outcome: OutcomeAdvanced}
	}

	m.logger.Warn("unknown booking stage, restarting", "session_id", sess.ID, "stage", string(d.Stage))
	sess.resetBooking()
	return Reply{Text: stagePrompt(sess.Draft), Outcome: OutcomeReprompt}
}

func (m *Machine) handleType(d *appointment.Draft, user *identity.User, input string) Reply {
	apptType, ok := appointment.RecognizeType(input)
	if !ok {
		return Reply{Text: typeNotRecognized, Outcome: OutcomeReprompt}
	}
	if !user.Authenticated() {
		return Reply{Text: loginRequiredReply, RequiresAuth: true, Outcome: OutcomeAuthRequired}
	}
	d.Type = apptType
	return advance(d, appointment.StageFullName, typeAcceptedReply(apptType))
}

func (m *Machine) handleDepartment(ctx context.Context, d *appointment.Draft, input string) Reply {
	department, ok := appointment.ResolveDepartment(input)
	if !ok {
		return Reply{Text: departmentInvalidReply(), Outcome: OutcomeReprompt}
	}
	limit := m.limits.For(d.Type)
	if _, err := m.scheduler.Reserve(ctx, department, d.Type, limit); err != nil {
		var capErr *appointment.CapacityError
		if errors.As(err, &capErr) {
			return Reply{Text: capacityFullReply(department, limit), Outcome: OutcomeCapacityFull}
		}
		m.logger.Error("capacity reservation failed", "department", department, "error", err)
		return Reply{Text: availabilityError, Outcome: OutcomeStoreError}
	}
	if d.AppointmentNumber == "" {
		d.AppointmentNumber = m.numbers.Next()
	}
	d.Department = department
	reply := advance(d, appointment.StagePaymentConfirmation,
		departmentAcceptedReply(department, d.AppointmentNumber)+" "+paymentPrompt)
	reply.Reserved = department
	return reply
}

func (m *Machine) handlePayment(ctx context.Context, sess *Session, user *identity.User) Reply {
	if !user.Authenticated() {
		return Reply{Text: loginRequiredReply, RequiresAuth: true, Outcome: OutcomeAuthRequired}
	}
	d := &sess.Draft
	rec, err := m.scheduler.Book(ctx, *user, *d, sess.Attachments)
	if err != nil {
		if errors.Is(err, appointment.ErrAuthRequired) {
			return Reply{Text: loginRequiredReply, RequiresAuth: true, Outcome: OutcomeAuthRequired}
		}
		m.logger.Error("appointment save failed", "session_id", sess.ID, "appointment_number", d.AppointmentNumber, "error", err)
		return Reply{Text: saveError, Outcome: OutcomeStoreError}
	}
	summary := bookingSummaryReply(*d)
	reply := advance(d, appointment.StageComplete, summary)
	reply.BookedID = rec.ID
	return reply
}

func advance(d *appointment.Draft, next appointment.Stage, text string) Reply {
	d.Stage = next
	return Reply{Text: text, Outcome: OutcomeAdvanced}
}

// validAge accepts numbers and free text mentioning one ("30 years"). NaN and
// infinities parse as floats but carry no digit, so they are rejected.
func validAge(input string) bool {
	if v, err := strconv.ParseFloat(input, 64); err == nil && !math.IsNaN(v) && !math.IsInf(v, 0) {
		return true
	}
	return containsDigit(input)
}

func (m *Machine) validDOB(input string) bool {
	if strictDOB.MatchString(input) {
		return true
	}
	return m.dobPermissive && containsDigit(input)
}

func normalizeBloodGroup(input string) (string, bool) {
	upper := strings.ToUpper(input)
	if _, ok := bloodGroups[upper]; ok {
		return upper, true
	}
	switch strings.ToLower(strings.ReplaceAll(input, "’", "'")) {
	case "unknown", "i don't know", "i dont know":
		return "Unknown", true
	}
	return "", false
}

func containsDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}
