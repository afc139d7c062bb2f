package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/appointments"
	"github.com/wolfman30/medicare-assistant/internal/capacity"
	"github.com/wolfman30/medicare-assistant/internal/identity"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

var patient = &identity.User{ID: "user-1", DisplayName: "Jane", Email: "jane@example.com"}

func morning() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) }

type testHarness struct {
	machine *Machine
	service *appointments.Service
	store   *appointments.MemoryStore
	ledger  *capacity.MemoryLedger
}

func newHarness(t *testing.T, opts ...MachineOption) *testHarness {
	t.Helper()
	store := appointments.NewMemoryStore()
	ledger := capacity.NewMemoryLedger()
	svc := appointments.NewService(store, ledger, appointments.WithLogger(logging.Discard()))
	opts = append([]MachineOption{WithClock(morning), WithMachineLogger(logging.Discard())}, opts...)
	return &testHarness{
		machine: NewMachine(svc, opts...),
		service: svc,
		store:   store,
		ledger:  ledger,
	}
}

func (h *testHarness) say(t *testing.T, sess *Session, user *identity.User, text string) Reply {
	t.Helper()
	return h.machine.Respond(context.Background(), sess, user, text)
}

func sessionAt(stage appointment.Stage) *Session {
	sess := newSession(morning())
	sess.Draft.Stage = stage
	sess.Draft.Type = appointment.TypeMRI
	return sess
}

// stubScheduler lets tests force store failures.
type stubScheduler struct {
	reserveErr error
	bookErr    error
	cancelErr  error
	reserves   int
	releases   int
	books      int
	cancels    int
}

func (s *stubScheduler) Reserve(context.Context, string, appointment.Type, int) (capacity.Entry, error) {
	s.reserves++
	return capacity.Entry{}, s.reserveErr
}

func (s *stubScheduler) Release(context.Context, string) error {
	s.releases++
	return nil
}

func (s *stubScheduler) Book(context.Context, identity.User, appointment.Draft, []appointment.Attachment) (appointment.Record, error) {
	s.books++
	return appointment.Record{}, s.bookErr
}

func (s *stubScheduler) Cancel(context.Context, identity.User, string, string) (appointment.Record, error) {
	s.cancels++
	return appointment.Record{}, s.cancelErr
}

func (s *stubScheduler) Revoke(context.Context, identity.User, string) error {
	return nil
}

func TestMachine_EmptyInputNeverAdvances(t *testing.T) {
	h := newHarness(t)
	for _, stage := range appointment.Stages {
		sess := sessionAt(stage)
		for _, input := range []string{"", "   ", "\t\n"} {
			reply := h.say(t, sess, patient, input)
			assert.Equal(t, OutcomeReprompt, reply.Outcome, "stage %s", stage)
			assert.Equal(t, stage, sess.Draft.Stage)
			assert.NotEmpty(t, reply.Text)
		}
	}
}

func TestMachine_TypeSelection(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.StageTypeSelection)

	reply := h.say(t, sess, patient, "a blood test")
	assert.Equal(t, typeNotRecognized, reply.Text)
	assert.Equal(t, appointment.StageTypeSelection, sess.Draft.Stage)

	reply = h.say(t, sess, nil, "MRI scan please")
	assert.True(t, reply.RequiresAuth)
	assert.Equal(t, loginRequiredReply, reply.Text)
	assert.Equal(t, appointment.StageTypeSelection, sess.Draft.Stage)

	reply = h.say(t, sess, patient, "MRI scan please")
	assert.False(t, reply.RequiresAuth)
	assert.Equal(t, "I'll help you book a MRI Scan. Could you please provide your full name?", reply.Text)
	assert.Equal(t, appointment.StageFullName, sess.Draft.Stage)
	assert.Equal(t, appointment.TypeMRI, sess.Draft.Type)
}

func TestMachine_AgeValidation(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.StageAge)

	for _, input := range []string{"thirty", "NaN", "inf", "-Infinity"} {
		reply := h.say(t, sess, patient, input)
		assert.Equal(t, ageInvalid, reply.Text, input)
		assert.Equal(t, appointment.StageAge, sess.Draft.Stage, input)
		assert.Empty(t, sess.Draft.Age, input)
	}

	for _, input := range []string{"30", "I am 30", "30 years"} {
		sess := sessionAt(appointment.StageAge)
		reply := h.say(t, sess, patient, input)
		assert.Equal(t, dobPrompt, reply.Text)
		assert.Equal(t, appointment.StageDateOfBirth, sess.Draft.Stage)
		assert.Equal(t, input, sess.Draft.Age)
	}
}

func TestMachine_DateOfBirthStrictByDefault(t *testing.T) {
	h := newHarness(t)
	for _, input := range []string{"01/02/1990", "1-2-1990", "31/12/2001"} {
		sess := sessionAt(appointment.StageDateOfBirth)
		h.say(t, sess, patient, input)
		assert.Equal(t, appointment.StageBloodGroup, sess.Draft.Stage, input)
	}
	for _, input := range []string{"born in 1990", "1990", "01/02/90", "yesterday"} {
		sess := sessionAt(appointment.StageDateOfBirth)
		reply := h.say(t, sess, patient, input)
		assert.Equal(t, dobInvalid, reply.Text, input)
		assert.Equal(t, appointment.StageDateOfBirth, sess.Draft.Stage, input)
	}
}

func TestMachine_DateOfBirthPermissive(t *testing.T) {
	h := newHarness(t, WithPermissiveDOB(true))
	sess := sessionAt(appointment.StageDateOfBirth)
	h.say(t, sess, patient, "born in 1990")
	assert.Equal(t, appointment.StageBloodGroup, sess.Draft.Stage)

	sess = sessionAt(appointment.StageDateOfBirth)
	h.say(t, sess, patient, "no idea")
	assert.Equal(t, appointment.StageDateOfBirth, sess.Draft.Stage)
}

func TestMachine_BloodGroup(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.StageBloodGroup)
	reply := h.say(t, sess, patient, "Z+")
	assert.Equal(t, bloodGroupInvalid, reply.Text)
	assert.Equal(t, appointment.StageBloodGroup, sess.Draft.Stage)

	h.say(t, sess, patient, "o+")
	assert.Equal(t, "O+", sess.Draft.BloodGroup)
	assert.Equal(t, appointment.StageSymptoms, sess.Draft.Stage)

	for _, input := range []string{"unknown", "I don't know", "I DON'T KNOW"} {
		sess := sessionAt(appointment.StageBloodGroup)
		h.say(t, sess, patient, input)
		assert.Equal(t, "Unknown", sess.Draft.BloodGroup, input)
	}
}

func TestMachine_DepartmentByIndexMatchesName(t *testing.T) {
	h := newHarness(t)
	byIndex := sessionAt(appointment.StageDepartmentSelection)
	byName := sessionAt(appointment.StageDepartmentSelection)

	h.say(t, byIndex, patient, "3")
	h.say(t, byName, patient, "Orthopedics")
	assert.Equal(t, "Orthopedics", byIndex.Draft.Department)
	assert.Equal(t, byIndex.Draft.Department, byName.Draft.Department)
	assert.Equal(t, appointment.StagePaymentConfirmation, byIndex.Draft.Stage)
	assert.True(t, appointment.IsNumber(byIndex.Draft.AppointmentNumber))
}

func TestMachine_DepartmentUnknownListsMenu(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.StageDepartmentSelection)
	reply := h.say(t, sess, patient, "dentistry")
	assert.True(t, strings.HasPrefix(reply.Text, departmentInvalid))
	assert.Contains(t, reply.Text, "8. General Medicine")
	assert.Equal(t, appointment.StageDepartmentSelection, sess.Draft.Stage)
}

func TestMachine_CapacityLimitBlocksBooking(t *testing.T) {
	h := newHarness(t, WithLimits(appointment.Limits{Doctor: 2, Diagnostic: 2}))
	for i := 0; i < 2; i++ {
		sess := sessionAt(appointment.StageDepartmentSelection)
		h.say(t, sess, patient, "Cardiology")
		require.Equal(t, appointment.StagePaymentConfirmation, sess.Draft.Stage)
	}

	ok, err := h.ledger.CheckAvailability(context.Background(), "cardiology", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	sess := sessionAt(appointment.StageDepartmentSelection)
	reply := h.say(t, sess, patient, "cardiology")
	assert.Equal(t, OutcomeCapacityFull, reply.Outcome)
	assert.Equal(t, "I'm sorry, but Cardiology is currently at full capacity (2 appointments). Please select another department.", reply.Text)
	assert.Equal(t, appointment.StageDepartmentSelection, sess.Draft.Stage)
	assert.Empty(t, sess.Draft.AppointmentNumber)
	assert.Empty(t, sess.Draft.Department)
}

func TestMachine_ReserveErrorKeepsStage(t *testing.T) {
	stub := &stubScheduler{reserveErr: errors.New("redis: connection refused")}
	m := NewMachine(stub, WithMachineLogger(logging.Discard()))
	sess := sessionAt(appointment.StageDepartmentSelection)
	reply := m.Respond(context.Background(), sess, patient, "2")
	assert.Equal(t, availabilityError, reply.Text)
	assert.Equal(t, OutcomeStoreError, reply.Outcome)
	assert.Equal(t, appointment.StageDepartmentSelection, sess.Draft.Stage)
}

func TestMachine_NumberAssignedOnce(t *testing.T) {
	calls := 0
	gen := appointment.NumberFunc(func() string {
		calls++
		return "AP-55555"
	})
	stub := &stubScheduler{bookErr: errors.New("timeout")}
	m := NewMachine(stub, WithNumberGenerator(gen), WithMachineLogger(logging.Discard()))
	sess := sessionAt(appointment.StageDepartmentSelection)

	m.Respond(context.Background(), sess, patient, "Neurology")
	require.Equal(t, "AP-55555", sess.Draft.AppointmentNumber)

	for i := 0; i < 3; i++ {
		reply := m.Respond(context.Background(), sess, patient, "yes")
		assert.Equal(t, saveError, reply.Text)
		assert.Equal(t, appointment.StagePaymentConfirmation, sess.Draft.Stage)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, "AP-55555", sess.Draft.AppointmentNumber)
	assert.Equal(t, 3, stub.books)
}

func TestMachine_PaymentRequiresUser(t *testing.T) {
	stub := &stubScheduler{}
	m := NewMachine(stub, WithMachineLogger(logging.Discard()))
	sess := sessionAt(appointment.StagePaymentConfirmation)
	sess.Draft.AppointmentNumber = "AP-10000"
	sess.Draft.Department = "Neurology"

	reply := m.Respond(context.Background(), sess, nil, "ok")
	assert.True(t, reply.RequiresAuth)
	assert.Equal(t, appointment.StagePaymentConfirmation, sess.Draft.Stage)
	assert.Zero(t, stub.books)
}

func TestMachine_GreetingAtAnyStageKeepsDraft(t *testing.T) {
	h := newHarness(t)
	for _, stage := range appointment.Stages {
		sess := sessionAt(stage)
		sess.Draft.FullName = "Jane"
		reply := h.say(t, sess, patient, "hi")
		assert.True(t, strings.HasPrefix(reply.Text, "Good morning! "), stage)
		assert.True(t, strings.HasSuffix(reply.Text, typePrompt), stage)
		assert.Equal(t, stage, sess.Draft.Stage)
		assert.Equal(t, "Jane", sess.Draft.FullName)
	}

	evening := newHarness(t, WithClock(func() time.Time { return time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC) }))
	reply := evening.say(t, sessionAt(appointment.StageAge), patient, "hey")
	assert.True(t, strings.HasPrefix(reply.Text, "Good evening!"))
}

func TestMachine_InterceptorOrder(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.StageSymptoms)

	reply := h.say(t, sess, patient, "hi, thanks, I want to hack")
	assert.Equal(t, securityWarningReply, reply.Text)

	reply = h.say(t, sess, patient, "hi, thanks, cancel my appointment")
	assert.Equal(t, cancelStartReply, reply.Text)
	assert.True(t, sess.Cancellation.IsCancelling)

	sess = sessionAt(appointment.StageSymptoms)
	reply = h.say(t, sess, patient, "hi and thanks")
	assert.Equal(t, thanksReply, reply.Text)
	assert.Equal(t, appointment.StageSymptoms, sess.Draft.Stage)
}

func TestMachine_CompleteResets(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.StageComplete)
	sess.Draft.FullName = "Jane"
	sess.Attachments = []appointment.Attachment{{Name: "x.pdf"}}
	reply := h.say(t, sess, patient, "ok")
	assert.Equal(t, completeReply, reply.Text)
	assert.Equal(t, appointment.NewDraft(), sess.Draft)
	assert.Empty(t, sess.Attachments)
}

func TestMachine_UnknownStageRestarts(t *testing.T) {
	h := newHarness(t)
	sess := sessionAt(appointment.Stage("paying"))
	reply := h.say(t, sess, patient, "hmm")
	assert.Equal(t, OutcomeReprompt, reply.Outcome)
	assert.Equal(t, appointment.StageTypeSelection, sess.Draft.Stage)
}

func TestMachine_FullBookingRoundTrip(t *testing.T) {
	h := newHarness(t)
	sess := newSession(morning())
	ctx := context.Background()

	steps := []struct {
		input string
		stage appointment.Stage
	}{
		{"I need an MRI", appointment.StageFullName},
		{"Jane Doe", appointment.StageAge},
		{"30", appointment.StageDateOfBirth},
		{"01/02/1996", appointment.StageBloodGroup},
		{"o+", appointment.StageSymptoms},
		{"recurring headaches", appointment.StageRecordsUpload},
		{"no", appointment.StageDepartmentSelection},
		{"2", appointment.StagePaymentConfirmation},
	}
	for _, step := range steps {
		reply := h.say(t, sess, patient, step.input)
		require.Equal(t, step.stage, sess.Draft.Stage, "after %q: %s", step.input, reply.Text)
	}
	number := sess.Draft.AppointmentNumber

	reply := h.say(t, sess, patient, "confirm")
	require.Equal(t, appointment.StageComplete, sess.Draft.Stage)
	assert.Contains(t, reply.Text, "Appointment #: "+number)
	assert.Contains(t, reply.Text, "- Type: MRI Scan")
	assert.Contains(t, reply.Text, "- Patient: Jane Doe, Age: 30")

	rec, err := h.store.FindByNumber(ctx, patient.ID, number)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, rec.Status)
	assert.Equal(t, appointment.TypeMRI, rec.Type)
	assert.Equal(t, "Neurology", rec.Department)

	entry, _, _ := h.ledger.Get(ctx, "neurology")
	require.Equal(t, 1, entry.ActiveCount)

	h.say(t, sess, patient, "thanks for that")
	h.say(t, sess, patient, "ok")
	require.Equal(t, appointment.StageTypeSelection, sess.Draft.Stage)

	h.say(t, sess, patient, "I'd like to cancel my appointment")
	h.say(t, sess, patient, strings.ToLower(number))
	reply = h.say(t, sess, patient, "schedule conflict")
	assert.Equal(t, cancelSuccessReply(number), reply.Text)
	assert.False(t, sess.Cancellation.IsCancelling)

	rec, err = h.store.FindByNumber(ctx, patient.ID, number)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, rec.Status)
	assert.Equal(t, "schedule conflict", rec.CancellationReason)
	assert.NotNil(t, rec.CancelledAt)

	entry, _, _ = h.ledger.Get(ctx, "neurology")
	assert.Equal(t, 0, entry.ActiveCount)
}

func TestMachine_CancellationStartRequiresUser(t *testing.T) {
	stub := &stubScheduler{}
	m := NewMachine(stub, WithMachineLogger(logging.Discard()))
	sess := sessionAt(appointment.StageAge)

	reply := m.Respond(context.Background(), sess, nil, "cancel my appointment")
	assert.True(t, reply.RequiresAuth)
	assert.Equal(t, cancelLoginReply, reply.Text)
	assert.Equal(t, OutcomeAuthRequired, reply.Outcome)
	assert.Equal(t, CancellationState{}, sess.Cancellation)
	assert.Equal(t, appointment.StageAge, sess.Draft.Stage)
}

func TestMachine_CancellationMalformedNumberReprompts(t *testing.T) {
	stub := &stubScheduler{}
	m := NewMachine(stub, WithMachineLogger(logging.Discard()))
	sess := sessionAt(appointment.StageAge)
	m.Respond(context.Background(), sess, patient, "cancel my appointment")
	require.True(t, sess.Cancellation.AwaitingNumber())

	for _, input := range []string{"12345", "my number is AP-12345", "PA-12345"} {
		reply := m.Respond(context.Background(), sess, patient, input)
		assert.Equal(t, cancelNumberInvalid, reply.Text, input)
		assert.Equal(t, OutcomeReprompt, reply.Outcome, input)
		assert.Equal(t, CancellationState{IsCancelling: true}, sess.Cancellation, input)
	}
	assert.Zero(t, stub.cancels)
}

func TestMachine_CancellationStoreOutcomes(t *testing.T) {
	const number = "AP-12345"
	tests := []struct {
		name      string
		cancelErr error
		reply     string
		outcome   Outcome
		state     CancellationState
	}{
		{
			name:    "cancelled",
			reply:   cancelSuccessReply(number),
			outcome: OutcomeAdvanced,
			state:   CancellationState{},
		},
		{
			name:      "not found resets",
			cancelErr: fmt.Errorf("appointments: cancel: %w", appointment.ErrNotFound),
			reply:     cancelNotFound,
			outcome:   OutcomeNotFound,
			state:     CancellationState{},
		},
		{
			name:      "already cancelled resets",
			cancelErr: appointment.ErrAlreadyCancelled,
			reply:     cancelAlreadyReply(number),
			outcome:   OutcomeNotFound,
			state:     CancellationState{},
		},
		{
			name:      "store error keeps number",
			cancelErr: errors.New("pq: connection reset"),
			reply:     cancelError,
			outcome:   OutcomeStoreError,
			state:     CancellationState{IsCancelling: true, AppointmentNumber: number},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubScheduler{cancelErr: tt.cancelErr}
			m := NewMachine(stub, WithMachineLogger(logging.Discard()))
			sess := sessionAt(appointment.StageBloodGroup)
			ctx := context.Background()

			m.Respond(ctx, sess, patient, "I want to cancel an appointment")
			reply := m.Respond(ctx, sess, patient, "ap-12345")
			require.Equal(t, cancelReasonPrompt, reply.Text)
			require.Equal(t, number, sess.Cancellation.AppointmentNumber)

			reply = m.Respond(ctx, sess, patient, "feeling better")
			assert.Equal(t, tt.reply, reply.Text)
			assert.Equal(t, tt.outcome, reply.Outcome)
			assert.Equal(t, tt.state, sess.Cancellation)
			assert.Equal(t, 1, stub.cancels)
			assert.Equal(t, appointment.StageBloodGroup, sess.Draft.Stage)
		})
	}
}
