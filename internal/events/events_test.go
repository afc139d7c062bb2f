package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/appointments"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

type badEvent struct{}

func (badEvent) EventType() string { return "" }

func TestNewEnvelope(t *testing.T) {
	fixedNow := time.Unix(0, 123456000).UTC()
	prevNow := nowFunc
	nowFunc = func() time.Time { return fixedNow }
	defer func() { nowFunc = prevNow }()

	id := uuid.MustParse("9a20d7d1-bf6a-4d33-bd55-5d25a816f1a8")
	env, err := NewEnvelope("appointment:rec-1", "AP-12345", AppointmentChangedV1{Kind: appointments.EventBooked}, WithEventID(id))
	require.NoError(t, err)
	assert.Equal(t, id, env.EventID)
	assert.Equal(t, fixedNow.UnixMicro(), env.TimestampMicros)
	assert.Equal(t, "appointment.booked.v1", env.EventType)
	assert.Equal(t, "appointment:rec-1", env.Aggregate)
	assert.Equal(t, "AP-12345", env.CorrelationID)
	assert.NotEmpty(t, env.Payload)
}

func TestNewEnvelope_Errors(t *testing.T) {
	_, err := NewEnvelope(" ", "", AppointmentChangedV1{Kind: "x"})
	assert.ErrorIs(t, err, errMissingAggregate)

	_, err = NewEnvelope("a", "", nil)
	assert.ErrorIs(t, err, errNilEvent)

	_, err = NewEnvelope("a", "", badEvent{})
	assert.Error(t, err)
}

type mockSQS struct {
	input *sqs.SendMessageInput
	err   error
}

func (m *mockSQS) SendMessage(_ context.Context, input *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func TestSQSPublisher_PublishAppointment(t *testing.T) {
	client := &mockSQS{}
	pub := NewSQSPublisher(client, "https://sqs.local/000000000000/appointments", logging.Discard())
	rec := appointment.Record{
		ID:                 "rec-1",
		OwnerID:            "user-1",
		AppointmentNumber:  "AP-12345",
		FullName:           "Jane Doe",
		Symptoms:           "private",
		Type:               appointment.TypeMRI,
		Department:         "Neurology",
		Status:             appointment.StatusCancelled,
		CancellationReason: "moved",
	}

	require.NoError(t, pub.PublishAppointment(context.Background(), appointments.EventCancelled, rec))
	require.NotNil(t, client.input)
	assert.Equal(t, "https://sqs.local/000000000000/appointments", aws.ToString(client.input.QueueUrl))
	assert.Equal(t, "appointment.cancelled.v1", aws.ToString(client.input.MessageAttributes["event_type"].StringValue))

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(client.input.MessageBody)), &env))
	assert.Equal(t, "appointment:rec-1", env.Aggregate)
	assert.Equal(t, "AP-12345", env.CorrelationID)
	assert.NotContains(t, string(env.Payload), "Jane Doe")
	assert.NotContains(t, string(env.Payload), "private")

	var payload AppointmentChangedV1
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, appointment.TypeMRI, payload.AppointmentType)
	assert.Equal(t, appointment.StatusCancelled, payload.Status)
	assert.Equal(t, "moved", payload.CancellationReason)
}

func TestSQSPublisher_SendError(t *testing.T) {
	pub := NewSQSPublisher(&mockSQS{err: errors.New("throttled")}, "q", logging.Discard())
	err := pub.PublishAppointment(context.Background(), appointments.EventBooked, appointment.Record{ID: "rec-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestNewSQSPublisher_Panics(t *testing.T) {
	assert.Panics(t, func() { NewSQSPublisher(nil, "q", nil) })
	assert.Panics(t, func() { NewSQSPublisher(&mockSQS{}, "", nil) })
}
