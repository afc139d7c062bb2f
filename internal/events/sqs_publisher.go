package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/appointments"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

// SQSAPI is the subset of the SQS client used by SQSPublisher.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends appointment events to an SQS queue.
type SQSPublisher struct {
	client   SQSAPI
	queueURL string
	logger   *logging.Logger
}

var _ appointments.EventPublisher = (*SQSPublisher)(nil)

func NewSQSPublisher(client SQSAPI, queueURL string, logger *logging.Logger) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SQSPublisher{client: client, queueURL: queueURL, logger: logger}
}

// PublishAppointment wraps rec in an envelope and sends it.
func (p *SQSPublisher) PublishAppointment(ctx context.Context, kind string, rec appointment.Record) error {
	evt := NewAppointmentChanged(kind, rec, nowFunc())
	env, err := NewEnvelope("appointment:"+rec.ID, rec.AppointmentNumber, evt)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(env.EventType)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	p.logger.Debug("appointment event published", "event_id", env.EventID.String(), "event_type", env.EventType)
	return nil
}
