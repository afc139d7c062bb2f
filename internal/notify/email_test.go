package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "test@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
	}, nil)

	if sender == nil {
		t.Fatal("expected non-nil sender")
	}
	if sender.fromName != "MediCare Assistant" {
		t.Errorf("expected default from name 'MediCare Assistant', got %q", sender.fromName)
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{
		To:      "recipient@example.com",
		Subject: "Test",
		Body:    "Test body",
	})
	if err == nil {
		t.Error("expected error when client is nil")
	}
}

func TestStubEmailSender_RecordsMessages(t *testing.T) {
	sender := NewStubEmailSender(logging.Discard())

	err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com", Subject: "Test Subject"})
	require.NoError(t, err)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Test Subject", sent[0].Subject)
}

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, input *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = input
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &mockSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "noreply@medicare.example", ConfigurationSet: "transactional"}, logging.Discard())

	err := sender.Send(context.Background(), EmailMessage{
		To:      "jane@example.com",
		Subject: "Appointment AP-12345 confirmed",
		Body:    "plain",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)

	in := client.input
	require.NotNil(t, in)
	assert.Equal(t, "MediCare Assistant <noreply@medicare.example>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"jane@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "transactional", aws.ToString(in.ConfigurationSetName))
	assert.Equal(t, "Appointment AP-12345 confirmed", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "plain", aws.ToString(in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "<p>html</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&mockSES{err: errors.New("MessageRejected")}, SESConfig{FromEmail: "a@b.c"}, logging.Discard())
	err := sender.Send(context.Background(), EmailMessage{To: "x@y.z", Subject: "s", Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}

func TestNewSESSender_NilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}
