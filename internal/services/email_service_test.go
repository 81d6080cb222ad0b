package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSES struct {
	input *ses.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestAWSSESEmailService_SendPasswordReset(t *testing.T) {
	client := &mockSES{}
	svc := NewSESEmailServiceWithClient(client, "no-reply@quill.dev", "https://quill.dev/reset-password", discardLogger())

	err := svc.SendPasswordReset(context.Background(), "alice@x.com", "tok_123", time.Now().Add(time.Hour))

	require.NoError(t, err)
	require.NotNil(t, client.input)
	assert.Equal(t, "no-reply@quill.dev", aws.ToString(client.input.Source))
	assert.Equal(t, []string{"alice@x.com"}, client.input.Destination.ToAddresses)
	assert.Contains(t, aws.ToString(client.input.Message.Body.Text.Data), "https://quill.dev/reset-password?token=tok_123")
	assert.Contains(t, aws.ToString(client.input.Message.Body.Html.Data), "https://quill.dev/reset-password?token=tok_123")
}

func TestAWSSESEmailService_SendFailure(t *testing.T) {
	client := &mockSES{err: errors.New("throttled")}
	svc := NewSESEmailServiceWithClient(client, "no-reply@quill.dev", "https://quill.dev/reset", discardLogger())

	err := svc.SendPasswordReset(context.Background(), "alice@x.com", "tok", time.Now())

	assert.ErrorContains(t, err, "failed to send email")
}

func TestResetLink_PreservesExistingQuery(t *testing.T) {
	assert.Equal(t, "https://quill.dev/reset?lang=en&token=abc", resetLink("https://quill.dev/reset?lang=en", "abc"))
}

func TestLogEmailService_NeverFails(t *testing.T) {
	svc := NewLogEmailService(discardLogger())
	assert.NoError(t, svc.SendPasswordReset(context.Background(), "alice@x.com", "tok", time.Now()))
}
