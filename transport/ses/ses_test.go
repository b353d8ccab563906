package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptgott/envelope/email"
	"github.com/ptgott/envelope/smtptest"
)

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("0100018c-test")}, nil
}

func TestSend(t *testing.T) {
	f := &fakeSES{}
	tr := NewWithClient(f)

	msg := email.Compose("Hello", "body", "").
		From("me@example.com", "Me").
		SetReturnPath("bounces@example.com").
		To("you@example.com", "").
		Bcc("bcc@example.com", "")

	res, err := tr.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)

	require.NotNil(t, f.input)
	assert.Equal(t, []string{"you@example.com", "bcc@example.com"}, f.input.Destination.ToAddresses)
	assert.Equal(t, "bounces@example.com", aws.ToString(f.input.FromEmailAddress))

	require.NotNil(t, f.input.Content.Raw)
	pe, err := smtptest.ParseEmail(string(f.input.Content.Raw.Data))
	require.NoError(t, err)
	assert.Equal(t, "Hello", pe.Header.Get("Subject"))
	assert.Equal(t, "", pe.Header.Get("Bcc"))
	assert.Equal(t, "body", pe.Bodies["text/plain"])
}

func TestSendFailure(t *testing.T) {
	boom := errors.New("MessageRejected: Email address is not verified")
	tr := NewWithClient(&fakeSES{err: boom})

	_, err := tr.Send(context.Background(), email.Compose("Hello", "body", "").To("you@example.com", ""))
	var te *email.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "ses", te.Transport)
	assert.True(t, errors.Is(err, boom))
}

func TestNew(t *testing.T) {
	_, err := New(context.Background(), Config{})
	var ce *email.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "region", ce.Key)

	tr, err := New(context.Background(), Config{
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, tr.client)
}
