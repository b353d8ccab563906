// Package ses delivers messages through the AWS SES v2 API.
package ses

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
)

const name = "ses"

// Config holds the settings for the SES client. Static credentials are used
// when both keys are set; otherwise the default AWS credential chain applies.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the part of the SES v2 client the transport needs.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Transport sends each message as a raw MIME message. SES accepts or rejects
// the message as a whole.
type Transport struct {
	client SendEmailAPI
}

// New loads the AWS configuration for cfg and returns a Transport.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Region == "" {
		return nil, &email.ConfigError{Driver: name, Key: "region", Reason: "is required"}
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, &email.ConfigError{Driver: name, Reason: fmt.Sprintf("can't load the AWS config: %v", err)}
	}

	return &Transport{client: sesv2.NewFromConfig(awsCfg)}, nil
}

// NewWithClient returns a Transport using client, e.g. a test double.
func NewWithClient(client SendEmailAPI) *Transport {
	return &Transport{client: client}
}

// Send implements email.Transport.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	env := msg.Envelope()

	var raw bytes.Buffer
	if _, err := msg.WriteTo(&raw); err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: fmt.Errorf("can't render the message: %w", err)}
	}

	input := &sesv2.SendEmailInput{
		Destination: &types.Destination{
			// Every recipient, including bcc, is listed here since bcc
			// addresses are not part of the rendered headers.
			ToAddresses: env.To,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw.Bytes()},
		},
	}
	if env.From != "" {
		input.FromEmailAddress = aws.String(env.From)
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: err}
	}

	ev := log.Debug().Int("recipients", len(env.To))
	if out != nil && out.MessageId != nil {
		ev = ev.Str("messageID", *out.MessageId)
	}
	ev.Msg("SES accepted the message")

	return email.Result{Sent: len(env.To)}, nil
}
