// Package mailgun delivers messages through the Mailgun HTTP API.
package mailgun

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
)

const name = "mailgun"

// Config holds the Mailgun settings. APIBase is only needed outside the US
// region, e.g. "https://api.eu.mailgun.net/v3".
type Config struct {
	Domain  string
	APIKey  string
	APIBase string
}

// Client is the part of *mailgun.MailgunImpl the transport needs.
type Client interface {
	Send(ctx context.Context, m *mailgun.Message) (string, string, error)
}

// Transport uploads each message as MIME so everything the builder set,
// attachments and inline images included, survives unchanged.
type Transport struct {
	client Client
}

// New returns a Transport for cfg.
func New(cfg Config) (*Transport, error) {
	if cfg.Domain == "" {
		return nil, &email.ConfigError{Driver: name, Key: "domain", Reason: "is required"}
	}
	if cfg.APIKey == "" {
		return nil, &email.ConfigError{Driver: name, Key: "api_key", Reason: "is required"}
	}

	mg := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	return &Transport{client: mg}, nil
}

// NewWithClient returns a Transport using client, e.g. a test double.
func NewWithClient(client Client) *Transport {
	return &Transport{client: client}
}

// Send implements email.Transport.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	env := msg.Envelope()

	var body bytes.Buffer
	if _, err := msg.WriteTo(&body); err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: fmt.Errorf("can't render the message: %w", err)}
	}

	m := mailgun.NewMIMEMessage(io.NopCloser(&body), env.To...)
	_, id, err := t.client.Send(ctx, m)
	if err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: err}
	}

	log.Debug().
		Str("messageID", id).
		Int("recipients", len(env.To)).
		Msg("Mailgun accepted the message")
	return email.Result{Sent: len(env.To)}, nil
}
