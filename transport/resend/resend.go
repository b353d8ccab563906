// Package resend delivers messages through the Resend HTTP API.
package resend

import (
	"context"
	"strings"

	"github.com/resend/resend-go/v3"
	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
)

const name = "resend"

// Client is the part of the Resend client the transport needs.
type Client interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Transport maps each message onto a Resend send request. Resend has no raw
// MIME endpoint, so only what the request can carry is sent: the first
// "from" and "reply to" addresses, the plain text body, the first HTML part,
// attachments, inline images and custom headers.
type Transport struct {
	client Client
}

// New returns a Transport authenticating with apiKey.
func New(apiKey string) (*Transport, error) {
	if apiKey == "" {
		return nil, &email.ConfigError{Driver: name, Key: "api_key", Reason: "is required"}
	}
	return &Transport{client: emailsClient{c: resend.NewClient(apiKey)}}, nil
}

// NewWithClient returns a Transport using client, e.g. a test double.
func NewWithClient(client Client) *Transport {
	return &Transport{client: client}
}

type emailsClient struct {
	c *resend.Client
}

func (e emailsClient) SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	return e.c.Emails.SendWithContext(ctx, params)
}

// Send implements email.Transport.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	req := request(msg)

	sent, err := t.client.SendWithContext(ctx, req)
	if err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: err}
	}

	n := len(req.To) + len(req.Cc) + len(req.Bcc)
	ev := log.Debug().Int("recipients", n)
	if sent != nil {
		ev = ev.Str("messageID", sent.Id)
	}
	ev.Msg("Resend accepted the message")
	return email.Result{Sent: n}, nil
}

// request converts msg into a Resend send request.
func request(msg *email.Message) *resend.SendEmailRequest {
	req := &resend.SendEmailRequest{
		Subject: msg.Subject(),
		Text:    msg.Body(),
		To:      formatted(msg.Recipients(email.To)),
		Cc:      formatted(msg.Recipients(email.Cc)),
		Bcc:     formatted(msg.Recipients(email.Bcc)),
	}

	if from := msg.Senders(email.From); len(from) > 0 {
		req.From = from[0].String()
	}
	if rt := msg.Senders(email.ReplyTo); len(rt) > 0 {
		req.ReplyTo = rt[0].String()
	}

	for _, p := range msg.Parts() {
		if strings.HasPrefix(strings.ToLower(p.MIMEType), "text/html") {
			req.Html = string(p.Content)
			break
		}
	}

	h := msg.Headers()
	if s, ok := msg.Sender(); ok {
		h["Sender"] = []string{s.String()}
	}
	if len(h) > 0 {
		req.Headers = make(map[string]string, len(h))
		for k, v := range h {
			req.Headers[k] = strings.Join(v, ", ")
		}
	}

	for _, a := range msg.Attachments() {
		req.Attachments = append(req.Attachments, &resend.Attachment{
			Filename:    a.Filename,
			Content:     a.Content,
			ContentType: a.MIMEType,
			ContentId:   a.ContentID,
		})
	}

	return req
}

func formatted(addrs []email.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}
