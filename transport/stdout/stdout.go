// Package stdout implements a transport that prints a summary of each
// message instead of delivering it. It's meant for trying out a
// configuration without sending anything.
package stdout

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/docker/go-units"

	"github.com/ptgott/envelope/email"
)

// Transport writes messages to a writer in a human-readable format.
type Transport struct {
	mu     sync.Mutex
	writer io.Writer
}

// New returns a Transport writing to w.
func New(w io.Writer) *Transport {
	return &Transport{writer: w}
}

// Send writes a summary of msg. Every recipient counts as delivered unless
// the write fails.
func (t *Transport) Send(_ context.Context, msg *email.Message) (email.Result, error) {
	var b strings.Builder
	env := msg.Envelope()

	b.WriteString("========================================\n")
	writeAddrs(&b, "From", msg.Senders(email.From))
	writeAddrs(&b, "Reply-To", msg.Senders(email.ReplyTo))
	if s, ok := msg.Sender(); ok {
		fmt.Fprintf(&b, "Sender: %v\n", s)
	}
	if rp := msg.ReturnPath(); rp != "" {
		fmt.Fprintf(&b, "Return-Path: %v\n", rp)
	}
	writeAddrs(&b, "To", msg.Recipients(email.To))
	writeAddrs(&b, "Cc", msg.Recipients(email.Cc))
	writeAddrs(&b, "Bcc", msg.Recipients(email.Bcc))
	fmt.Fprintf(&b, "Subject: %v\n", msg.Subject())
	b.WriteString("Body:\n")
	b.WriteString(msg.Body() + "\n")

	for _, p := range msg.Parts() {
		fmt.Fprintf(&b, "Part: %v (%v)\n", p.MIMEType, units.HumanSize(float64(len(p.Content))))
	}

	if att := msg.Attachments(); len(att) > 0 {
		names := make([]string, 0, len(att))
		for _, a := range att {
			names = append(names, fmt.Sprintf("%v (%v)", a.Filename, units.HumanSize(float64(len(a.Content)))))
		}
		fmt.Fprintf(&b, "Attachments: %v\n", strings.Join(names, ", "))
	}
	b.WriteString("========================================\n")

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := io.WriteString(t.writer, b.String()); err != nil {
		return email.Result{}, &email.TransportError{Transport: "stdout", Err: err}
	}
	return email.Result{Sent: len(env.To)}, nil
}

func writeAddrs(b *strings.Builder, field string, addrs []email.Address) {
	if len(addrs) == 0 {
		return
	}
	v := make([]string, 0, len(addrs))
	for _, a := range addrs {
		v = append(v, a.String())
	}
	fmt.Fprintf(b, "%v: %v\n", field, strings.Join(v, ", "))
}
