package sendmail

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
)

// Native hands messages to the operating system's mail facility, the way a
// mail() call would: the system sendmail in -t mode reads the recipients
// from the headers, and params are appended to its command line.
type Native struct {
	args   []string
	params string
}

// NewNative returns a Native transport. command defaults to
// DefaultNativeCommand and params to DefaultParams.
func NewNative(command, params string) (*Native, error) {
	if command == "" {
		command = DefaultNativeCommand
	}
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, &email.ConfigError{Driver: "native", Key: "command", Reason: "is empty"}
	}
	if params == "" {
		params = DefaultParams
	}
	return &Native{args: args, params: params}, nil
}

// Send pipes msg to the mail facility. Bcc recipients are written as a
// header since sendmail -t reads them from there and strips the header
// before delivery.
func (n *Native) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	env := msg.Envelope()

	args := append([]string(nil), n.args[1:]...)
	args = append(args, n.extraParams(env.From)...)

	var body bytes.Buffer
	if bcc := msg.Recipients(email.Bcc); len(bcc) > 0 {
		v := make([]string, 0, len(bcc))
		for _, a := range bcc {
			// The address is written into a header by hand, so it must not
			// be able to end the line.
			if err := email.CheckAddress(a.Address); err != nil {
				return email.Result{}, &email.TransportError{Transport: "native", Err: err}
			}
			v = append(v, a.Address)
		}
		fmt.Fprintf(&body, "Bcc: %v\r\n", strings.Join(v, ", "))
	}
	if _, err := msg.WriteTo(&body); err != nil {
		return email.Result{}, &email.TransportError{Transport: "native", Err: fmt.Errorf("can't render the message: %w", err)}
	}

	if err := run(ctx, n.args[0], args, &body); err != nil {
		return email.Result{}, &email.TransportError{Transport: "native", Err: err}
	}

	log.Debug().
		Str("command", n.args[0]).
		Int("recipients", len(env.To)).
		Msg("local mail facility accepted the message")
	return email.Result{Sent: len(env.To)}, nil
}

// extraParams expands params for a message with reverse path from. A
// parameter containing %s is dropped when there is no reverse path.
func (n *Native) extraParams(from string) []string {
	var out []string
	for _, p := range strings.Fields(n.params) {
		if strings.Contains(p, "%s") {
			if from == "" {
				continue
			}
			p = strings.ReplaceAll(p, "%s", from)
		}
		out = append(out, p)
	}
	return out
}
