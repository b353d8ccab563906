package sendmail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
)

const (
	// DefaultCommand is the sendmail invocation used when none is configured.
	// Recipients are appended as arguments, so it must not include -t.
	DefaultCommand = "/usr/sbin/sendmail -i"

	// DefaultNativeCommand is what the local mail facility runs. Recipients
	// are read from the message headers.
	DefaultNativeCommand = "/usr/sbin/sendmail -t -i"

	// DefaultParams sets the envelope sender. %s is replaced with the
	// reverse path of each message.
	DefaultParams = "-f%s"
)

// Transport pipes messages into a local sendmail binary, passing the
// envelope on the command line. sendmail either accepts the message for
// every recipient or fails, so delivery is all or nothing.
type Transport struct {
	name string
	args []string
}

// New returns a Transport that runs command, or DefaultCommand if command is
// empty.
func New(command string) (*Transport, error) {
	if command == "" {
		command = DefaultCommand
	}
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, &email.ConfigError{Driver: "sendmail", Key: "command", Reason: "is empty"}
	}
	return &Transport{name: "sendmail", args: args}, nil
}

// Send runs sendmail once with the message on stdin:
//
//	<command> -f <reverse path> -- <recipients...>
func (t *Transport) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	env := msg.Envelope()

	args := append([]string(nil), t.args[1:]...)
	if env.From != "" {
		args = append(args, "-f", env.From)
	}
	args = append(args, "--")
	args = append(args, env.To...)

	var body bytes.Buffer
	if _, err := msg.WriteTo(&body); err != nil {
		return email.Result{}, &email.TransportError{Transport: t.name, Err: fmt.Errorf("can't render the message: %w", err)}
	}

	if err := run(ctx, t.args[0], args, &body); err != nil {
		return email.Result{}, &email.TransportError{Transport: t.name, Err: err}
	}

	log.Debug().
		Str("command", t.args[0]).
		Int("recipients", len(env.To)).
		Msg("sendmail accepted the message")
	return email.Result{Sent: len(env.To)}, nil
}

// run executes name with args, feeding it stdin. Whatever the command writes
// to stderr is included in the error.
func run(ctx context.Context, name string, args []string, stdin io.Reader) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%v failed: %w: %v", name, err, msg)
		}
		return fmt.Errorf("%v failed: %w", name, err)
	}
	return nil
}
