package transport

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
	"github.com/ptgott/envelope/transport/mailgun"
	"github.com/ptgott/envelope/transport/resend"
	"github.com/ptgott/envelope/transport/sendmail"
	"github.com/ptgott/envelope/transport/ses"
	"github.com/ptgott/envelope/transport/smtp"
	"github.com/ptgott/envelope/transport/stdout"
)

// BuildFunc constructs a transport from a validated Config.
type BuildFunc func(ctx context.Context, c Config) (email.Transport, error)

var builders = map[Driver]BuildFunc{
	SMTP: func(_ context.Context, c Config) (email.Transport, error) {
		return smtp.New(smtp.Config{
			Hostname:           c.Options.Hostname,
			Port:               c.Options.Port,
			Encryption:         smtp.Encryption(c.Options.Encryption),
			Username:           c.Options.Username,
			Password:           c.Options.Password,
			Timeout:            c.Options.Timeout,
			LocalName:          c.Options.LocalName,
			InsecureSkipVerify: c.Options.InsecureSkipVerify,
		})
	},
	Sendmail: func(_ context.Context, c Config) (email.Transport, error) {
		return sendmail.New(c.Options.Command)
	},
	Native: func(_ context.Context, c Config) (email.Transport, error) {
		return sendmail.NewNative(c.Options.Command, c.Options.Params)
	},
	SES: func(ctx context.Context, c Config) (email.Transport, error) {
		return ses.New(ctx, ses.Config{
			Region:          c.Options.Region,
			AccessKeyID:     c.Options.AccessKeyID,
			SecretAccessKey: c.Options.SecretAccessKey,
		})
	},
	Mailgun: func(_ context.Context, c Config) (email.Transport, error) {
		return mailgun.New(mailgun.Config{
			Domain:  c.Options.Domain,
			APIKey:  c.Options.APIKey,
			APIBase: c.Options.APIBase,
		})
	},
	Resend: func(_ context.Context, c Config) (email.Transport, error) {
		return resend.New(c.Options.APIKey)
	},
	Stdout: func(_ context.Context, _ Config) (email.Transport, error) {
		return stdout.New(os.Stdout), nil
	},
}

// New validates c and builds the transport for its driver. Every call builds
// a new transport; use a Factory to share one.
func New(ctx context.Context, c Config) (email.Transport, error) {
	return build(ctx, c, builders)
}

func build(ctx context.Context, c Config, b map[Driver]BuildFunc) (email.Transport, error) {
	checked, err := c.CheckAndSetDefaults()
	if err != nil {
		return nil, err
	}
	fn, ok := b[checked.Driver]
	if !ok {
		return nil, &email.ConfigError{Driver: string(checked.Driver), Reason: "has no builder"}
	}

	t, err := fn(ctx, checked)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("driver", string(checked.Driver)).
		Msg("built the mail transport")
	return t, nil
}

// Factory builds the transport for a Config the first time it's needed and
// hands out that same instance from then on. It's safe for concurrent use.
// The Config is copied when the Factory is created, so later changes to the
// caller's copy have no effect.
//
// A Factory is itself an email.Transport, so it can be given to
// email.New directly and the real transport is only built on the first send.
type Factory struct {
	config   Config
	builders map[Driver]BuildFunc

	mu        sync.Mutex
	transport email.Transport
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithBuilder replaces the builder used for driver d.
func WithBuilder(d Driver, fn BuildFunc) FactoryOption {
	return func(f *Factory) {
		f.builders[d] = fn
	}
}

// NewFactory returns a Factory for c. Nothing is built until the first call
// to Transport or Send.
func NewFactory(c Config, opts ...FactoryOption) *Factory {
	f := &Factory{
		config:   c,
		builders: make(map[Driver]BuildFunc, len(builders)),
	}
	for d, fn := range builders {
		f.builders[d] = fn
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Transport returns the shared transport, building it on the first call.
// Build errors aren't cached, so a later call tries again.
func (f *Factory) Transport(ctx context.Context) (email.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.transport != nil {
		return f.transport, nil
	}

	t, err := build(ctx, f.config, f.builders)
	if err != nil {
		return nil, err
	}
	f.transport = t
	return t, nil
}

// Send implements email.Transport by delegating to the shared transport.
func (f *Factory) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	t, err := f.Transport(ctx)
	if err != nil {
		return email.Result{}, err
	}
	return t.Send(ctx, msg)
}
