package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Transport delivers a rendered message. Implementations report recipients
// they could not deliver to in Result.Failed and return an error only when
// the whole delivery failed. Transports that can't tell recipients apart
// succeed or fail for all of them at once.
type Transport interface {
	Send(ctx context.Context, msg *Message) (Result, error)
}

// Result is the outcome of a send or a batch send.
type Result struct {
	Sent   int      // number of successful deliveries
	Failed []string // undeliverable addresses, in the order they were tried
}

// Err returns a *PartialDeliveryError if any recipient failed, or nil.
func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	return &PartialDeliveryError{Failed: append([]string(nil), r.Failed...)}
}

func (r *Result) add(o Result) {
	r.Sent += o.Sent
	r.Failed = append(r.Failed, o.Failed...)
}

// Mailer submits messages to a Transport. The Transport is shared by every
// message the Mailer sends.
type Mailer struct {
	transport   Transport
	concurrency int
	defaultFrom AddressList
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithConcurrency sets how many batch sends may run at once. Values below 2
// send one recipient at a time.
func WithConcurrency(n int) Option {
	return func(m *Mailer) {
		m.concurrency = n
	}
}

// WithDefaultFrom sets the "from" addresses used for messages that don't
// have any.
func WithDefaultFrom(from AddressList) Option {
	return func(m *Mailer) {
		m.defaultFrom = append(AddressList(nil), from...)
	}
}

// New returns a Mailer that delivers through t.
func New(t Transport, opts ...Option) *Mailer {
	m := &Mailer{
		transport:   t,
		concurrency: 1,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Send validates msg and submits it to the transport exactly once.
// Recipients the transport rejected are listed in the Result without an
// error. If the transport fails outright, the error is a *TransportError (or
// a *ConfigError if the transport could not be built) and every recipient is
// reported as failed. msg is not modified.
func (mr *Mailer) Send(ctx context.Context, msg *Message) (Result, error) {
	msg = mr.withDefaults(msg)
	if err := msg.Validate(); err != nil {
		return Result{}, err
	}
	return mr.deliver(ctx, msg)
}

// SendBatch sends one copy of msg to each entry of recipients, in order. Each
// copy has its to, cc and bcc lists replaced by that single recipient; msg
// itself is not modified. A failure for one recipient doesn't stop the
// others. The Result sums every delivery, and the error joins the transport
// errors met along the way (recipient rejections aren't errors). Invalid
// recipient addresses are reported as failed with an *InvalidAddressError. A
// *ConfigError stops the batch; the Result then covers the sends that had
// already finished.
func (mr *Mailer) SendBatch(ctx context.Context, msg *Message, recipients AddressList) (Result, error) {
	if len(recipients) == 0 {
		return Result{}, ErrNoRecipients
	}
	tmpl := mr.withDefaults(msg)
	if tmpl.from.len() > 1 && tmpl.sender == nil {
		return Result{}, ErrSenderRequired
	}

	type outcome struct {
		res Result
		err error
	}
	// Each send writes only to its own slot, so the outcomes can be merged
	// in recipient order no matter how the sends were scheduled.
	outcomes := make([]outcome, len(recipients))

	send := func(ctx context.Context, i int) error {
		c := tmpl.Clone()
		c.setOnlyRecipient(recipients[i])
		if err := c.Validate(); err != nil {
			outcomes[i] = outcome{res: Result{Failed: []string{recipients[i].Address}}, err: err}
			return nil
		}
		res, err := mr.deliver(ctx, c)
		outcomes[i] = outcome{res: res, err: err}

		var ce *ConfigError
		if errors.As(err, &ce) {
			return err
		}
		return nil
	}

	var aborted error
	if mr.concurrency < 2 {
		for i := range recipients {
			if err := send(ctx, i); err != nil {
				aborted = err
				break
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(mr.concurrency)
		for i := range recipients {
			g.Go(func() error {
				return send(gctx, i)
			})
		}
		aborted = g.Wait()
	}

	var total Result
	var errs []error
	for _, o := range outcomes {
		total.add(o.res)
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}
	if aborted != nil {
		// Sends that finished before the abort still count.
		log.Error().
			Err(aborted).
			Int("sent", total.Sent).
			Msg("batch send stopped")
		return total, aborted
	}

	log.Info().
		Int("recipients", len(recipients)).
		Int("sent", total.Sent).
		Int("failed", len(total.Failed)).
		Msg("finished batch send")

	return total, errors.Join(errs...)
}

// deliver hands msg to the transport and normalizes the outcome.
func (mr *Mailer) deliver(ctx context.Context, msg *Message) (Result, error) {
	env := msg.Envelope()

	res, err := mr.transport.Send(ctx, msg)
	if err != nil {
		var ce *ConfigError
		if errors.As(err, &ce) {
			return Result{}, err
		}
		var te *TransportError
		if !errors.As(err, &te) {
			err = &TransportError{Transport: fmt.Sprintf("%T", mr.transport), Err: err}
		}
		log.Error().
			Err(err).
			Strs("recipients", env.To).
			Msg("could not send the message")
		return Result{Failed: append([]string(nil), env.To...)}, err
	}

	if len(res.Failed) > 0 {
		log.Warn().
			Strs("failed", res.Failed).
			Int("sent", res.Sent).
			Msg("some recipients were rejected")
	} else {
		log.Debug().
			Int("sent", res.Sent).
			Str("subject", msg.Subject()).
			Msg("sent message")
	}
	return res, nil
}

// withDefaults returns msg, or a copy of it with the default "from"
// addresses applied if it has none.
func (mr *Mailer) withDefaults(msg *Message) *Message {
	if len(mr.defaultFrom) == 0 || msg.from.len() > 0 {
		return msg
	}
	c := msg.Clone()
	c.AddSenders(mr.defaultFrom, From)
	return c
}
