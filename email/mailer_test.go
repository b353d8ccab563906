package email_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptgott/envelope/email"
	"github.com/ptgott/envelope/transport/memory"
)

// transportFunc lets a test decide what every send returns.
type transportFunc func(context.Context, *email.Message) (email.Result, error)

func (f transportFunc) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	return f(ctx, msg)
}

func TestSendRoundTrip(t *testing.T) {
	mt := memory.New()
	mr := email.New(mt)

	msg := email.Compose("Subject", "Body", "").
		From("me@example.com", "Me").
		To("a@example.com", "").
		Cc("b@example.com", "").
		Bcc("c@example.com", "")

	res, err := mr.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.Empty(t, res.Failed)
	assert.NoError(t, res.Err())

	d := mt.Deliveries()
	require.Len(t, d, 1)
	assert.Equal(t, "me@example.com", d[0].Envelope.From)
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, d[0].Envelope.To)
	assert.Equal(t, "Subject", d[0].Message.Subject())
	assert.Equal(t, "Body", d[0].Message.Body())
}

func TestSendValidates(t *testing.T) {
	testCases := []struct {
		description string
		msg         *email.Message
		expected    error
	}{
		{
			description: "no recipients",
			msg:         email.Compose("S", "B", "").From("me@example.com", ""),
			expected:    email.ErrNoRecipients,
		},
		{
			description: "two from addresses without a sender",
			msg: email.Compose("S", "B", "").
				To("a@example.com", "").
				From("me@example.com", "").
				From("you@example.com", ""),
			expected: email.ErrSenderRequired,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			mt := memory.New()
			_, err := email.New(mt).Send(context.Background(), tc.msg)
			assert.True(t, errors.Is(err, tc.expected), "got %v", err)
			assert.Empty(t, mt.Attempts(), "nothing should reach the transport")
		})
	}
}

func TestSendRejections(t *testing.T) {
	mt := memory.New().Reject("b@example.com")
	msg := email.Compose("S", "B", "").
		To("a@example.com", "").
		To("b@example.com", "")

	res, err := email.New(mt).Send(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"b@example.com"}, res.Failed)

	var pe *email.PartialDeliveryError
	require.True(t, errors.As(res.Err(), &pe))
	assert.Equal(t, []string{"b@example.com"}, pe.Failed)
}

func TestSendTransportFailure(t *testing.T) {
	boom := errors.New("connection refused")
	mr := email.New(transportFunc(func(context.Context, *email.Message) (email.Result, error) {
		return email.Result{}, boom
	}))

	msg := email.Compose("S", "B", "").To("a@example.com", "").Cc("b@example.com", "")
	res, err := mr.Send(context.Background(), msg)

	var te *email.TransportError
	require.True(t, errors.As(err, &te))
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, res.Failed)
	assert.Equal(t, 0, res.Sent)
}

func TestSendConfigErrorPassesThrough(t *testing.T) {
	ce := &email.ConfigError{Driver: "smtp", Key: "hostname", Reason: "is required"}
	mr := email.New(transportFunc(func(context.Context, *email.Message) (email.Result, error) {
		return email.Result{}, ce
	}))

	res, err := mr.Send(context.Background(), email.Compose("S", "B", "").To("a@example.com", ""))
	var got *email.ConfigError
	require.True(t, errors.As(err, &got))
	assert.Equal(t, ce, got)
	assert.Empty(t, res.Failed)
}

func TestSendDefaultFrom(t *testing.T) {
	mt := memory.New()
	mr := email.New(mt, email.WithDefaultFrom(email.AddressList{{Address: "default@example.com", Name: "Default"}}))

	msg := email.Compose("S", "B", "").To("a@example.com", "")
	_, err := mr.Send(context.Background(), msg)
	require.NoError(t, err)

	assert.Empty(t, msg.Senders(email.From), "the caller's message must not change")
	d := mt.Deliveries()
	require.Len(t, d, 1)
	assert.Equal(t, []email.Address{{Address: "default@example.com", Name: "Default"}}, d[0].Message.Senders(email.From))

	// explicit from addresses win
	msg = email.Compose("S", "B", "").To("a@example.com", "").From("me@example.com", "")
	_, err = mr.Send(context.Background(), msg)
	require.NoError(t, err)
	d = mt.Deliveries()
	require.Len(t, d, 2)
	assert.Equal(t, []email.Address{{Address: "me@example.com"}}, d[1].Message.Senders(email.From))
}

func TestSendTwice(t *testing.T) {
	mt := memory.New()
	mr := email.New(mt)
	msg := email.Compose("S", "B", "").To("a@example.com", "")

	for i := 0; i < 2; i++ {
		_, err := mr.Send(context.Background(), msg)
		require.NoError(t, err)
	}
	assert.Len(t, mt.Deliveries(), 2)
}

func TestSendBatch(t *testing.T) {
	testCases := []struct {
		description string
		concurrency int
	}{
		{description: "sequential", concurrency: 1},
		{description: "concurrent", concurrency: 4},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			mt := memory.New().Reject("r3@example.com")
			mr := email.New(mt, email.WithConcurrency(tc.concurrency))

			tmpl := email.Compose("Batch", "B", "").
				From("me@example.com", "").
				To("original@example.com", "").
				Cc("cc@example.com", "").
				Bcc("bcc@example.com", "")

			var rcpts email.AddressList
			for i := 0; i < 10; i++ {
				rcpts = append(rcpts, email.Address{Address: fmt.Sprintf("r%v@example.com", i)})
			}

			res, err := mr.SendBatch(context.Background(), tmpl, rcpts)
			require.NoError(t, err)
			assert.Equal(t, 9, res.Sent)
			assert.Equal(t, []string{"r3@example.com"}, res.Failed)

			d := mt.Deliveries()
			require.Len(t, d, 9)
			for _, del := range d {
				require.Len(t, del.Envelope.To, 1)
				assert.Empty(t, del.Message.Recipients(email.Cc))
				assert.Empty(t, del.Message.Recipients(email.Bcc))
				assert.Equal(t, "Batch", del.Message.Subject())
			}

			assert.Equal(t, []email.Address{{Address: "original@example.com"}}, tmpl.Recipients(email.To))
			assert.Equal(t, []email.Address{{Address: "cc@example.com"}}, tmpl.Recipients(email.Cc))
		})
	}
}

func TestSendBatchContinuesAfterErrors(t *testing.T) {
	var calls int32
	mr := email.New(transportFunc(func(_ context.Context, msg *email.Message) (email.Result, error) {
		atomic.AddInt32(&calls, 1)
		to := msg.Envelope().To[0]
		if to == "b@example.com" {
			return email.Result{}, errors.New("timeout")
		}
		return email.Result{Sent: 1}, nil
	}), email.WithConcurrency(2))

	res, err := mr.SendBatch(
		context.Background(),
		email.Compose("S", "B", ""),
		email.AddressList{{Address: "a@example.com"}, {Address: "b@example.com"}, {Address: "c@example.com"}},
	)

	var te *email.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []string{"b@example.com"}, res.Failed)
}

func TestSendBatchStopsOnConfigError(t *testing.T) {
	var calls int32
	mr := email.New(transportFunc(func(context.Context, *email.Message) (email.Result, error) {
		atomic.AddInt32(&calls, 1)
		return email.Result{}, &email.ConfigError{Driver: "mailgun", Key: "domain", Reason: "is required"}
	}))

	_, err := mr.SendBatch(
		context.Background(),
		email.Compose("S", "B", ""),
		email.AddressList{{Address: "a@example.com"}, {Address: "b@example.com"}},
	)

	var ce *email.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSendBatchChecks(t *testing.T) {
	mt := memory.New()
	mr := email.New(mt)

	_, err := mr.SendBatch(context.Background(), email.Compose("S", "B", ""), nil)
	assert.True(t, errors.Is(err, email.ErrNoRecipients))

	_, err = mr.SendBatch(
		context.Background(),
		email.Compose("S", "B", "").From("a@example.com", "").From("b@example.com", ""),
		email.AddressList{{Address: "c@example.com"}},
	)
	assert.True(t, errors.Is(err, email.ErrSenderRequired))
	assert.Empty(t, mt.Attempts())
}

func TestSendSingleRecipientRoundTrip(t *testing.T) {
	mt := memory.New()
	msg := email.Compose("Welcome", "Thanks for signing up", "").
		From("me@example.com", "").
		To("jane@example.com", "Jane")

	_, err := email.New(mt).Send(context.Background(), msg)
	require.NoError(t, err)

	d := mt.Deliveries()
	require.Len(t, d, 1)
	got := d[0].Message
	assert.Equal(t, "Welcome", got.Subject())
	assert.Equal(t, "Thanks for signing up", got.Body())
	assert.Equal(t, []email.Address{{Address: "jane@example.com", Name: "Jane"}}, got.Recipients(email.To))
	assert.Empty(t, got.Recipients(email.Cc))
	assert.Empty(t, got.Recipients(email.Bcc))
}

func TestSendBatchConfigErrorKeepsFinishedSends(t *testing.T) {
	mr := email.New(transportFunc(func(_ context.Context, msg *email.Message) (email.Result, error) {
		if msg.Envelope().To[0] == "c@example.com" {
			return email.Result{}, &email.ConfigError{Driver: "smtp", Key: "host", Reason: "is required"}
		}
		return email.Result{Sent: 1}, nil
	}))

	res, err := mr.SendBatch(
		context.Background(),
		email.Compose("S", "B", ""),
		email.AddressList{
			{Address: "a@example.com"},
			{Address: "b@example.com"},
			{Address: "c@example.com"},
			{Address: "d@example.com"},
		},
	)

	var ce *email.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 2, res.Sent)
	assert.Empty(t, res.Failed)
}

func TestSendBatchInvalidRecipient(t *testing.T) {
	mt := memory.New()
	bad := "b@example.com\r\nBcc: attacker@evil.example"

	res, err := email.New(mt).SendBatch(
		context.Background(),
		email.Compose("S", "B", "").From("me@example.com", ""),
		email.AddressList{{Address: "a@example.com"}, {Address: bad}, {Address: "c@example.com"}},
	)

	var ie *email.InvalidAddressError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, bad, ie.Address)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []string{bad}, res.Failed)
	assert.Equal(t, []string{"a@example.com", "c@example.com"}, mt.Attempts())
}

func TestSendRejectsHeaderInjection(t *testing.T) {
	mt := memory.New()
	msg := email.Compose("S", "B", "").
		From("me@example.com", "").
		To("you@example.com", "").
		Bcc("b@example.com\r\nTo: attacker@evil.example", "")

	_, err := email.New(mt).Send(context.Background(), msg)

	var ie *email.InvalidAddressError
	require.True(t, errors.As(err, &ie))
	assert.Empty(t, mt.Attempts())
}
