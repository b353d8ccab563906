// Package memory implements a transport that keeps delivered messages in
// memory, for tests and for callers that want to inspect what would have
// been sent.
package memory

import (
	"context"
	"sync"

	"github.com/ptgott/envelope/email"
)

// Delivery is one message as the transport received it.
type Delivery struct {
	Message  *email.Message // a copy, safe to inspect
	Envelope email.Envelope
}

// Transport records every message it's given. Addresses passed to Reject
// are reported as failed and everything else as delivered. Designed to be
// goroutine safe since batch sends may run concurrently.
type Transport struct {
	mu         sync.Mutex
	deliveries []Delivery
	attempts   []string
	rejected   map[string]struct{}
	err        error
}

// New returns an empty Transport.
func New() *Transport {
	return &Transport{rejected: make(map[string]struct{})}
}

// Reject makes the transport refuse the given addresses.
func (t *Transport) Reject(addrs ...string) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range addrs {
		t.rejected[a] = struct{}{}
	}
	return t
}

// FailWith makes every following Send fail with err. Pass nil to undo.
func (t *Transport) FailWith(err error) *Transport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	return t
}

// Send implements email.Transport.
func (t *Transport) Send(_ context.Context, msg *email.Message) (email.Result, error) {
	env := msg.Envelope()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.attempts = append(t.attempts, env.To...)
	if t.err != nil {
		return email.Result{}, &email.TransportError{Transport: "memory", Err: t.err}
	}

	var res email.Result
	for _, a := range env.To {
		if _, ok := t.rejected[a]; ok {
			res.Failed = append(res.Failed, a)
			continue
		}
		res.Sent++
	}
	if res.Sent > 0 {
		t.deliveries = append(t.deliveries, Delivery{
			Message:  msg.Clone(),
			Envelope: env,
		})
	}
	return res, nil
}

// Deliveries returns the messages accepted so far, in the order received.
func (t *Transport) Deliveries() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Delivery(nil), t.deliveries...)
}

// Attempts returns every recipient address a send was attempted for,
// including rejected ones.
func (t *Transport) Attempts() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.attempts...)
}
