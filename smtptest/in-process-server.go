package smtptest

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
)

// Message is one email as the server received it: the envelope and the raw
// RFC 5322 data.
type Message struct {
	created time.Time
	From    string
	To      []string
	Body    string
}

// Backend implements smtp.Backend. It's a thin authentication wrapper
// for an InMemoryEmailStore.
type Backend struct {
	*InMemoryEmailStore
	requireAuth bool
}

// Login implements smtp.Backend. Any username/password is fine, since we
// don't want to couple this with specific test configurations.
func (be *Backend) Login(_ *smtp.ConnectionState, username string, password string) (smtp.Session, error) {
	if username != "" && password != "" {
		return be.InMemoryEmailStore.newSession(), nil
	}
	return nil, errors.New("no username or password provided")
}

// AnonymousLogin implements smtp.Backend. Only allowed when the server
// doesn't require AUTH.
func (be *Backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	if be.requireAuth {
		return nil, errors.New("authentication required")
	}
	return be.InMemoryEmailStore.newSession(), nil
}

// InMemoryEmailStore retains emails in memory for comparison against
// a test's expected output.
// Designed to be goroutine safe since we don't know how many goroutines will
// be hitting the server at once.
type InMemoryEmailStore struct {
	mu       *sync.Mutex
	messages []Message
	rejected map[string]struct{}
}

// session implements smtp.Session for a single connection, collecting the
// envelope until DATA completes.
type session struct {
	store *InMemoryEmailStore
	from  string
	to    []string
}

func (es *InMemoryEmailStore) newSession() *session {
	return &session{store: es}
}

// Reset implements smtp.Session.
func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

// Logout implements smtp.Session. No-op here.
func (s *session) Logout() error { return nil }

// Mail implements smtp.Session.
func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

// Rcpt implements smtp.Session. Addresses passed to Reject are refused.
func (s *session) Rcpt(to string) error {
	if s.store.isRejected(to) {
		return fmt.Errorf("mailbox %v unavailable", to)
	}
	s.to = append(s.to, to)
	return nil
}

// Data implements smtp.Session. Stores the email data in memory for retrieval
// at the end of the test.
func (s *session) Data(r io.Reader) error {
	// doubtful we'll get an email this big, but we need a limit
	var maxEmailSize int64 = 100 * units.MiB
	buf, err := io.ReadAll(io.LimitReader(r, maxEmailSize))
	if err != nil {
		return err
	}

	str := &strings.Builder{}
	if _, err := str.Write(buf); err != nil {
		return err
	}
	s.store.saveEmail(Message{
		From: s.from,
		To:   append([]string(nil), s.to...),
		Body: str.String(),
	})
	return nil
}

// InProcessServer is an SMTPServer that runs in the same process as the
// test suite, letting us inspect sent emails. You must initialize this
// via NewInProcessServer
type InProcessServer struct {
	*smtp.Server
	// We keep a handle on the store so tests can read what the
	// *smtp.Server received.
	*InMemoryEmailStore
	listener net.Listener
}

// Options configures an InProcessServer.
type Options struct {
	// Paths to a TLS key and cert. When set, the server offers STARTTLS.
	// The cert must be a root cert.
	KeyPath  string
	CertPath string
	// RequireAuth makes the server refuse mail from clients that haven't
	// authenticated.
	RequireAuth bool
}

// NewInProcessServer creates an InProcessServer listening on a free
// loopback port, including configuring its SMTP server to store incoming
// messages in memory.
func NewInProcessServer(o Options) (*InProcessServer, error) {
	is := &InMemoryEmailStore{
		mu:       &sync.Mutex{},
		messages: []Message{},
		rejected: map[string]struct{}{},
	}

	srv := smtp.NewServer(&Backend{
		InMemoryEmailStore: is,
		requireAuth:        o.RequireAuth,
	})

	srv.Domain = "localhost"
	srv.AuthDisabled = false
	// Plain-text AUTH is fine on loopback, and lets tests skip TLS.
	srv.AllowInsecureAuth = true
	// Strict is undocumented, but it looks like it enforces <address> syntax
	// in messages:
	// https://github.com/emersion/go-smtp/blob/f92bf7f1a25777bcdaa28a142b1cd1a54b74c8f4/conn.go#L321-L325
	srv.Strict = true

	if o.KeyPath != "" || o.CertPath != "" {
		cert, err := tls.LoadX509KeyPair(o.CertPath, o.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("can't load the test TLS key pair: %v", err)
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
		}
	}

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("can't listen for test SMTP connections: %v", err)
	}
	srv.Addr = l.Addr().String()

	return &InProcessServer{
		Server:             srv,
		InMemoryEmailStore: is,
		listener:           l,
	}, nil
}

// saveEmail stores the email in memory along with a timestamp created
// just prior to saving
func (es *InMemoryEmailStore) saveEmail(m Message) {
	es.mu.Lock()
	defer es.mu.Unlock()

	m.created = time.Now()
	es.messages = append(es.messages, m)
}

// Reject makes the server refuse the given recipient addresses at RCPT time.
func (es *InMemoryEmailStore) Reject(addrs ...string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, a := range addrs {
		es.rejected[a] = struct{}{}
	}
}

func (es *InMemoryEmailStore) isRejected(addr string) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	_, ok := es.rejected[addr]
	return ok
}

// Start starts the test server. Blocking.
func (is *InProcessServer) Start() error {
	// Not using ListenAndServeTLS--the client should upgrade the connection
	// to TLS
	return is.Server.Serve(is.listener)
}

// Close shuts down the test server daemon. You must initialize a new
// InProcessServer instead of restarting this one.
func (is *InProcessServer) Close() {
	is.Server.Close()
}

// RetrieveEmails returns a slice of all message bodies (as strings)
// sent after epoch nanoseconds t
// Satisfies smtptest.Server but isn't expected to return an error.
func (es *InMemoryEmailStore) RetrieveEmails(t int64) ([]string, error) {
	es.mu.Lock()
	defer es.mu.Unlock()

	r := make([]string, 0, len(es.messages))
	for _, m := range es.messages {
		if m.created.UnixNano() >= t {
			r = append(r, m.Body)
		}
	}
	return r, nil
}

// Messages returns every message received so far, envelopes included.
func (es *InMemoryEmailStore) Messages() []Message {
	es.mu.Lock()
	defer es.mu.Unlock()
	return append([]Message(nil), es.messages...)
}

// Address returns the host:port of the test SMTP server.
func (is *InProcessServer) Address() string {
	return is.listener.Addr().String()
}
