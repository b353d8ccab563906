package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"github.com/rs/zerolog/log"

	"github.com/ptgott/envelope/email"
)

const name = "smtp"

// Encryption selects how the connection to the relay is secured.
type Encryption string

const (
	// NoEncryption sends everything in the clear.
	NoEncryption Encryption = ""
	// SSL negotiates TLS as soon as the connection opens (SMTPS).
	SSL Encryption = "ssl"
	// TLS upgrades a plain connection with STARTTLS.
	TLS Encryption = "tls"
)

// Config holds the settings for an SMTP relay. Only Hostname is required.
type Config struct {
	Hostname   string
	Port       int // defaults to 25, or 465 for SSL
	Encryption Encryption
	// Username and Password enable authentication when both are set.
	Username string
	Password string
	// Timeout bounds the connection attempt and the whole SMTP session.
	Timeout            time.Duration
	LocalName          string // name sent with EHLO, go-smtp picks one if empty
	InsecureSkipVerify bool   // for self-signed test relays
}

// Transport delivers messages to an SMTP relay, opening one connection per
// message. Recipients the relay refuses are reported individually.
type Transport struct {
	cfg    Config
	dialer *net.Dialer
}

// New validates cfg and returns a Transport. It doesn't connect.
func New(cfg Config) (*Transport, error) {
	if cfg.Hostname == "" {
		return nil, &email.ConfigError{Driver: name, Key: "hostname", Reason: "is required"}
	}
	switch cfg.Encryption {
	case NoEncryption, SSL, TLS:
	default:
		return nil, &email.ConfigError{Driver: name, Key: "encryption", Reason: fmt.Sprintf("%q is not supported", cfg.Encryption)}
	}
	if cfg.Port == 0 {
		cfg.Port = 25
		if cfg.Encryption == SSL {
			cfg.Port = 465
		}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Transport{
		cfg:    cfg,
		dialer: &net.Dialer{Timeout: cfg.Timeout},
	}, nil
}

// Address returns the host:port of the relay.
func (t *Transport) Address() string {
	return net.JoinHostPort(t.cfg.Hostname, strconv.Itoa(t.cfg.Port))
}

// Send delivers msg. Each recipient refused at RCPT time is added to
// Result.Failed; if the relay refuses all of them, nothing is sent. Result.Sent
// is the number of recipients the relay accepted.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (email.Result, error) {
	env := msg.Envelope()

	c, err := t.connect(ctx)
	if err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: err}
	}
	defer c.Close()

	if err := c.Mail(env.From, nil); err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: fmt.Errorf("MAIL FROM rejected: %w", err)}
	}

	var res email.Result
	accepted := 0
	for _, rcpt := range env.To {
		err := c.Rcpt(rcpt)
		if err == nil {
			accepted++
			continue
		}
		if isConnError(err) {
			return email.Result{}, &email.TransportError{Transport: name, Err: err}
		}
		log.Warn().
			Str("recipient", rcpt).
			Err(err).
			Msg("relay refused recipient")
		res.Failed = append(res.Failed, rcpt)
	}

	if accepted == 0 {
		// Nothing to deliver. QUIT so the relay drops the transaction.
		_ = c.Quit()
		return res, nil
	}

	w, err := c.Data()
	if err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: fmt.Errorf("DATA rejected: %w", err)}
	}
	if _, err := msg.WriteTo(w); err != nil {
		w.Close()
		return email.Result{}, &email.TransportError{Transport: name, Err: fmt.Errorf("can't write the message: %w", err)}
	}
	if err := w.Close(); err != nil {
		return email.Result{}, &email.TransportError{Transport: name, Err: fmt.Errorf("relay rejected the message: %w", err)}
	}

	if err := c.Quit(); err != nil {
		// The message was already accepted at this point.
		log.Debug().Err(err).Msg("QUIT failed after delivery")
	}

	res.Sent = accepted
	log.Debug().
		Str("relay", t.Address()).
		Int("accepted", accepted).
		Msg("relay accepted the message")
	return res, nil
}

// connect dials the relay and runs the handshake: EHLO, STARTTLS and AUTH as
// configured.
func (t *Transport) connect(ctx context.Context) (*gosmtp.Client, error) {
	addr := t.Address()
	tlsConfig := &tls.Config{
		ServerName:         t.cfg.Hostname,
		InsecureSkipVerify: t.cfg.InsecureSkipVerify,
	}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.Encryption == SSL {
		d := &tls.Dialer{NetDialer: t.dialer, Config: tlsConfig}
		conn, err = d.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = t.dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("can't connect to %v: %w", addr, err)
	}

	deadline := time.Now().Add(t.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, err
	}

	c, err := gosmtp.NewClient(conn, t.cfg.Hostname)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unexpected greeting from %v: %w", addr, err)
	}

	if t.cfg.LocalName != "" {
		if err := c.Hello(t.cfg.LocalName); err != nil {
			c.Close()
			return nil, fmt.Errorf("EHLO rejected: %w", err)
		}
	}

	if t.cfg.Encryption == TLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			c.Close()
			return nil, fmt.Errorf("%v does not support STARTTLS", addr)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			c.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w", err)
		}
	}

	if t.cfg.Username != "" {
		ok, mechs := c.Extension("AUTH")
		if !ok {
			c.Close()
			return nil, fmt.Errorf("%v does not support authentication", addr)
		}
		if err := c.Auth(t.saslClient(mechs)); err != nil {
			c.Close()
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
	}

	return c, nil
}

// saslClient picks PLAIN when the relay offers it and LOGIN otherwise.
func (t *Transport) saslClient(mechs string) sasl.Client {
	for _, m := range strings.Fields(strings.ToUpper(mechs)) {
		if m == sasl.Plain {
			return sasl.NewPlainClient("", t.cfg.Username, t.cfg.Password)
		}
	}
	return sasl.NewLoginClient(t.cfg.Username, t.cfg.Password)
}

// isConnError reports whether err means the connection itself is gone, as
// opposed to the relay answering with an error code.
func isConnError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
