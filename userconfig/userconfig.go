package userconfig

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v2"

	"github.com/ptgott/envelope/email"
	"github.com/ptgott/envelope/transport"
)

// Batch sends are capped so a typo in the config can't open hundreds of
// connections to a mail server at once.
const maxConcurrency = 64

// Environment variables that override secrets in the config file, so the
// file can be checked in without them.
const (
	PasswordEnv        = "EMAIL_PASSWORD"
	APIKeyEnv          = "EMAIL_API_KEY"
	SecretAccessKeyEnv = "EMAIL_SECRET_ACCESS_KEY"
)

// Meta represents all current config options that the application can use,
// i.e., after validation and parsing
type Meta struct {
	Email    transport.Config `yaml:"email"`
	Defaults Defaults         `yaml:"defaults"`
	Batch    Batch            `yaml:"batch"`
}

// Defaults are applied to every message that doesn't set the same thing
// itself.
type Defaults struct {
	From       email.AddressList `yaml:"from"`
	ReplyTo    email.AddressList `yaml:"reply_to"`
	Sender     string            `yaml:"sender"`
	ReturnPath string            `yaml:"return_path"`
}

// Batch contains config options for sending one message to many
// recipients.
type Batch struct {
	// Number of copies sent at once. 0 and 1 both mean one at a time.
	Concurrency int `yaml:"concurrency"`
}

// CheckAndSetDefaults validates d and either returns a copy of d with default
// settings applied or returns an error due to an invalid configuration
func (d *Defaults) CheckAndSetDefaults() (Defaults, error) {
	for _, l := range []email.AddressList{d.From, d.ReplyTo} {
		for _, a := range l {
			if err := checkAddress(a.Address); err != nil {
				return Defaults{}, err
			}
		}
	}
	if d.Sender != "" {
		if err := checkAddress(d.Sender); err != nil {
			return Defaults{}, err
		}
	}
	if d.ReturnPath != "" {
		if err := checkAddress(d.ReturnPath); err != nil {
			return Defaults{}, err
		}
	}
	if len(d.From) > 1 && d.Sender == "" {
		return Defaults{}, errors.New(
			"the defaults include more than one \"from\" address, so they must also include a \"sender\"",
		)
	}

	return Defaults{
		From:       append(email.AddressList(nil), d.From...),
		ReplyTo:    append(email.AddressList(nil), d.ReplyTo...),
		Sender:     d.Sender,
		ReturnPath: d.ReturnPath,
	}, nil
}

// Apply sets the reply-to addresses, sender and return path on msg unless
// msg already has them. Default "from" addresses are applied by the Mailer
// (see email.WithDefaultFrom).
func (d Defaults) Apply(msg *email.Message) *email.Message {
	if len(msg.Senders(email.ReplyTo)) == 0 {
		msg.AddSenders(d.ReplyTo, email.ReplyTo)
	}
	if _, ok := msg.Sender(); !ok && d.Sender != "" {
		msg.SetSender(d.Sender, "")
	}
	if msg.ReturnPath() == "" && d.ReturnPath != "" {
		msg.SetReturnPath(d.ReturnPath)
	}
	return msg
}

func checkAddress(a string) error {
	if err := email.CheckAddress(a); err != nil {
		return fmt.Errorf("defaults: %v", err)
	}
	return nil
}

// CheckAndSetDefaults validates b and either returns a copy of b with default
// settings applied or returns an error due to an invalid configuration
func (b *Batch) CheckAndSetDefaults() (Batch, error) {
	if b.Concurrency < 0 {
		return Batch{}, errors.New("the batch concurrency can't be negative")
	}
	if b.Concurrency > maxConcurrency {
		return Batch{}, fmt.Errorf("the batch concurrency can be at most %v", maxConcurrency)
	}
	if b.Concurrency == 0 {
		return Batch{Concurrency: 1}, nil
	}
	return *b, nil
}

// CheckAndSetDefaults validates m and either returns a copy of m with default
// settings applied or returns an error due to an invalid configuration
func (m *Meta) CheckAndSetDefaults() (Meta, error) {
	c := Meta{}

	e, err := m.Email.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Email = e

	d, err := m.Defaults.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Defaults = d

	b, err := m.Batch.CheckAndSetDefaults()
	if err != nil {
		return Meta{}, err
	}
	c.Batch = b

	return c, nil
}

// Parse generates usable configurations from possibly arbitrary user input.
// An error indicates a problem with parsing. The Reader r can be either JSON
// or YAML. Secrets found in the environment replace the ones in r.
func Parse(r io.Reader) (*Meta, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file: %v", err)
	}

	var m Meta
	if err := yaml.Unmarshal(b, &m); err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}

	// An empty "email" section is fine and selects the native driver, so
	// look for the key itself rather than a non-zero value.
	var sections map[string]interface{}
	if err := yaml.Unmarshal(b, &sections); err != nil {
		return &Meta{}, fmt.Errorf("can't read the config file as YAML: %v", err)
	}
	if _, ok := sections["email"]; !ok {
		return &Meta{}, errors.New("must include an \"email\" section")
	}

	overrides := []struct {
		env   string
		field *string
	}{
		{PasswordEnv, &m.Email.Options.Password},
		{APIKeyEnv, &m.Email.Options.APIKey},
		{SecretAccessKeyEnv, &m.Email.Options.SecretAccessKey},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok {
			*o.field = v
			log.Debug().
				Str("variable", o.env).
				Msg("using a secret from the environment")
		}
	}

	return &m, nil
}
