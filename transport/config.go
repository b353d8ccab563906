package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/ptgott/envelope/email"
)

// Driver names a delivery strategy.
type Driver string

const (
	SMTP     Driver = "smtp"
	Sendmail Driver = "sendmail"
	Native   Driver = "native"
	SES      Driver = "ses"
	Mailgun  Driver = "mailgun"
	Resend   Driver = "resend"
	Stdout   Driver = "stdout"
)

// defaults applied by CheckAndSetDefaults
const (
	defaultSMTPPort    = 25
	defaultSMTPSSLPort = 465
	defaultTimeout     = 30 * time.Second
)

// ParseDriver returns the driver named by s, ignoring case. Anything it
// doesn't recognize, including the empty string, is Native.
func ParseDriver(s string) Driver {
	switch d := Driver(strings.ToLower(strings.TrimSpace(s))); d {
	case SMTP, Sendmail, SES, Mailgun, Resend, Stdout:
		return d
	default:
		return Native
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Driver) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return fmt.Errorf("the driver must be a string: %v", err)
	}
	*d = ParseDriver(s)
	return nil
}

// Config selects and configures a transport. The zero value is the native
// driver with no options.
type Config struct {
	Driver  Driver  `yaml:"driver"`
	Options Options `yaml:"options"`
}

// Options holds driver-specific settings. Each driver reads only the fields
// it needs and leaves the rest alone.
type Options struct {
	// smtp
	Hostname           string        `yaml:"hostname"`
	Port               int           `yaml:"port"`
	Encryption         string        `yaml:"encryption"` // "ssl", "tls" or empty
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	Timeout            time.Duration `yaml:"-"`
	LocalName          string        `yaml:"local_name"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`

	// sendmail and native
	Command string `yaml:"command"`
	Params  string `yaml:"params"`

	// hosted APIs
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Domain          string `yaml:"domain"`
	APIKey          string `yaml:"api_key"`
	APIBase         string `yaml:"api_base"`
}

// UnmarshalYAML implements yaml.Unmarshaler. The timeout can be written as a
// duration string ("10s") or as a number of seconds.
func (o *Options) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Options
	var p plain
	if err := unmarshal(&p); err != nil {
		return fmt.Errorf("can't parse the transport options: %v", err)
	}

	var t struct {
		Timeout interface{} `yaml:"timeout"`
	}
	if err := unmarshal(&t); err != nil {
		return fmt.Errorf("can't parse the transport options: %v", err)
	}

	switch v := t.Timeout.(type) {
	case nil:
	case int:
		p.Timeout = time.Duration(v) * time.Second
	case float64:
		p.Timeout = time.Duration(v * float64(time.Second))
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("can't parse the timeout as a duration: %v", err)
		}
		p.Timeout = d
	default:
		return fmt.Errorf("can't parse the timeout: unexpected type %T", v)
	}

	*o = Options(p)
	return nil
}

// CheckAndSetDefaults validates c and either returns a copy of c with default
// settings applied or returns an error due to an invalid configuration.
func (c *Config) CheckAndSetDefaults() (Config, error) {
	n := *c
	n.Driver = ParseDriver(string(c.Driver))

	switch n.Driver {
	case SMTP:
		if n.Options.Hostname == "" {
			return Config{}, &email.ConfigError{Driver: string(SMTP), Key: "hostname", Reason: "is required"}
		}
		enc := strings.ToLower(n.Options.Encryption)
		switch enc {
		case "", "ssl", "tls":
		default:
			return Config{}, &email.ConfigError{
				Driver: string(SMTP),
				Key:    "encryption",
				Reason: fmt.Sprintf("must be \"ssl\", \"tls\" or empty, not %q", n.Options.Encryption),
			}
		}
		n.Options.Encryption = enc
		if n.Options.Port == 0 {
			n.Options.Port = defaultSMTPPort
			if enc == "ssl" {
				n.Options.Port = defaultSMTPSSLPort
			}
		}
		if n.Options.Port < 0 || n.Options.Port > 65535 {
			return Config{}, &email.ConfigError{Driver: string(SMTP), Key: "port", Reason: "must be between 1 and 65535"}
		}
		if n.Options.Timeout == 0 {
			n.Options.Timeout = defaultTimeout
		}
		if (n.Options.Username == "") != (n.Options.Password == "") {
			return Config{}, &email.ConfigError{Driver: string(SMTP), Reason: "username and password must be set together"}
		}
	case SES:
		if n.Options.Region == "" {
			return Config{}, &email.ConfigError{Driver: string(SES), Key: "region", Reason: "is required"}
		}
	case Mailgun:
		if n.Options.Domain == "" {
			return Config{}, &email.ConfigError{Driver: string(Mailgun), Key: "domain", Reason: "is required"}
		}
		if n.Options.APIKey == "" {
			return Config{}, &email.ConfigError{Driver: string(Mailgun), Key: "api_key", Reason: "is required"}
		}
	case Resend:
		if n.Options.APIKey == "" {
			return Config{}, &email.ConfigError{Driver: string(Resend), Key: "api_key", Reason: "is required"}
		}
	}

	return n, nil
}
