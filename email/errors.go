package email

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoRecipients means a message has no to, cc or bcc address.
	ErrNoRecipients = errors.New("message must have at least one recipient")

	// ErrSenderRequired means a message has more than one "from" address
	// but no single envelope sender.
	ErrSenderRequired = errors.New("a sender must be set when there is more than one \"from\" address")
)

// InvalidAddressError is returned for an address that can't be used as a
// bare mailbox, e.g. one containing a line break.
type InvalidAddressError struct {
	Address string
	Reason  string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid address %q: %v", e.Address, e.Reason)
}

// ConfigError reports a missing or invalid transport setting.
type ConfigError struct {
	Driver string
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%v transport: %v", e.Driver, e.Reason)
	}
	return fmt.Sprintf("%v transport: option %q %v", e.Driver, e.Key, e.Reason)
}

// FileNotFoundError is returned when an attachment or inline image path
// can't be read. Err is the error from the filesystem, so
// errors.Is(err, fs.ErrNotExist) holds for missing files.
type FileNotFoundError struct {
	Path string
	Err  error
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("can't read %v: %v", e.Path, e.Err)
}

func (e *FileNotFoundError) Unwrap() error {
	return e.Err
}

// TransportError wraps a failure surfaced by a delivery channel, e.g., a
// refused connection or a rejected login.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%v transport: %v", e.Transport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// PartialDeliveryError lists the recipients that could not be delivered to.
// Send never returns it; callers get one from Result.Err.
type PartialDeliveryError struct {
	Failed []string
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("could not deliver to %v recipient(s): %v", len(e.Failed), strings.Join(e.Failed, ", "))
}
