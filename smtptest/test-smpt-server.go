package smtptest

// Server is an SMTP server that a test can point a transport at and then
// read back what it received. The server is meant to start during a test
// (or test suite) and stop right after.
type Server interface {
	// Start begins accepting connections and returns an error if this
	// fails. It may block, so callers usually run it in a goroutine.
	Start() error

	// Close stops the server. It doesn't return an error so it's easier to
	// use with defer.
	Close()

	// RetrieveEmails returns the raw data of every message received after
	// Unix time t in nanoseconds.
	RetrieveEmails(t int64) ([]string, error)

	// Address returns the host:port of the server.
	Address() string
}

var _ Server = (*InProcessServer)(nil)
