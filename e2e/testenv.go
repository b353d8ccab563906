package e2e

import (
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"github.com/ptgott/envelope/smtptest"
)

// testEnvironmentConfig exposes options that should be available and
// perhaps changeable when spinning up a test environment. While they
// may not vary between tests, they shouldn't be buried inside
// functions.
type testEnvironmentConfig struct {
	startTLS    bool     // offer STARTTLS with a throwaway certificate
	requireAuth bool     // refuse mail from clients that don't log in
	rejected    []string // addresses refused at RCPT time
}

// testEnvironment manages all dependencies required to simulate a "real"
// environment and run the e2e tests. Callers should create this via
// startTestEnvironment.
type testEnvironment struct {
	SMTPServer  *smtptest.InProcessServer
	MailAPI     *fakeMailAPI
	tempDirPath string
}

// startTestEnvironment spins up dependencies. Everything is torn down when
// the test completes.
func startTestEnvironment(t *testing.T, c testEnvironmentConfig) (*testEnvironment, error) {
	te := &testEnvironment{
		tempDirPath: t.TempDir(),
	}

	o := smtptest.Options{RequireAuth: c.requireAuth}
	if c.startTLS {
		key, cert, err := smtptest.GenerateTLSFiles(t)
		if err != nil {
			return nil, err
		}
		o.KeyPath = key
		o.CertPath = cert
	}

	ts, err := smtptest.NewInProcessServer(o)
	if err != nil {
		return nil, fmt.Errorf("could not start the test SMTP server: %w", err)
	}
	ts.Reject(c.rejected...)
	te.SMTPServer = ts
	go ts.Start()
	t.Cleanup(ts.Close)

	te.MailAPI = startFakeMailAPI("mg.example.com")
	t.Cleanup(te.MailAPI.Close)

	return te, nil
}

// writeConfig creates an application config pointing at the SMTP server
// and returns its path.
func (te *testEnvironment) writeConfig(opts appConfigOptions) (string, error) {
	if opts.Driver == "" {
		opts.Driver = "smtp"
	}
	if opts.Driver == "smtp" {
		host, port, err := net.SplitHostPort(te.SMTPServer.Address())
		if err != nil {
			return "", err
		}
		opts.Hostname = host
		opts.Port = port
	}
	p := filepath.Join(te.tempDirPath, "config.yaml")
	return p, createAppConfig(p, opts)
}
