package e2e

import (
	"testing"

	"github.com/ptgott/envelope/smtptest"
)

// parsedEmails retrieves every email srv received after Unix time since (in
// nanoseconds) and parses each one. If an e2e test is failing and calls this
// function, check the raw emails first.
func parsedEmails(t *testing.T, srv smtptest.Server, since int64) []smtptest.ParsedEmail {
	t.Helper()
	raw, err := srv.RetrieveEmails(since)
	if err != nil {
		t.Fatalf("can't retrieve emails from the test SMTP server: %v", err)
	}

	out := make([]smtptest.ParsedEmail, 0, len(raw))
	for i := range raw {
		pe, err := smtptest.ParseEmail(raw[i])
		if err != nil {
			t.Fatalf("can't parse email %v: %v", i, err)
		}
		out = append(out, pe)
	}
	return out
}
