package sendmail

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptgott/envelope/email"
)

// fakeSendmail writes a shell script that records its arguments and stdin
// in dir, standing in for a real sendmail binary.
func fakeSendmail(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	p := filepath.Join(dir, "sendmail")
	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > " + filepath.Join(dir, "args") + "\n" +
		"cat > " + filepath.Join(dir, "stdin") + "\n"
	require.NoError(t, os.WriteFile(p, []byte(script), 0o700))
	return p
}

func failingSendmail(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	p := filepath.Join(dir, "sendmail")
	script := "#!/bin/sh\ncat > /dev/null\necho 'no such user' >&2\nexit 67\n"
	require.NoError(t, os.WriteFile(p, []byte(script), 0o700))
	return p
}

func readArgs(t *testing.T, dir string) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
}

func readStdin(t *testing.T, dir string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "stdin"))
	require.NoError(t, err)
	return string(b)
}

func testMessage() *email.Message {
	return email.Compose("Hello", "body", "").
		From("me@example.com", "").
		To("you@example.com", "").
		Cc("cc@example.com", "").
		Bcc("bcc@example.com", "")
}

func TestTransportSend(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(fakeSendmail(t, dir) + " -i")
	require.NoError(t, err)

	res, err := tr.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)

	assert.Equal(t, []string{
		"-i", "-f", "me@example.com", "--",
		"you@example.com", "cc@example.com", "bcc@example.com",
	}, readArgs(t, dir))

	in := readStdin(t, dir)
	assert.Contains(t, in, "Subject: Hello")
	assert.NotContains(t, in, "bcc@example.com")
}

func TestTransportSendNoReversePath(t *testing.T) {
	dir := t.TempDir()
	tr, err := New(fakeSendmail(t, dir))
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), email.Compose("Hello", "body", "").To("you@example.com", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"--", "you@example.com"}, readArgs(t, dir))
}

func TestTransportSendFailure(t *testing.T) {
	tr, err := New(failingSendmail(t, t.TempDir()))
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), testMessage())
	var te *email.TransportError
	require.True(t, errors.As(err, &te))
	assert.Contains(t, err.Error(), "no such user")
}

func TestTransportSendCanceled(t *testing.T) {
	tr, err := New(fakeSendmail(t, t.TempDir()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tr.Send(ctx, testMessage())
	var te *email.TransportError
	assert.True(t, errors.As(err, &te))
}

func TestNewDefaults(t *testing.T) {
	tr, err := New("")
	require.NoError(t, err)
	assert.Equal(t, strings.Fields(DefaultCommand), tr.args)

	_, err = New("   ")
	var ce *email.ConfigError
	assert.True(t, errors.As(err, &ce))

	n, err := NewNative("", "")
	require.NoError(t, err)
	assert.Equal(t, strings.Fields(DefaultNativeCommand), n.args)
	assert.Equal(t, DefaultParams, n.params)

	_, err = NewNative(" ", "")
	assert.True(t, errors.As(err, &ce))
}

func TestNativeSend(t *testing.T) {
	dir := t.TempDir()
	n, err := NewNative(fakeSendmail(t, dir)+" -t -i", "")
	require.NoError(t, err)

	res, err := n.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)

	assert.Equal(t, []string{"-t", "-i", "-fme@example.com"}, readArgs(t, dir))

	in := readStdin(t, dir)
	assert.True(t, strings.HasPrefix(in, "Bcc: bcc@example.com\r\n"))
	assert.Contains(t, in, "To: you@example.com")
}

func TestNativeSendRejectsBccHeaderInjection(t *testing.T) {
	dir := t.TempDir()
	n, err := NewNative(fakeSendmail(t, dir)+" -t -i", "")
	require.NoError(t, err)

	msg := email.Compose("Hello", "body", "").
		From("me@example.com", "").
		To("you@example.com", "").
		Bcc("b@example.com\r\nTo: attacker@evil.example", "")

	_, err = n.Send(context.Background(), msg)

	var te *email.TransportError
	require.True(t, errors.As(err, &te))
	var ie *email.InvalidAddressError
	assert.True(t, errors.As(err, &ie))
	_, statErr := os.Stat(filepath.Join(dir, "stdin"))
	assert.True(t, os.IsNotExist(statErr), "sendmail must not run")
}

func TestNativeExtraParams(t *testing.T) {
	testCases := []struct {
		description string
		params      string
		from        string
		expected    []string
	}{
		{
			description: "default",
			params:      DefaultParams,
			from:        "me@example.com",
			expected:    []string{"-fme@example.com"},
		},
		{
			description: "no reverse path",
			params:      "-f%s -oi",
			from:        "",
			expected:    []string{"-oi"},
		},
		{
			description: "no placeholder",
			params:      "-oi -odb",
			from:        "me@example.com",
			expected:    []string{"-oi", "-odb"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			n := &Native{params: tc.params}
			assert.Equal(t, tc.expected, n.extraParams(tc.from))
		})
	}
}
