package email

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptgott/envelope/smtptest"
)

func TestWriteTo(t *testing.T) {
	img := filepath.Join(t.TempDir(), "logo.png")
	require.NoError(t, os.WriteFile(img, []byte{0x89, 'P', 'N', 'G', 0, 1, 2}, 0o600))

	m := Compose("Monthly update", "plain body", "").
		To("a@example.com", "A").
		Cc("b@example.com", "").
		Bcc("c@example.com", "").
		From("me@example.com", "Me").
		ReplyTo("help@example.com", "").
		SetSender("me@example.com", "").
		SetReturnPath("bounces@example.com").
		SetHeader("X-Campaign", "42").
		AttachContent([]byte(`{"a":1}`), "data.json", "")

	cid, err := m.EmbedImage(img)
	require.NoError(t, err)
	m.SetBody(`<p>html body <img src="`+cid+`"></p>`, "text/html")

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	pe, err := smtptest.ParseEmail(buf.String())
	require.NoError(t, err)

	assert.Equal(t, "Monthly update", pe.Header.Get("Subject"))
	assert.Equal(t, "42", pe.Header.Get("X-Campaign"))
	assert.Equal(t, "bounces@example.com", pe.Header.Get("Return-Path"))
	assert.Equal(t, "", pe.Header.Get("Bcc"), "bcc must never be rendered")

	from, err := pe.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Me", from[0].Name)
	assert.Equal(t, "me@example.com", from[0].Address)

	to, err := pe.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "a@example.com", to[0].Address)
	assert.Equal(t, "b@example.com", pe.Header.Get("Cc"))
	assert.Equal(t, "help@example.com", pe.Header.Get("Reply-To"))

	assert.Equal(t, "plain body", pe.Bodies["text/plain"])
	assert.Contains(t, pe.Bodies["text/html"], "html body")

	require.Len(t, pe.Files, 2)
	files := map[string]smtptest.ParsedFile{}
	for _, f := range pe.Files {
		files[f.Filename] = f
	}

	j, ok := files["data.json"]
	require.True(t, ok)
	assert.False(t, j.Inline)
	assert.Equal(t, "application/json", j.MediaType)
	assert.Equal(t, `{"a":1}`, string(j.Content))

	l, ok := files["logo.png"]
	require.True(t, ok)
	assert.True(t, l.Inline)
	assert.Equal(t, "image/png", l.MediaType)
	assert.Equal(t, strings.TrimPrefix(cid, "cid:"), l.ContentID)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G', 0, 1, 2}, l.Content)
}

func TestWriteToDerivesPlainText(t *testing.T) {
	m := Compose(
		"Hi",
		`<h1>Title</h1><p>See <a href="https://example.com">our site</a></p>`,
		"text/html",
	).To("a@example.com", "")

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)

	pe, err := smtptest.ParseEmail(buf.String())
	require.NoError(t, err)

	plain := strings.ReplaceAll(pe.Bodies["text/plain"], "\r\n", "\n")
	assert.Equal(t, "Title\n\nSee our site (https://example.com)", plain)
	assert.Contains(t, pe.Bodies["text/html"], "<h1>Title</h1>")
}

func TestRawIsASnapshot(t *testing.T) {
	m := Compose("Original", "body", "").
		To("a@example.com", "").
		Bcc("c@example.com", "")

	r := m.Raw()
	assert.Equal(t, []string{"c@example.com"}, r.GetHeader("Bcc"))

	r.SetHeader("Subject", "Changed")
	assert.Equal(t, "Original", m.Subject())
	assert.Equal(t, []string{"Original"}, m.Raw().GetHeader("Subject"))
}
