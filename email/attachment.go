package email

import (
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultMIMEType is used for attachments whose type can't be inferred from
// the file extension.
const DefaultMIMEType = "application/octet-stream"

// contentIDDomain is the right-hand side of generated Content-IDs.
const contentIDDomain = "envelope.generated"

// Attachment is a file carried by a message, either as a regular attachment
// or as an inline part referenced from an HTML body by its ContentID.
type Attachment struct {
	Filename  string
	MIMEType  string
	Content   []byte
	ContentID string // only set for inline parts
	Inline    bool
}

// MIMEType returns the media type for filename based on its extension.
// Unknown or missing extensions map to DefaultMIMEType rather than an error.
func MIMEType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return DefaultMIMEType
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return DefaultMIMEType
	}
	// TypeByExtension may append parameters, e.g. "; charset=utf-8"
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}

// readFile reads path for attachment, wrapping any error as a
// FileNotFoundError.
func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, &FileNotFoundError{Path: path, Err: err}
	}
	return b, nil
}

// AttachFile reads the file at path and attaches it, inferring the MIME type
// from the extension. If the file can't be read, the message is left as it
// was and a *FileNotFoundError is returned.
func (m *Message) AttachFile(path string) error {
	b, err := readFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path)
	m.attachments = append(m.attachments, Attachment{
		Filename: name,
		MIMEType: MIMEType(name),
		Content:  b,
	})

	log.Debug().
		Str("path", path).
		Str("size", units.HumanSize(float64(len(b)))).
		Msg("attached file")
	return nil
}

// AttachContent attaches in-memory data as a file called filename. If
// mimeType is empty it's inferred from the filename extension.
func (m *Message) AttachContent(data []byte, filename, mimeType string) *Message {
	if mimeType == "" {
		mimeType = MIMEType(filename)
	}
	m.attachments = append(m.attachments, Attachment{
		Filename: filename,
		MIMEType: mimeType,
		Content:  append([]byte(nil), data...),
	})
	return m
}

// EmbedImage attaches the image at path as an inline part and returns a
// reference to use in an HTML body, e.g. <img src="cid:...">.
func (m *Message) EmbedImage(path string) (string, error) {
	b, err := readFile(path)
	if err != nil {
		return "", err
	}

	name := filepath.Base(path)
	cid := uuid.NewString() + "@" + contentIDDomain
	m.attachments = append(m.attachments, Attachment{
		Filename:  name,
		MIMEType:  MIMEType(name),
		Content:   b,
		ContentID: cid,
		Inline:    true,
	})

	log.Debug().
		Str("path", path).
		Str("cid", cid).
		Str("size", units.HumanSize(float64(len(b)))).
		Msg("embedded image")
	return "cid:" + cid, nil
}

// Attachments returns the regular attachments and the inline parts of the
// message, in the order they were added.
func (m *Message) Attachments() []Attachment {
	out := make([]Attachment, len(m.attachments))
	copy(out, m.attachments)
	return out
}
