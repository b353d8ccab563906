package smtptest

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
)

// ParsedEmail is a received email split into its headers and leaf MIME
// parts.
type ParsedEmail struct {
	Header mail.Header
	// Bodies maps a media type (e.g. "text/html") to the decoded content of
	// the first part with that type.
	Bodies map[string]string
	// Files lists the parts that have a filename, in order.
	Files []ParsedFile
}

// ParsedFile is an attachment or inline part.
type ParsedFile struct {
	Filename  string
	MediaType string
	ContentID string
	Inline    bool
	Content   []byte
}

// ParseEmail takes a single raw email, as returned by RetrieveEmails, and
// walks its MIME tree. If a test calling this fails to find a part, check
// the Content-Type headers of the raw email first.
func ParseEmail(raw string) (ParsedEmail, error) {
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return ParsedEmail{}, fmt.Errorf("can't read the email: %v", err)
	}
	pe := ParsedEmail{
		Header: m.Header,
		Bodies: map[string]string{},
	}
	err = pe.walk(m.Header.Get("Content-Type"), m.Header.Get("Content-Transfer-Encoding"), "", "", m.Body)
	return pe, err
}

func (pe *ParsedEmail) walk(contentType, encoding, disposition, cid string, r io.Reader) error {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = "text/plain"
	}

	if strings.HasPrefix(mt, "multipart/") {
		mr := multipart.NewReader(r, params["boundary"])
		for {
			p, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			// multipart.Part decodes quoted-printable on its own and drops
			// the header, so pass an empty encoding in that case.
			enc := p.Header.Get("Content-Transfer-Encoding")
			if strings.EqualFold(enc, "quoted-printable") {
				enc = ""
			}
			if err := pe.walk(
				p.Header.Get("Content-Type"),
				enc,
				p.Header.Get("Content-Disposition"),
				strings.Trim(p.Header.Get("Content-ID"), "<>"),
				p,
			); err != nil {
				return err
			}
		}
	}

	content, err := decode(encoding, r)
	if err != nil {
		return err
	}

	disp, dparams, _ := mime.ParseMediaType(disposition)
	filename := dparams["filename"]
	if filename == "" {
		filename = params["name"]
	}
	if filename != "" {
		pe.Files = append(pe.Files, ParsedFile{
			Filename:  filename,
			MediaType: mt,
			ContentID: cid,
			Inline:    disp == "inline",
			Content:   content,
		})
		return nil
	}

	if _, ok := pe.Bodies[mt]; !ok {
		pe.Bodies[mt] = string(content)
	}
	return nil
}

func decode(encoding string, r io.Reader) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "base64":
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		// base64 bodies are wrapped at 76 columns
		b = bytes.Join(bytes.Fields(b), nil)
		out := make([]byte, base64.StdEncoding.DecodedLen(len(b)))
		n, err := base64.StdEncoding.Decode(out, b)
		return out[:n], err
	case "quoted-printable":
		return io.ReadAll(quotedprintable.NewReader(r))
	default:
		return io.ReadAll(r)
	}
}
