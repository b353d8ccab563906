package email

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"

	"github.com/ptgott/envelope/html"
)

// Raw renders the builder state into a new gomail message for callers that
// need something the builder doesn't expose. The result is a snapshot:
// changes made to it are not read back into m, and the next call to Raw
// starts from m again.
func (m *Message) Raw() *gomail.Message {
	g := gomail.NewMessage()

	for k, v := range m.headers {
		g.SetHeader(k, v...)
	}

	if m.subject != "" {
		g.SetHeader("Subject", m.subject)
	}
	setAddressHeader(g, "From", m.from.list())
	setAddressHeader(g, "Reply-To", m.replyTo.list())
	setAddressHeader(g, "To", m.to.list())
	setAddressHeader(g, "Cc", m.cc.list())
	// gomail leaves Bcc out of the rendered headers but keeps it around for
	// callers that read it back with GetHeader.
	setAddressHeader(g, "Bcc", m.bcc.list())
	if m.sender != nil {
		g.SetHeader("Sender", g.FormatAddress(m.sender.Address, m.sender.Name))
	}
	if m.returnPath != "" {
		g.SetHeader("Return-Path", m.returnPath)
	}

	g.SetBody(PlainText, m.plainBody())
	for _, p := range m.parts {
		g.AddAlternative(p.MIMEType, string(p.Content))
	}

	for _, a := range m.attachments {
		settings := []gomail.FileSetting{
			gomail.SetCopyFunc(copyBytes(a.Content)),
		}
		h := map[string][]string{
			"Content-Type": {fmt.Sprintf("%v; name=%q", a.MIMEType, a.Filename)},
		}
		if a.Inline {
			h["Content-ID"] = []string{"<" + a.ContentID + ">"}
			g.Embed(a.Filename, append(settings, gomail.SetHeader(h))...)
			continue
		}
		g.Attach(a.Filename, append(settings, gomail.SetHeader(h))...)
	}

	return g
}

// WriteTo writes m to w in RFC 5322 format. It implements io.WriterTo.
func (m *Message) WriteTo(w io.Writer) (int64, error) {
	return m.Raw().WriteTo(w)
}

// plainBody returns the text/plain body. Every message needs one, so when
// none was set it's derived from the first HTML part, if there is one.
func (m *Message) plainBody() string {
	if len(m.body) > 0 {
		return string(m.body)
	}
	for _, p := range m.parts {
		if !strings.HasPrefix(strings.ToLower(p.MIMEType), "text/html") {
			continue
		}
		t, err := html.PlainText(string(p.Content))
		if err != nil {
			log.Warn().Err(err).Msg("could not derive a plain text body from the HTML part")
			return ""
		}
		return t
	}
	return ""
}

func setAddressHeader(g *gomail.Message, field string, addrs []Address) {
	if len(addrs) == 0 {
		return
	}
	v := make([]string, 0, len(addrs))
	for _, a := range addrs {
		v = append(v, g.FormatAddress(a.Address, a.Name))
	}
	g.SetHeader(field, v...)
}

func copyBytes(b []byte) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write(b)
		return err
	}
}
