package email

import (
	"net/textproto"
	"strings"
)

// PlainText is the MIME type of the main message body.
const PlainText = "text/plain"

// Part is an alternative body, e.g. an HTML rendering of the plain text body.
type Part struct {
	Content  []byte
	MIMEType string
}

// Message accumulates everything needed to render an email. Create one per
// email with NewMessage or Compose, set fields with the chainable methods,
// then hand it to a Mailer. A Message isn't safe for concurrent mutation.
type Message struct {
	subject    string
	body       []byte
	parts      []Part
	to         addressSet
	cc         addressSet
	bcc        addressSet
	from       addressSet
	replyTo    addressSet
	sender     *Address
	returnPath string
	headers    map[string][]string

	attachments []Attachment
}

// NewMessage returns an empty message.
func NewMessage() *Message {
	return &Message{}
}

// Compose returns a message with the given subject and body. Empty values are
// skipped. mimeType follows the same rules as SetBody.
func Compose(subject, body, mimeType string) *Message {
	m := NewMessage()
	if subject != "" {
		m.SetSubject(subject)
	}
	if body != "" {
		m.SetBody(body, mimeType)
	}
	return m
}

// SetSubject replaces the subject.
func (m *Message) SetSubject(subject string) *Message {
	m.subject = subject
	return m
}

// SetBody sets the message body. If mimeType is empty or text/plain, content
// replaces the main plain text body. Any other type is added as an extra part,
// so calling SetBody again with "text/html" adds an HTML alternative next to
// the plain text body instead of replacing it.
func (m *Message) SetBody(content, mimeType string) *Message {
	if mimeType == "" || strings.EqualFold(mimeType, PlainText) {
		m.body = []byte(content)
		return m
	}
	m.parts = append(m.parts, Part{
		Content:  []byte(content),
		MIMEType: mimeType,
	})
	return m
}

// AddRecipient adds address to the recipient list for role. Adding an address
// already present for that role replaces its name.
func (m *Message) AddRecipient(address, name string, role Role) *Message {
	switch role {
	case To:
		m.to.add(address, name)
	case Cc:
		m.cc.add(address, name)
	case Bcc:
		m.bcc.add(address, name)
	}
	return m
}

// AddRecipients adds each entry of list, in order, for role.
func (m *Message) AddRecipients(list AddressList, role Role) *Message {
	for _, a := range list {
		m.AddRecipient(a.Address, a.Name, role)
	}
	return m
}

// To adds a "to" recipient.
func (m *Message) To(address, name string) *Message {
	return m.AddRecipient(address, name, To)
}

// Cc adds a "carbon copy" recipient.
func (m *Message) Cc(address, name string) *Message {
	return m.AddRecipient(address, name, Cc)
}

// Bcc adds a "blind carbon copy" recipient.
func (m *Message) Bcc(address, name string) *Message {
	return m.AddRecipient(address, name, Bcc)
}

// AddSender adds address to the originator list for role.
func (m *Message) AddSender(address, name string, role SenderRole) *Message {
	switch role {
	case From:
		m.from.add(address, name)
	case ReplyTo:
		m.replyTo.add(address, name)
	}
	return m
}

// AddSenders adds each entry of list, in order, for role.
func (m *Message) AddSenders(list AddressList, role SenderRole) *Message {
	for _, a := range list {
		m.AddSender(a.Address, a.Name, role)
	}
	return m
}

// From adds a "from" address.
func (m *Message) From(address, name string) *Message {
	return m.AddSender(address, name, From)
}

// ReplyTo adds a "reply to" address.
func (m *Message) ReplyTo(address, name string) *Message {
	return m.AddSender(address, name, ReplyTo)
}

// SetSender sets the single actual sender. It must be set when a message
// has more than one "from" address.
func (m *Message) SetSender(address, name string) *Message {
	m.sender = &Address{Address: address, Name: name}
	return m
}

// SetReturnPath sets the address bounces are sent to.
func (m *Message) SetReturnPath(address string) *Message {
	m.returnPath = address
	return m
}

// SetHeader sets a custom header, replacing any previous values for it.
// Headers managed by the builder (From, To, Subject and friends) are
// overwritten when the message is rendered.
func (m *Message) SetHeader(field string, values ...string) *Message {
	if m.headers == nil {
		m.headers = make(map[string][]string)
	}
	m.headers[textproto.CanonicalMIMEHeaderKey(field)] = append([]string(nil), values...)
	return m
}

// Subject returns the subject.
func (m *Message) Subject() string { return m.subject }

// Body returns the main plain text body.
func (m *Message) Body() string { return string(m.body) }

// Parts returns the extra body parts in the order they were added.
func (m *Message) Parts() []Part {
	out := make([]Part, len(m.parts))
	copy(out, m.parts)
	return out
}

// Recipients returns the addresses for role in insertion order.
func (m *Message) Recipients(role Role) []Address {
	switch role {
	case To:
		return m.to.list()
	case Cc:
		return m.cc.list()
	case Bcc:
		return m.bcc.list()
	}
	return nil
}

// Senders returns the addresses for role in insertion order.
func (m *Message) Senders(role SenderRole) []Address {
	switch role {
	case From:
		return m.from.list()
	case ReplyTo:
		return m.replyTo.list()
	}
	return nil
}

// Sender returns the actual sender, if one was set.
func (m *Message) Sender() (Address, bool) {
	if m.sender == nil {
		return Address{}, false
	}
	return *m.sender, true
}

// ReturnPath returns the bounce address, if any.
func (m *Message) ReturnPath() string { return m.returnPath }

// Headers returns a copy of the custom headers.
func (m *Message) Headers() map[string][]string {
	out := make(map[string][]string, len(m.headers))
	for k, v := range m.headers {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Clone returns a deep copy of m. Changing the copy never affects m.
func (m *Message) Clone() *Message {
	c := &Message{
		subject:    m.subject,
		body:       append([]byte(nil), m.body...),
		to:         m.to.clone(),
		cc:         m.cc.clone(),
		bcc:        m.bcc.clone(),
		from:       m.from.clone(),
		replyTo:    m.replyTo.clone(),
		returnPath: m.returnPath,
	}
	if m.sender != nil {
		s := *m.sender
		c.sender = &s
	}
	for _, p := range m.parts {
		c.parts = append(c.parts, Part{
			Content:  append([]byte(nil), p.Content...),
			MIMEType: p.MIMEType,
		})
	}
	// Attachment content is never modified after it's added, so clones
	// can share the backing arrays.
	c.attachments = append([]Attachment(nil), m.attachments...)
	if m.headers != nil {
		c.headers = m.Headers()
	}
	return c
}

// setOnlyRecipient drops every to, cc and bcc address and leaves a as the
// single "to" recipient.
func (m *Message) setOnlyRecipient(a Address) {
	m.to = addressSet{}
	m.cc = addressSet{}
	m.bcc = addressSet{}
	m.to.add(a.Address, a.Name)
}

// Validate checks the rules a message must satisfy before it's sent.
func (m *Message) Validate() error {
	if m.to.len()+m.cc.len()+m.bcc.len() == 0 {
		return ErrNoRecipients
	}
	if m.from.len() > 1 && m.sender == nil {
		return ErrSenderRequired
	}
	for _, set := range []*addressSet{&m.to, &m.cc, &m.bcc, &m.from, &m.replyTo} {
		for _, a := range set.order {
			if err := CheckAddress(a); err != nil {
				return err
			}
		}
	}
	if m.sender != nil {
		if err := CheckAddress(m.sender.Address); err != nil {
			return err
		}
	}
	if m.returnPath != "" {
		if err := CheckAddress(m.returnPath); err != nil {
			return err
		}
	}
	return nil
}

// Envelope holds the protocol-level addresses of a message.
type Envelope struct {
	From string   // reverse path, may be empty
	To   []string // every to, cc and bcc address without duplicates
}

// Envelope computes the envelope for m. The reverse path is the return path
// if set, then the sender, then the first "from" address.
func (m *Message) Envelope() Envelope {
	var e Envelope
	switch {
	case m.returnPath != "":
		e.From = m.returnPath
	case m.sender != nil:
		e.From = m.sender.Address
	case m.from.len() > 0:
		e.From = m.from.order[0]
	}

	seen := make(map[string]struct{})
	for _, s := range []*addressSet{&m.to, &m.cc, &m.bcc} {
		for _, a := range s.order {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			e.To = append(e.To, a)
		}
	}
	return e
}
