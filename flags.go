package main

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/ptgott/envelope/email"
)

// addressFlag collects addresses from a flag that can be repeated, each
// value being a comma-separated RFC 5322 address list, e.g.
// -to 'Jane Doe <jane@example.com>, joe@example.com'.
type addressFlag struct {
	list email.AddressList
}

func (a *addressFlag) String() string {
	if a == nil {
		return ""
	}
	v := make([]string, 0, len(a.list))
	for _, addr := range a.list {
		v = append(v, addr.String())
	}
	return strings.Join(v, ", ")
}

func (a *addressFlag) Set(s string) error {
	parsed, err := mail.ParseAddressList(s)
	if err != nil {
		return fmt.Errorf("can't parse %q as a list of addresses: %v", s, err)
	}
	for _, p := range parsed {
		a.list = append(a.list, email.Address{Address: p.Address, Name: p.Name})
	}
	return nil
}

// filesFlag collects file paths from a flag that can be repeated.
type filesFlag []string

func (f *filesFlag) String() string {
	if f == nil {
		return ""
	}
	return strings.Join(*f, ", ")
}

func (f *filesFlag) Set(s string) error {
	*f = append(*f, s)
	return nil
}
