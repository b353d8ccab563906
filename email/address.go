package email

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v2"
)

// Role says which recipient header an address belongs to.
type Role int

const (
	To Role = iota
	Cc
	Bcc
)

func (r Role) String() string {
	switch r {
	case To:
		return "to"
	case Cc:
		return "cc"
	case Bcc:
		return "bcc"
	default:
		return "role(" + strconv.Itoa(int(r)) + ")"
	}
}

// SenderRole says which originator header an address belongs to.
type SenderRole int

const (
	From SenderRole = iota
	ReplyTo
)

func (r SenderRole) String() string {
	switch r {
	case From:
		return "from"
	case ReplyTo:
		return "replyto"
	default:
		return "senderrole(" + strconv.Itoa(int(r)) + ")"
	}
}

// Address is a mailbox with an optional display name.
type Address struct {
	Address string
	Name    string
}

// String formats the address the way it appears in a header.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return (&mail.Address{Name: a.Name, Address: a.Address}).String()
}

// CheckAddress returns an *InvalidAddressError unless addr is a single bare
// mailbox such as "jane@example.com". Addresses end up in headers and on
// command lines, so line breaks are never allowed.
func CheckAddress(addr string) error {
	if addr == "" {
		return &InvalidAddressError{Address: addr, Reason: "is empty"}
	}
	if strings.ContainsAny(addr, "\r\n") {
		return &InvalidAddressError{Address: addr, Reason: "contains a line break"}
	}
	a, err := mail.ParseAddress(addr)
	if err != nil {
		return &InvalidAddressError{Address: addr, Reason: err.Error()}
	}
	if a.Address != addr || a.Name != "" {
		return &InvalidAddressError{Address: addr, Reason: "must be a bare address without a name"}
	}
	return nil
}

// AddressList is an ordered list of addresses as read from user input.
//
// In YAML it can be written as a single address, a sequence, or a mapping.
// Mapping keys that look like list indexes (0, 1, "2") mark address-only
// entries, so this:
//
//	0: frank.doe@example.com
//	jane.doe@example.com: Jane Doe
//
// yields frank.doe@example.com without a name and jane.doe@example.com with
// the name "Jane Doe".
type AddressList []Address

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *AddressList) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		*l = AddressList{{Address: s}}
		return nil
	}

	var seq []interface{}
	if err := unmarshal(&seq); err == nil {
		out := AddressList{}
		for n, v := range seq {
			switch item := v.(type) {
			case string:
				if item == "" {
					return fmt.Errorf("address list item %v is empty", n)
				}
				out = append(out, Address{Address: item})
			case map[interface{}]interface{}:
				// Single-entry maps inside a sequence, so ordering within
				// the map doesn't matter.
				ms := make(yaml.MapSlice, 0, len(item))
				for k, v := range item {
					ms = append(ms, yaml.MapItem{Key: k, Value: v})
				}
				m, err := addressesFromMapSlice(ms)
				if err != nil {
					return fmt.Errorf("can't parse address list item %v: %v", n, err)
				}
				out = append(out, m...)
			default:
				return fmt.Errorf("can't parse address list item %v: unexpected type %T", n, v)
			}
		}
		*l = out
		return nil
	}

	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return fmt.Errorf("an address list must be an address, a list or a map: %v", err)
	}
	out, err := addressesFromMapSlice(ms)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

func addressesFromMapSlice(ms yaml.MapSlice) (AddressList, error) {
	out := make(AddressList, 0, len(ms))
	for _, item := range ms {
		v, ok := item.Value.(string)
		if !ok && item.Value != nil {
			return nil, fmt.Errorf("value for %v must be a string, not %T", item.Key, item.Value)
		}
		if isIndexKey(item.Key) {
			if v == "" {
				return nil, fmt.Errorf("entry %v has no address", item.Key)
			}
			out = append(out, Address{Address: v})
			continue
		}
		k, ok := item.Key.(string)
		if !ok {
			return nil, fmt.Errorf("key %v must be an address", item.Key)
		}
		out = append(out, Address{Address: k, Name: v})
	}
	return out, nil
}

// isIndexKey reports whether a mapping key is a positional index rather than
// an address.
func isIndexKey(k interface{}) bool {
	switch v := k.(type) {
	case int, int64, uint, uint64:
		return true
	case string:
		if v == "" {
			return false
		}
		return strings.Trim(v, "0123456789") == ""
	}
	return false
}

// addressSet keeps addresses in insertion order, keyed by address. Adding an
// address that's already present replaces its name in place.
type addressSet struct {
	order []string
	names map[string]string
}

func (s *addressSet) add(address, name string) {
	if s.names == nil {
		s.names = make(map[string]string)
	}
	if _, ok := s.names[address]; !ok {
		s.order = append(s.order, address)
	}
	s.names[address] = name
}

func (s *addressSet) list() []Address {
	out := make([]Address, 0, len(s.order))
	for _, a := range s.order {
		out = append(out, Address{Address: a, Name: s.names[a]})
	}
	return out
}

func (s *addressSet) len() int {
	return len(s.order)
}

func (s *addressSet) clone() addressSet {
	c := addressSet{
		order: append([]string(nil), s.order...),
		names: make(map[string]string, len(s.names)),
	}
	for k, v := range s.names {
		c.names[k] = v
	}
	return c
}
