// Package envelope implements the value types the SMTP engine moves
// around: mailbox addresses, EHLO client identities, and the envelope
// (sender, recipients, message id, body) a caller hands to a single Send.
package envelope

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode"

	"blitiri.com.ar/go/smtpsend/internal/normalize"
	"blitiri.com.ar/go/smtpsend/internal/set"

	"golang.org/x/net/idna"
)

// Split an user@domain address into user and domain.
func Split(addr string) (string, string) {
	ps := strings.SplitN(addr, "@", 2)
	if len(ps) != 2 {
		return addr, ""
	}

	return ps[0], ps[1]
}

// dotAtomText matches RFC 5321's dot-atom-text: one or more atext runs
// separated by single dots, no leading/trailing/doubled dots.
var dotAtomText = regexp.MustCompile(
	`^[a-zA-Z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+(\.[a-zA-Z0-9!#$%&'*+/=?^_` + "`" + `{|}~-]+)*$`)

// Mailbox is a validated local-part@domain address (spec §3, §4.8).
type Mailbox struct {
	Local  string
	Domain string

	// UTF8 records whether this mailbox needed SMTPUTF8 to validate (a
	// non-ASCII local-part, or a domain that only validates as a U-label).
	UTF8 bool
}

func (m Mailbox) String() string {
	if m.Local == "" && m.Domain == "" {
		return ""
	}
	return m.Local + "@" + m.Domain
}

// IsZero reports whether m is the zero Mailbox (used to represent a null
// reverse-path / empty MAIL FROM).
func (m Mailbox) IsZero() bool {
	return m.Local == "" && m.Domain == ""
}

// ParseMailbox validates addr as local-part@domain. smtputf8 indicates
// whether the caller's connection has negotiated SMTPUTF8; when false, a
// non-ASCII local-part is rejected and a non-ASCII domain is converted via
// IDNA if possible, the same fallback chasquid's internal/smtp.go applies
// before giving up.
func ParseMailbox(addr string, smtputf8 bool) (Mailbox, error) {
	local, domain := Split(addr)
	if domain == "" {
		return Mailbox{}, fmt.Errorf("address %q is not of the form local@domain", addr)
	}
	if len(local) > 64 {
		return Mailbox{}, fmt.Errorf("local part of %q exceeds 64 bytes", addr)
	}
	if len(addr) > 254 {
		return Mailbox{}, fmt.Errorf("address %q exceeds 254 bytes", addr)
	}

	utf8Needed := false

	if !isASCII(local) {
		if !smtputf8 {
			return Mailbox{}, &Utf8RequiredError{Part: "local part", Addr: addr}
		}
		norm, err := normalize.User(local)
		if err != nil {
			return Mailbox{}, fmt.Errorf("invalid utf8 local part %q: %w", local, err)
		}
		local = norm
		utf8Needed = true
	} else if !dotAtomText.MatchString(local) {
		return Mailbox{}, fmt.Errorf("local part %q is not a valid dot-atom", local)
	}

	if !isASCII(domain) {
		if smtputf8 {
			utf8Needed = true
		} else {
			// Fall back to IDNA, same as chasquid's prepareForSMTPUTF8.
			ascii, err := idna.ToASCII(domain)
			if err != nil {
				return Mailbox{}, &Utf8RequiredError{Part: "domain", Addr: addr}
			}
			domain = ascii
		}
	}

	return Mailbox{Local: local, Domain: domain, UTF8: utf8Needed}, nil
}

func isASCII(s string) bool {
	for _, c := range s {
		if c > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// Utf8RequiredError indicates a mailbox could not be made to fit on the
// wire without SMTPUTF8 (its local part is non-ASCII, or its domain is
// non-ASCII and not IDNA-convertible).
type Utf8RequiredError struct {
	Part string // "local part" or "domain"
	Addr string
}

func (e *Utf8RequiredError) Error() string {
	return fmt.Sprintf("address %q needs SMTPUTF8 (non-ASCII %s)", e.Addr, e.Part)
}

// ClientId is the argument sent with EHLO/HELO: either a fully-qualified
// domain name (must contain a dot), a bracketed IPv4 literal, or a
// bracketed IPv6 literal (spec §3, §4.8).
type ClientId string

// ParseClientId validates s as a usable EHLO/HELO argument.
func ParseClientId(s string) (ClientId, error) {
	if s == "" {
		return "", fmt.Errorf("empty client id")
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := s[1 : len(s)-1]
		addr := inner
		if strings.HasPrefix(inner, "IPv6:") {
			addr = inner[len("IPv6:"):]
		}
		if net.ParseIP(addr) == nil {
			return "", fmt.Errorf("invalid address literal %q", s)
		}
		return ClientId(s), nil
	}

	if !strings.Contains(s, ".") {
		return "", fmt.Errorf("FQDN client id %q must contain a dot", s)
	}
	return ClientId(s), nil
}

func (c ClientId) String() string { return string(c) }

// EmailEnvelope is what the core accepts per Send (spec §3): a sender (nil
// for a null reverse-path / bounce), a non-empty, deduplicated ordered list
// of recipients, an opaque message id for diagnostics, and a pull-based
// source for the message body, already MIME-formed.
type EmailEnvelope struct {
	Sender     *Mailbox
	Recipients []Mailbox
	MessageID  string

	// Body is a finite byte source; it is read at most once per Send.
	Body func() ([]byte, error)
}

// Validate checks the invariants spec.md §3 requires: Recipients is
// non-empty, and there are no duplicate recipients.
func (e *EmailEnvelope) Validate() error {
	if len(e.Recipients) == 0 {
		return fmt.Errorf("envelope has no recipients")
	}

	seen := set.NewString()
	for _, r := range e.Recipients {
		addr := r.String()
		if seen.Has(addr) {
			return fmt.Errorf("duplicate recipient %q", addr)
		}
		seen.Add(addr)
	}
	return nil
}

// NeedsSMTPUTF8 reports whether the envelope contains any mailbox that
// requires the SMTPUTF8 extension to be negotiated.
func (e *EmailEnvelope) NeedsSMTPUTF8() bool {
	if e.Sender != nil && e.Sender.UTF8 {
		return true
	}
	for _, r := range e.Recipients {
		if r.UTF8 {
			return true
		}
	}
	return false
}
