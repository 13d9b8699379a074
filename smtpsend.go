// Package smtpsend is a client library for delivering mail to a
// cooperating relay Mail Submission Agent over SMTP. It is a submission
// client, not a direct-to-MX delivery agent: it assumes a relay that
// accepts connections from this client, negotiates extensions with it,
// authenticates when asked, and transports one or more message bodies per
// connection.
//
// The low-level protocol engine lives in internal/smtp; this package is
// the builder-style façade described by the design: a Dialer configures
// how to reach and authenticate to a relay, and a Sender drives one or
// more Send calls against it, reusing the underlying connection according
// to a ReusePolicy.
package smtpsend

import (
	"blitiri.com.ar/go/smtpsend/internal/envelope"
	"blitiri.com.ar/go/smtpsend/internal/smtp"
)

// Mailbox is a validated local-part@domain address.
type Mailbox = envelope.Mailbox

// ParseMailbox validates addr as local-part@domain. smtputf8 indicates
// whether the caller intends to negotiate SMTPUTF8 on the connection that
// will use this mailbox; when false, a non-ASCII local-part is rejected
// and a non-ASCII domain is converted via IDNA when possible.
func ParseMailbox(addr string, smtputf8 bool) (Mailbox, error) {
	return envelope.ParseMailbox(addr, smtputf8)
}

// ClientId is the argument sent with EHLO/HELO.
type ClientId = envelope.ClientId

// ParseClientId validates s as a usable EHLO/HELO argument: a
// fully-qualified domain name, a bracketed IPv4 literal, or a bracketed
// IPv6 literal.
func ParseClientId(s string) (ClientId, error) {
	return envelope.ParseClientId(s)
}

// Kind classifies the errors this package can return.
type Kind = smtp.Kind

const (
	Resolution           = smtp.Resolution
	ConnectionRefused     = smtp.ConnectionRefused
	Io                    = smtp.Io
	Tls                   = smtp.Tls
	TlsRequired           = smtp.TlsRequired
	MalformedReply        = smtp.MalformedReply
	LineTooLong           = smtp.LineTooLong
	UnexpectedReply       = smtp.UnexpectedReply
	AuthRejected          = smtp.AuthRejected
	AuthProtocolError     = smtp.AuthProtocolError
	AuthNoMechanism       = smtp.AuthNoMechanism
	UnsupportedUtf8       = smtp.UnsupportedUtf8
	AllRecipientsRejected = smtp.AllRecipientsRejected
	Transient             = smtp.Transient
	Permanent             = smtp.Permanent
	Timeout               = smtp.Timeout
	ClientClosed          = smtp.ClientClosed
)

// Error is the error type returned by Send and Dial.
type Error = smtp.Error

// Reply is a parsed SMTP response.
type Reply = smtp.Reply

// RecipientResult is the outcome of a single recipient within a
// transaction.
type RecipientResult = smtp.RecipientResult

// IsPermanent reports whether err represents an unrecoverable failure that
// should not be retried against the same relay without caller
// intervention.
func IsPermanent(err error) bool { return smtp.IsPermanent(err) }

// IsTransient reports whether err represents a failure that may succeed on
// a later retry.
func IsTransient(err error) bool { return smtp.IsTransient(err) }
