package smtp

import (
	"fmt"
	"sort"
	"strings"

	"blitiri.com.ar/go/smtpsend/internal/envelope"
)

// maxCommandLineLength is the largest command line this encoder emits,
// including the trailing CRLF (RFC 5321 section 4.5.3.1.4).
const maxCommandLineLength = 512

// mailboxArg renders a mailbox for use inside angle brackets: empty for the
// null reverse-path, local@domain otherwise.
func mailboxArg(m *envelope.Mailbox) string {
	if m == nil || m.IsZero() {
		return ""
	}
	return m.String()
}

// EncodeHello builds an EHLO (or, with ehlo=false, a HELO) command line.
func EncodeHello(id envelope.ClientId, ehlo bool) string {
	verb := "HELO"
	if ehlo {
		verb = "EHLO"
	}
	return fmt.Sprintf("%s %s\r\n", verb, id)
}

// EncodeStartTLS builds the STARTTLS command line.
func EncodeStartTLS() string {
	return "STARTTLS\r\n"
}

// EncodeAuth builds the AUTH command line, with an optional base64
// initial-response.
func EncodeAuth(mechanism string, initialResponse string) string {
	if initialResponse == "" {
		return fmt.Sprintf("AUTH %s\r\n", mechanism)
	}
	return fmt.Sprintf("AUTH %s %s\r\n", mechanism, initialResponse)
}

// EncodeAuthContinuation builds a bare base64 continuation line sent during
// a SASL exchange.
func EncodeAuthContinuation(response string) string {
	return response + "\r\n"
}

// MailParams are the extensible parameters accepted after MAIL FROM beyond
// the built-in SMTPUTF8/BODY handling (spec §9's open question: "the exact
// set of allowed MAIL parameters beyond SMTPUTF8/BODY/SIZE is left
// extensible").
type MailParams map[string]string

// EncodeMail builds a MAIL FROM command line. sender may be nil for a null
// reverse-path. eightBitMIME and smtputf8 control whether BODY=8BITMIME and
// SMTPUTF8 are appended; the caller is responsible for only setting these
// when the corresponding extension was negotiated.
func EncodeMail(sender *envelope.Mailbox, eightBitMIME, smtputf8 bool, size int64, extra MailParams) (string, error) {
	cmd := fmt.Sprintf("MAIL FROM:<%s>", mailboxArg(sender))

	if eightBitMIME {
		cmd += " BODY=8BITMIME"
	}
	if smtputf8 {
		cmd += " SMTPUTF8"
	}
	if size > 0 {
		cmd += fmt.Sprintf(" SIZE=%d", size)
	}

	// Extra parameters are appended in sorted key order, so encoding is
	// deterministic (useful for tests and for PIPELINING request replay).
	if len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for k := range extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			cmd += fmt.Sprintf(" %s=%s", k, extra[k])
		}
	}

	line := cmd + "\r\n"
	if len(line) > maxCommandLineLength {
		return "", &Error{Kind: MalformedReply,
			Err: fmt.Errorf("MAIL command line exceeds %d octets", maxCommandLineLength)}
	}
	return line, nil
}

// EncodeRcpt builds a RCPT TO command line.
func EncodeRcpt(rcpt envelope.Mailbox) string {
	return fmt.Sprintf("RCPT TO:<%s>\r\n", rcpt.String())
}

// EncodeData builds the DATA command line.
func EncodeData() string { return "DATA\r\n" }

// EncodeRset builds the RSET command line.
func EncodeRset() string { return "RSET\r\n" }

// EncodeNoop builds the NOOP command line.
func EncodeNoop() string { return "NOOP\r\n" }

// EncodeQuit builds the QUIT command line.
func EncodeQuit() string { return "QUIT\r\n" }

// EncodeVrfy builds the VRFY command line.
func EncodeVrfy(addr string) string {
	return fmt.Sprintf("VRFY %s\r\n", strings.TrimSpace(addr))
}
