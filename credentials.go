package smtpsend

import "blitiri.com.ar/go/smtpsend/internal/smtp"

// Credentials authenticates to a relay over SASL. Secret is never logged
// or included in an error. Sender.Close clears the Dialer's stored copy
// with Credentials.Zero, which drops the strings rather than overwriting
// their bytes; a connection closed by the reuse policy or by a failure
// does not clear it.
type Credentials = smtp.Credentials

// Mechanism names recognized by the built-in SASL authenticator, for use
// with Dialer.WithMechanisms.
const (
	MechanismPlain   = "PLAIN"
	MechanismLogin   = "LOGIN"
	MechanismCramMD5 = "CRAM-MD5"
)

// DefaultMechanisms is the preference order used when
// Dialer.WithMechanisms is not called: PLAIN and LOGIN.
var DefaultMechanisms = []string{MechanismPlain, MechanismLogin}
