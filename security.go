package smtpsend

import (
	"crypto/tls"

	"blitiri.com.ar/go/smtpsend/internal/smtp"
)

// SecurityMode selects how, or whether, TLS is used on a connection (spec
// §3's Security tagged union).
type SecurityMode = smtp.SecurityMode

const (
	// SecurityNone never attempts TLS.
	SecurityNone = smtp.SecurityNone

	// SecurityOpportunistic upgrades via STARTTLS if the relay advertises
	// it, and continues in plaintext otherwise.
	SecurityOpportunistic = smtp.SecurityOpportunistic

	// SecurityRequired upgrades via STARTTLS and fails the connection
	// (TlsRequired) if the relay does not offer it or the upgrade fails.
	SecurityRequired = smtp.SecurityRequired

	// SecurityWrapper performs the TLS handshake before any SMTP traffic,
	// the legacy "SMTPS" convention (commonly port 465).
	SecurityWrapper = smtp.SecurityWrapper
)

// Security bundles the security mode with the *tls.Config to apply when
// TLS is used. A nil Config uses Go's zero-value defaults plus the
// server name derived from the dial target.
type Security struct {
	Mode   SecurityMode
	Config *tls.Config
}

func (s Security) toInternal() smtp.Security {
	return smtp.Security{Mode: s.Mode, Config: s.Config}
}

// defaultPort returns the standard port for this security mode (spec
// §4.7): 25 for everything except SecurityWrapper, which defaults to 465.
func (s Security) defaultPort() string {
	if s.Mode == SecurityWrapper {
		return "465"
	}
	return "25"
}
