package smtpsend

import (
	"net"
	"time"

	"blitiri.com.ar/go/smtpsend/internal/smtp"
)

// Dialer is the builder-style configuration for reaching and
// authenticating to a relay (spec §4.7). The zero value is not usable;
// construct one with NewDialer.
type Dialer struct {
	host string
	port string

	security    Security
	helloName   ClientId
	credentials *Credentials
	smtpUTF8    bool
	mechanisms  []string
	reuse       ReusePolicy
	timeout     time.Duration
}

// NewDialer returns a Dialer targeting host with the package defaults:
// Security None, hello name "localhost", mechanisms [PLAIN, LOGIN],
// NoReuse, and a 60 second timeout applied to connect, each read, each
// write, and the body transfer. Port defaults per Security (25, or 465 for
// SecurityWrapper) unless overridden with WithPort.
func NewDialer(host string) *Dialer {
	return &Dialer{
		host:       host,
		helloName:  ClientId("localhost"),
		mechanisms: DefaultMechanisms,
		reuse:      NoReuse,
		timeout:    60 * time.Second,
	}
}

// WithPort overrides the default port for the configured Security.
func (d *Dialer) WithPort(port string) *Dialer {
	d.port = port
	return d
}

// WithSecurity sets the TLS mode and configuration.
func (d *Dialer) WithSecurity(s Security) *Dialer {
	d.security = s
	return d
}

// WithHelloName sets the EHLO/HELO client identity.
func (d *Dialer) WithHelloName(id ClientId) *Dialer {
	d.helloName = id
	return d
}

// WithCredentials enables authentication once connected.
func (d *Dialer) WithCredentials(creds Credentials) *Dialer {
	d.credentials = &creds
	return d
}

// WithSMTPUTF8 records that the caller intends to use internationalized
// mailboxes. The setting is stored on the Dialer but does not change what
// Send does: Send fails with UnsupportedUtf8 whenever an envelope mailbox
// needs SMTPUTF8 and the relay doesn't negotiate the extension.
func (d *Dialer) WithSMTPUTF8(enabled bool) *Dialer {
	d.smtpUTF8 = enabled
	return d
}

// WithMechanisms overrides the SASL mechanism preference order.
func (d *Dialer) WithMechanisms(names ...string) *Dialer {
	d.mechanisms = names
	return d
}

// WithReuse overrides the connection reuse policy.
func (d *Dialer) WithReuse(p ReusePolicy) *Dialer {
	d.reuse = p
	return d
}

// WithTimeout overrides the timeout applied uniformly to connect, reply
// reads, writes, and the body transfer.
func (d *Dialer) WithTimeout(t time.Duration) *Dialer {
	d.timeout = t
	return d
}

func (d *Dialer) resolvedPort() string {
	if d.port != "" {
		return d.port
	}
	return d.security.defaultPort()
}

func (d *Dialer) clientConfig() smtp.ClientConfig {
	t := d.timeout
	return smtp.ClientConfig{
		HelloName:   d.helloName,
		Security:    d.security.toInternal(),
		ServerName:  d.host,
		Credentials: d.credentials,
		Mechanisms:  d.mechanisms,
		Reuse:       d.reuse,
		Timeouts:    smtp.Timeouts{Connect: t, Read: t, Write: t, Data: t},
	}
}

// NewSender returns a Sender bound to this Dialer's configuration. No
// network activity happens yet; the connection is established lazily by
// the first Send call.
func (d *Dialer) NewSender() *Sender {
	addr := net.JoinHostPort(d.host, d.resolvedPort())
	return &Sender{dialer: d, addr: addr}
}
