package smtp

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Credentials carries the identity used to authenticate to a relay (spec
// §3). Secret is never logged.
type Credentials struct {
	User   string
	Secret string
}

// Zero drops the credential's references so they don't outlive the
// connection. Go strings are immutable, so this releases the secret for
// garbage collection rather than overwriting its backing bytes in place;
// callers who need the latter should supply the secret via a []byte and
// convert it just before Dial.
func (c *Credentials) Zero() {
	c.Secret = ""
	c.User = ""
}

// mechanism is the client side of a single SASL mechanism: it builds the
// initial response (if the mechanism supports one) and, for mechanisms
// that need a challenge from the server, turns that challenge into the
// next response. This mirrors the server-side decoding in chasquid's
// internal/auth.DecodeResponse, read in reverse to produce an encoder
// instead of a decoder.
type mechanism interface {
	// Name is the mechanism's wire name, e.g. "PLAIN".
	Name() string

	// InitialResponse returns the base64 response to send with the AUTH
	// command itself, and whether this mechanism supports one at all.
	InitialResponse(creds Credentials) (string, bool)

	// Challenge turns a base64-encoded server challenge into the next
	// base64-encoded client response.
	Challenge(creds Credentials, challenge string) (string, error)
}

type plainMechanism struct{}

func (plainMechanism) Name() string { return "PLAIN" }

func (plainMechanism) InitialResponse(creds Credentials) (string, bool) {
	// authzid NUL authcid NUL passwd, RFC 4616.
	msg := "\x00" + creds.User + "\x00" + creds.Secret
	return base64.StdEncoding.EncodeToString([]byte(msg)), true
}

func (plainMechanism) Challenge(creds Credentials, challenge string) (string, error) {
	return "", fmt.Errorf("PLAIN does not expect a server challenge")
}

type loginMechanism struct{}

func (loginMechanism) Name() string { return "LOGIN" }

func (loginMechanism) InitialResponse(creds Credentials) (string, bool) {
	return "", false
}

func (loginMechanism) Challenge(creds Credentials, challenge string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return "", fmt.Errorf("malformed LOGIN challenge: %w", err)
	}
	switch string(raw) {
	case "Username:", "Username":
		return base64.StdEncoding.EncodeToString([]byte(creds.User)), nil
	case "Password:", "Password":
		return base64.StdEncoding.EncodeToString([]byte(creds.Secret)), nil
	default:
		// Any other challenge, including an empty one, is answered with
		// the username; the password is only sent in reply to a
		// "Password" prompt.
		return base64.StdEncoding.EncodeToString([]byte(creds.User)), nil
	}
}

type cramMD5Mechanism struct{}

func (cramMD5Mechanism) Name() string { return "CRAM-MD5" }

func (cramMD5Mechanism) InitialResponse(creds Credentials) (string, bool) {
	return "", false
}

func (cramMD5Mechanism) Challenge(creds Credentials, challenge string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(challenge)
	if err != nil {
		return "", fmt.Errorf("malformed CRAM-MD5 challenge: %w", err)
	}

	mac := hmac.New(md5.New, []byte(creds.Secret))
	mac.Write(raw)
	digest := hex.EncodeToString(mac.Sum(nil))

	resp := creds.User + " " + digest
	return base64.StdEncoding.EncodeToString([]byte(resp)), nil
}

// mechanismsByName maps the mechanism names this client implements to
// their encoders. Preference order is given separately (see
// DefaultMechanismOrder).
var mechanismsByName = map[string]mechanism{
	"PLAIN":    plainMechanism{},
	"LOGIN":    loginMechanism{},
	"CRAM-MD5": cramMD5Mechanism{},
}

// DefaultMechanismOrder is the preference order used when the caller
// doesn't specify one (spec §3): PLAIN and LOGIN are universally
// supported; CRAM-MD5 avoids sending the secret but needs it in the clear
// locally, so it's preferred over PLAIN/LOGIN when advertised.
var DefaultMechanismOrder = []string{"CRAM-MD5", "PLAIN", "LOGIN"}

// SelectMechanism picks the first mechanism in preferred that the server
// advertised in supported. It returns an error of kind AuthNoMechanism if
// none match.
func SelectMechanism(preferred []string, supported *ExtensionSet) (mechanism, error) {
	for _, name := range preferred {
		m, ok := mechanismsByName[name]
		if !ok {
			continue
		}
		if supported.SupportsMechanism(name) {
			return m, nil
		}
	}
	return nil, &Error{Kind: AuthNoMechanism,
		Err: fmt.Errorf("no common SASL mechanism between %v and server's advertised list", preferred)}
}
