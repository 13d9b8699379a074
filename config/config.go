// Package config loads a submission profile: the set of parameters a
// caller needs to reach and authenticate to one relay, as YAML. It exists
// so command-line tools and long-running services built on top of
// blitiri.com.ar/go/smtpsend don't each reinvent a way to describe "the
// relay to submit through".
package config

import (
	"fmt"
	"io/ioutil"
	"time"

	"gopkg.in/yaml.v2"

	"blitiri.com.ar/go/smtpsend"
)

// Profile is the on-disk representation of a submission target.
//
// Example:
//
//	host: smtp.example.com
//	port: 587
//	security: starttls
//	hello_name: client.example.org
//	username: alice
//	password: hunter2
//	mechanisms: [plain, login]
//	reuse: unlimited
//	timeout: 30s
type Profile struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port,omitempty"`

	// Security is one of "none", "starttls", "starttls-required", or
	// "wrapper" (the legacy implicit-TLS convention on port 465).
	Security string `yaml:"security"`

	HelloName string `yaml:"hello_name,omitempty"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	SMTPUTF8   bool     `yaml:"smtp_utf8,omitempty"`
	Mechanisms []string `yaml:"mechanisms,omitempty"`

	// Reuse is one of "none" (default), "unlimited", or an integer string
	// giving the number of additional messages allowed per connection.
	Reuse string `yaml:"reuse,omitempty"`

	// Timeout is a duration string as accepted by time.ParseDuration (e.g.
	// "30s"). yaml.v2 has no native time.Duration support, so this is
	// parsed explicitly in Dialer rather than unmarshaled directly.
	Timeout string `yaml:"timeout,omitempty"`
}

// Load reads and parses a Profile from path.
func Load(path string) (*Profile, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %q: %w", path, err)
	}

	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", path, err)
	}

	if p.Host == "" {
		return nil, fmt.Errorf("config %q: host is required", path)
	}

	return p, nil
}

// Dialer builds a *smtpsend.Dialer from the profile.
func (p *Profile) Dialer() (*smtpsend.Dialer, error) {
	d := smtpsend.NewDialer(p.Host)

	if p.Port != 0 {
		d.WithPort(fmt.Sprintf("%d", p.Port))
	}

	sec, err := p.security()
	if err != nil {
		return nil, err
	}
	d.WithSecurity(sec)

	if p.HelloName != "" {
		id, err := smtpsend.ParseClientId(p.HelloName)
		if err != nil {
			return nil, fmt.Errorf("hello_name: %w", err)
		}
		d.WithHelloName(id)
	}

	if p.Username != "" {
		d.WithCredentials(smtpsend.Credentials{User: p.Username, Secret: p.Password})
	}

	if p.SMTPUTF8 {
		d.WithSMTPUTF8(true)
	}

	if len(p.Mechanisms) > 0 {
		names := make([]string, len(p.Mechanisms))
		for i, m := range p.Mechanisms {
			names[i] = normalizeMechanism(m)
		}
		d.WithMechanisms(names...)
	}

	reuse, err := p.reusePolicy()
	if err != nil {
		return nil, err
	}
	d.WithReuse(reuse)

	if p.Timeout != "" {
		timeout, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return nil, fmt.Errorf("timeout: %w", err)
		}
		d.WithTimeout(timeout)
	}

	return d, nil
}

func normalizeMechanism(m string) string {
	switch m {
	case "plain", "PLAIN":
		return smtpsend.MechanismPlain
	case "login", "LOGIN":
		return smtpsend.MechanismLogin
	case "cram-md5", "CRAM-MD5", "cram_md5":
		return smtpsend.MechanismCramMD5
	default:
		return m
	}
}

func (p *Profile) security() (smtpsend.Security, error) {
	switch p.Security {
	case "", "none":
		return smtpsend.Security{Mode: smtpsend.SecurityNone}, nil
	case "starttls", "opportunistic":
		return smtpsend.Security{Mode: smtpsend.SecurityOpportunistic}, nil
	case "starttls-required", "required":
		return smtpsend.Security{Mode: smtpsend.SecurityRequired}, nil
	case "wrapper", "implicit-tls", "smtps":
		return smtpsend.Security{Mode: smtpsend.SecurityWrapper}, nil
	default:
		return smtpsend.Security{}, fmt.Errorf("unknown security mode %q", p.Security)
	}
}

func (p *Profile) reusePolicy() (smtpsend.ReusePolicy, error) {
	switch p.Reuse {
	case "", "none":
		return smtpsend.NoReuse, nil
	case "unlimited":
		return smtpsend.ReuseUnlimited, nil
	default:
		var n int
		if _, err := fmt.Sscanf(p.Reuse, "%d", &n); err != nil || n < 0 {
			return smtpsend.ReusePolicy{}, fmt.Errorf("invalid reuse policy %q", p.Reuse)
		}
		return smtpsend.ReuseLimited(n), nil
	}
}
