package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"blitiri.com.ar/go/smtpsend"
)

func writeProfile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "profile.yaml")
	if err := ioutil.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRequiresHost(t *testing.T) {
	path := writeProfile(t, "security: none\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing host")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(os.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestProfileDialerDefaults(t *testing.T) {
	path := writeProfile(t, "host: smtp.example.com\n")
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	d, err := p.Dialer()
	if err != nil {
		t.Fatal(err)
	}
	if d == nil {
		t.Fatal("Dialer returned nil")
	}
}

func TestProfileDialerFullySpecified(t *testing.T) {
	path := writeProfile(t, `
host: smtp.example.com
port: 587
security: starttls-required
hello_name: client.example.org
username: alice
password: hunter2
mechanisms: [login, plain]
reuse: unlimited
timeout: 45s
`)
	p, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if p.Timeout != "45s" {
		t.Errorf("timeout = %q, want 45s", p.Timeout)
	}

	if _, err := p.Dialer(); err != nil {
		t.Fatalf("Dialer: %v", err)
	}
}

func TestProfileDialerInvalidTimeout(t *testing.T) {
	p := &Profile{Host: "smtp.example.com", Timeout: "not-a-duration"}
	if _, err := p.Dialer(); err == nil {
		t.Fatalf("expected error for invalid timeout")
	}
}

func TestSecurityModeMapping(t *testing.T) {
	cases := map[string]smtpsend.SecurityMode{
		"":                  smtpsend.SecurityNone,
		"none":              smtpsend.SecurityNone,
		"starttls":          smtpsend.SecurityOpportunistic,
		"opportunistic":     smtpsend.SecurityOpportunistic,
		"starttls-required": smtpsend.SecurityRequired,
		"required":          smtpsend.SecurityRequired,
		"wrapper":           smtpsend.SecurityWrapper,
		"implicit-tls":      smtpsend.SecurityWrapper,
		"smtps":             smtpsend.SecurityWrapper,
	}
	for raw, want := range cases {
		p := &Profile{Host: "x", Security: raw}
		sec, err := p.security()
		if err != nil {
			t.Errorf("security(%q): %v", raw, err)
			continue
		}
		if sec.Mode != want {
			t.Errorf("security(%q) = %v, want %v", raw, sec.Mode, want)
		}
	}
}

func TestSecurityModeUnknown(t *testing.T) {
	p := &Profile{Host: "x", Security: "bogus"}
	if _, err := p.security(); err == nil {
		t.Fatalf("expected error for unknown security mode")
	}
}

func TestReusePolicyMapping(t *testing.T) {
	p := &Profile{Host: "x", Reuse: "unlimited"}
	r, err := p.reusePolicy()
	if err != nil || r != smtpsend.ReuseUnlimited {
		t.Errorf("reusePolicy(unlimited) = %v, %v", r, err)
	}

	p = &Profile{Host: "x", Reuse: "3"}
	r, err = p.reusePolicy()
	if err != nil || r != smtpsend.ReuseLimited(3) {
		t.Errorf("reusePolicy(3) = %v, %v", r, err)
	}

	p = &Profile{Host: "x", Reuse: "not-a-number"}
	if _, err := p.reusePolicy(); err == nil {
		t.Fatalf("expected error for invalid reuse policy")
	}
}

func TestNormalizeMechanism(t *testing.T) {
	cases := map[string]string{
		"plain":    smtpsend.MechanismPlain,
		"PLAIN":    smtpsend.MechanismPlain,
		"login":    smtpsend.MechanismLogin,
		"cram-md5": smtpsend.MechanismCramMD5,
		"cram_md5": smtpsend.MechanismCramMD5,
		"xoauth2":  "xoauth2",
	}
	for raw, want := range cases {
		if got := normalizeMechanism(raw); got != want {
			t.Errorf("normalizeMechanism(%q) = %q, want %q", raw, got, want)
		}
	}
}
