package smtp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseExtensions(t *testing.T) {
	lines := []string{
		"mail.example.com greets you",
		"8BITMIME",
		"SMTPUTF8",
		"STARTTLS",
		"PIPELINING",
		"AUTH PLAIN LOGIN CRAM-MD5",
		"SIZE 35882577",
		"X-CUSTOM foo bar",
	}

	es := ParseExtensions(lines)

	want := &ExtensionSet{
		EightBitMIME:   true,
		SMTPUTF8:       true,
		StartTLS:       true,
		Pipelining:     true,
		AuthMechanisms: []string{"PLAIN", "LOGIN", "CRAM-MD5"},
		SizeLimit:      35882577,
		Other:          map[string][]string{"X-CUSTOM": {"foo", "bar"}},
	}
	if diff := cmp.Diff(want, es); diff != "" {
		t.Errorf("ParseExtensions mismatch (-want +got):\n%s", diff)
	}
	for _, m := range []string{"PLAIN", "LOGIN", "CRAM-MD5"} {
		if !es.SupportsMechanism(m) {
			t.Errorf("expected mechanism %s to be supported", m)
		}
	}
	if es.SupportsMechanism("XOAUTH2") {
		t.Errorf("did not expect XOAUTH2 to be supported")
	}
}

func TestParseExtensionsEmpty(t *testing.T) {
	es := ParseExtensions([]string{"mail.example.com greets you"})
	if es.EightBitMIME || es.StartTLS || es.Pipelining || len(es.AuthMechanisms) != 0 {
		t.Errorf("expected no extensions, got %+v", es)
	}
}

func TestParseExtensionsCaseInsensitive(t *testing.T) {
	es := ParseExtensions([]string{"greeting", "starttls", "auth plain"})
	if !es.StartTLS {
		t.Errorf("expected lowercase starttls to be recognized")
	}
	if !es.SupportsMechanism("plain") {
		t.Errorf("expected case-insensitive mechanism match")
	}
}
