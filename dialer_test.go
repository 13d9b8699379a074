package smtpsend

import (
	"testing"
	"time"
)

func TestNewDialerDefaults(t *testing.T) {
	d := NewDialer("relay.example.com")
	if d.resolvedPort() != "25" {
		t.Errorf("default port = %q, want 25", d.resolvedPort())
	}
	if len(d.mechanisms) != len(DefaultMechanisms) {
		t.Errorf("default mechanisms = %v, want %v", d.mechanisms, DefaultMechanisms)
	}
	if d.reuse != NoReuse {
		t.Errorf("default reuse = %v, want NoReuse", d.reuse)
	}
	if d.timeout != 60*time.Second {
		t.Errorf("default timeout = %v, want 60s", d.timeout)
	}
}

func TestDialerWithPortOverridesSecurityDefault(t *testing.T) {
	d := NewDialer("relay.example.com").WithSecurity(Security{Mode: SecurityWrapper})
	if got := d.resolvedPort(); got != "465" {
		t.Errorf("SecurityWrapper default port = %q, want 465", got)
	}

	d.WithPort("2525")
	if got := d.resolvedPort(); got != "2525" {
		t.Errorf("WithPort override = %q, want 2525", got)
	}
}

func TestNewSenderDoesNotDial(t *testing.T) {
	// Point at a reserved address that would refuse or hang if dialed, to
	// make sure NewSender itself performs no network I/O.
	d := NewDialer("192.0.2.1").WithTimeout(time.Millisecond)
	s := d.NewSender()
	if s.State() != Disconnected {
		t.Errorf("state after NewSender = %s, want Disconnected (lazy dial)", s.State())
	}
}
