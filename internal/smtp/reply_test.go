package smtp

import (
	"bufio"
	"strings"
	"testing"
)

func mustReadReply(t *testing.T, raw string) *Reply {
	t.Helper()
	r, err := ReadReply(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("ReadReply(%q): unexpected error: %v", raw, err)
	}
	return r
}

func TestReadReplySingleLine(t *testing.T) {
	r := mustReadReply(t, "250 ok\r\n")
	if r.Code != 250 {
		t.Errorf("code = %d, want 250", r.Code)
	}
	if len(r.Lines) != 1 || r.Lines[0] != "ok" {
		t.Errorf("lines = %v, want [ok]", r.Lines)
	}
	if !r.Positive() {
		t.Errorf("expected Positive()")
	}
}

func TestReadReplyMultiLine(t *testing.T) {
	r := mustReadReply(t, "250-first\r\n250-second\r\n250 third\r\n")
	want := []string{"first", "second", "third"}
	if len(r.Lines) != len(want) {
		t.Fatalf("lines = %v, want %v", r.Lines, want)
	}
	for i := range want {
		if r.Lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, r.Lines[i], want[i])
		}
	}
}

func TestReadReplyEnhancedStatus(t *testing.T) {
	r := mustReadReply(t, "550 5.1.1 mailbox unavailable\r\n")
	if r.Enhanced != "5.1.1" {
		t.Errorf("enhanced = %q, want 5.1.1", r.Enhanced)
	}
	if len(r.Lines) != 1 || r.Lines[0] != "mailbox unavailable" {
		t.Errorf("lines = %v", r.Lines)
	}
}

func TestReadReplyEnhancedStatusWrongClass(t *testing.T) {
	// The enhanced code's class must match the reply code's class, or it's
	// left as ordinary text.
	r := mustReadReply(t, "250 2.1.1 ok\r\n")
	if r.Enhanced != "2.1.1" {
		t.Errorf("enhanced = %q, want 2.1.1", r.Enhanced)
	}

	r = mustReadReply(t, "550 2.1.1 mismatched class\r\n")
	if r.Enhanced != "" {
		t.Errorf("enhanced = %q, want empty (class mismatch)", r.Enhanced)
	}
}

func TestReadReplyMismatchedCode(t *testing.T) {
	_, err := ReadReply(bufio.NewReader(strings.NewReader("250-a\r\n251 b\r\n")))
	if err == nil {
		t.Fatalf("expected error for mismatched reply code")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != MalformedReply {
		t.Errorf("err = %v, want MalformedReply", err)
	}
}

func TestReadReplyNoCRLF(t *testing.T) {
	_, err := ReadReply(bufio.NewReader(strings.NewReader("250 ok\n")))
	if err == nil {
		t.Fatalf("expected error for bare LF")
	}
}

func TestReadReplyLineTooLong(t *testing.T) {
	long := "250 " + strings.Repeat("x", 600) + "\r\n"
	_, err := ReadReply(bufio.NewReader(strings.NewReader(long)))
	if err == nil {
		t.Fatalf("expected LineTooLong error")
	}
	e, ok := err.(*Error)
	if !ok || e.Kind != LineTooLong {
		t.Errorf("err = %v, want LineTooLong", err)
	}
}

func TestReplyClassification(t *testing.T) {
	cases := []struct {
		code                                       int
		positive, intermediate, transient, permanent bool
	}{
		{250, true, false, false, false},
		{354, false, true, false, false},
		{450, false, false, true, false},
		{550, false, false, false, true},
	}
	for _, c := range cases {
		r := &Reply{Code: c.code}
		if r.Positive() != c.positive {
			t.Errorf("code %d: Positive() = %v, want %v", c.code, r.Positive(), c.positive)
		}
		if r.Intermediate() != c.intermediate {
			t.Errorf("code %d: Intermediate() = %v, want %v", c.code, r.Intermediate(), c.intermediate)
		}
		if r.Transient() != c.transient {
			t.Errorf("code %d: Transient() = %v, want %v", c.code, r.Transient(), c.transient)
		}
		if r.Permanent() != c.permanent {
			t.Errorf("code %d: Permanent() = %v, want %v", c.code, r.Permanent(), c.permanent)
		}
	}
}
