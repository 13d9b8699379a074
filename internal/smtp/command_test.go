package smtp

import (
	"strings"
	"testing"

	"blitiri.com.ar/go/smtpsend/internal/envelope"
)

func TestEncodeHello(t *testing.T) {
	id, _ := envelope.ParseClientId("mail.example.com")
	if got := EncodeHello(id, true); got != "EHLO mail.example.com\r\n" {
		t.Errorf("EHLO: got %q", got)
	}
	if got := EncodeHello(id, false); got != "HELO mail.example.com\r\n" {
		t.Errorf("HELO: got %q", got)
	}
}

func TestEncodeMailNullReversePath(t *testing.T) {
	line, err := EncodeMail(nil, false, false, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line != "MAIL FROM:<>\r\n" {
		t.Errorf("got %q, want MAIL FROM:<>\\r\\n", line)
	}
}

func TestEncodeMailWithExtensions(t *testing.T) {
	m, err := envelope.ParseMailbox("a@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	line, err := EncodeMail(&m, true, true, 1024, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(line, "MAIL FROM:<a@example.com>") {
		t.Errorf("got %q", line)
	}
	for _, want := range []string{"BODY=8BITMIME", "SMTPUTF8", "SIZE=1024"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if !strings.HasSuffix(line, "\r\n") {
		t.Errorf("line not CRLF-terminated: %q", line)
	}
}

func TestEncodeMailExtraParamsSorted(t *testing.T) {
	line, err := EncodeMail(nil, false, false, 0, MailParams{"RET": "HDRS", "ENVID": "abc"})
	if err != nil {
		t.Fatal(err)
	}
	wantOrder := strings.Index(line, "ENVID=abc") < strings.Index(line, "RET=HDRS")
	if !wantOrder {
		t.Errorf("expected ENVID before RET for determinism, got %q", line)
	}
}

func TestEncodeRcpt(t *testing.T) {
	m, _ := envelope.ParseMailbox("b@example.com", false)
	if got := EncodeRcpt(m); got != "RCPT TO:<b@example.com>\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeAuth(t *testing.T) {
	if got := EncodeAuth("PLAIN", ""); got != "AUTH PLAIN\r\n" {
		t.Errorf("got %q", got)
	}
	if got := EncodeAuth("PLAIN", "AGFAYg=="); got != "AUTH PLAIN AGFAYg==\r\n" {
		t.Errorf("got %q", got)
	}
}

func TestEncodeSimpleCommands(t *testing.T) {
	cases := map[string]string{
		EncodeData():     "DATA\r\n",
		EncodeRset():     "RSET\r\n",
		EncodeNoop():     "NOOP\r\n",
		EncodeQuit():     "QUIT\r\n",
		EncodeStartTLS(): "STARTTLS\r\n",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	}
}
