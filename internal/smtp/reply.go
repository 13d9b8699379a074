package smtp

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// maxReplyLineLength is the largest reply line this parser accepts,
// including the trailing CRLF (RFC 5321 section 4.5.3.1.5).
const maxReplyLineLength = 512

// Reply is a parsed SMTP response: a three-digit code shared by every line
// of a (possibly multi-line) reply, an optional RFC 3463 enhanced status
// code extracted from the first word of each line's text, and the ordered
// text lines themselves.
type Reply struct {
	Code     int
	Enhanced string // e.g. "2.1.0", empty if not present.
	Lines    []string

	// RecipientResults holds, for a successful MAIL/RCPT/DATA transaction,
	// the per-recipient outcome of each RCPT TO (spec §7: "the per-recipient
	// outcomes are attached to the successful reply for observability").
	// It is only populated by Client.Send, never by ReadReply on its own.
	RecipientResults []RecipientResult
}

// RecipientResult is the outcome of a single RCPT TO within a transaction.
type RecipientResult struct {
	Mailbox string
	Reply   *Reply
}

// Positive reports whether the reply is 2xx (positive completion).
func (r *Reply) Positive() bool { return r.Code >= 200 && r.Code < 300 }

// Intermediate reports whether the reply is 3xx (positive intermediate).
func (r *Reply) Intermediate() bool { return r.Code >= 300 && r.Code < 400 }

// Transient reports whether the reply is 4xx (transient negative).
func (r *Reply) Transient() bool { return r.Code >= 400 && r.Code < 500 }

// Permanent reports whether the reply is 5xx (permanent negative).
func (r *Reply) Permanent() bool { return r.Code >= 500 && r.Code < 600 }

// Text joins the reply's lines with "; ", for use in error messages.
func (r *Reply) Text() string {
	return strings.Join(r.Lines, "; ")
}

func (r *Reply) String() string {
	return fmt.Sprintf("%d %s", r.Code, r.Text())
}

// ReadReply reads one (possibly multi-line) SMTP reply from br.
//
// A multi-line reply is a sequence of lines "NNN-text" followed by a
// terminating "NNN text" (note the space): all lines must share the same
// three-digit code, or the reply is malformed.
func ReadReply(br *bufio.Reader) (*Reply, error) {
	reply := &Reply{}
	size := 0

	for {
		line, err := readLine(br)
		if err != nil {
			return nil, err
		}

		size += len(line) + 2
		if size > maxReplyOctets {
			return nil, &Error{Kind: MalformedReply,
				Err: fmt.Errorf("reply exceeds %d octets", maxReplyOctets)}
		}

		if len(line) < 4 {
			return nil, &Error{Kind: MalformedReply,
				Err: fmt.Errorf("reply line too short: %q", line)}
		}

		codeStr := line[:3]
		sep := line[3]
		text := line[4:]

		code, err := strconv.Atoi(codeStr)
		if err != nil || code < 200 || code > 599 {
			return nil, &Error{Kind: MalformedReply,
				Err: fmt.Errorf("invalid reply code: %q", codeStr)}
		}

		if reply.Code == 0 {
			reply.Code = code
		} else if reply.Code != code {
			return nil, &Error{Kind: MalformedReply,
				Err: fmt.Errorf("reply code changed mid-message: %d != %d",
					reply.Code, code)}
		}

		text, enhanced := splitEnhanced(text, code)
		if enhanced != "" {
			reply.Enhanced = enhanced
		}
		reply.Lines = append(reply.Lines, text)

		switch sep {
		case ' ':
			// Terminating line.
			return reply, nil
		case '-':
			// Continuation, keep reading.
			continue
		default:
			return nil, &Error{Kind: MalformedReply,
				Err: fmt.Errorf("invalid reply separator: %q", sep)}
		}
	}
}

// readLine reads a single CRLF-terminated line, without the CRLF, enforcing
// the maximum reply line length.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			return "", ioError(err)
		}

		if b == '\n' {
			if len(buf) == 0 || buf[len(buf)-1] != '\r' {
				return "", &Error{Kind: MalformedReply,
					Err: fmt.Errorf("reply line not terminated by CRLF")}
			}
			return string(buf[:len(buf)-1]), nil
		}

		buf = append(buf, b)
		// +2 accounts for the CRLF we haven't seen yet.
		if len(buf)+2 > maxReplyLineLength {
			// Keep draining the line so the connection doesn't desync,
			// but report the failure.
			for {
				b, err := br.ReadByte()
				if err != nil {
					return "", ioError(err)
				}
				if b == '\n' {
					return "", &Error{Kind: LineTooLong,
						Err: fmt.Errorf("reply line exceeds %d octets", maxReplyLineLength)}
				}
			}
		}
	}
}

// splitEnhanced extracts a leading enhanced status code (RFC 3463, "X.Y.Z")
// from text, if the first class digit matches the reply's own class.
// It returns the text with the code (and following space) stripped, and the
// enhanced code itself (empty if none was found).
func splitEnhanced(text string, code int) (string, string) {
	sp := strings.IndexByte(text, ' ')
	var tok string
	if sp < 0 {
		tok = text
	} else {
		tok = text[:sp]
	}

	parts := strings.SplitN(tok, ".", 3)
	if len(parts) != 3 {
		return text, ""
	}

	class, err := strconv.Atoi(parts[0])
	if err != nil || class != code/100 {
		return text, ""
	}
	for _, p := range parts[1:] {
		if p == "" {
			return text, ""
		}
		if _, err := strconv.Atoi(p); err != nil {
			return text, ""
		}
	}

	if sp < 0 {
		return "", tok
	}
	return text[sp+1:], tok
}
