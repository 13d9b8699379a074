package smtp

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"time"
)

// maxReplyOctets bounds a single reply's accumulated text, independent of
// the per-line limit enforced in reply.go; it guards against a relay that
// keeps sending continuation lines forever.
const maxReplyOctets = 64 * 1024

// Transport wraps a net.Conn with the buffered reader the reply parser
// needs and the line writer the command encoder needs, plus the
// dot-stuffing/CRLF handling the DATA phase requires. It is deliberately
// thin: the state machine in client.go owns all protocol sequencing.
type Transport struct {
	conn net.Conn
	br   *bufio.Reader

	// readTimeout, writeTimeout and dataTimeout are applied as conn
	// deadlines around the corresponding operations (the connect timeout
	// is applied by Dial, before a Transport exists).
	readTimeout  time.Duration
	writeTimeout time.Duration
	dataTimeout  time.Duration
}

// NewTransport wraps an already-open connection.
func NewTransport(conn net.Conn, readTimeout, writeTimeout, dataTimeout time.Duration) *Transport {
	return &Transport{
		conn:         conn,
		br:           bufio.NewReaderSize(conn, 4096),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		dataTimeout:  dataTimeout,
	}
}

// Conn returns the underlying connection, e.g. for inspecting
// ConnectionState after a TLS upgrade.
func (t *Transport) Conn() net.Conn { return t.conn }

// IsTLS reports whether the current connection is a *tls.Conn.
func (t *Transport) IsTLS() bool {
	_, ok := t.conn.(*tls.Conn)
	return ok
}

// ReadReply reads and parses one (possibly multi-line) SMTP reply.
func (t *Transport) ReadReply() (*Reply, error) {
	if t.readTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout))
	}
	r, err := ReadReply(t.br)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// WriteLine writes a single pre-encoded command line (including its
// trailing CRLF) to the connection.
func (t *Transport) WriteLine(line string) error {
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if _, err := io.WriteString(t.conn, line); err != nil {
		return ioError(err)
	}
	return nil
}

// WriteLines writes several command lines back to back in a single Write,
// for PIPELINING (spec §4.6): the relay sees them as one TCP segment
// whenever possible, and replies are read back in the same order they were
// issued.
func (t *Transport) WriteLines(lines []string) error {
	if t.writeTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
	}
	if _, err := t.conn.Write(buf.Bytes()); err != nil {
		return ioError(err)
	}
	return nil
}

// UpgradeTLS performs the client side of a STARTTLS upgrade: it wraps the
// existing plaintext connection in a TLS client connection, handshakes, and
// (on success) replaces the transport's connection and buffered reader so
// all subsequent traffic is encrypted. The caller is responsible for having
// already sent STARTTLS and read its 220 reply. The old buffered reader is
// replaced, so any bytes it had already buffered past that reply are
// discarded (RFC 3207 has the server send nothing more before the
// handshake).
func (t *Transport) UpgradeTLS(config *tls.Config) error {
	tlsConn := tls.Client(t.conn, config)
	if t.writeTimeout > 0 {
		tlsConn.SetDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := tlsConn.Handshake(); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return &Error{Kind: Timeout, Err: err}
		}
		return &Error{Kind: Tls, Err: err}
	}
	t.conn = tlsConn
	t.br = bufio.NewReaderSize(tlsConn, 4096)
	return nil
}

// Close closes the underlying connection.
func (t *Transport) Close() error {
	return t.conn.Close()
}

// dataWriter wraps an io.Writer to perform dot-stuffing and CRLF
// normalization as bytes are written during the DATA phase (spec §4.7):
// bare LF and bare CR are rewritten to CRLF, and any line beginning with
// '.' has an extra '.' inserted. The state machine mirrors chasquid's
// internal/smtpsrv/dotreader.go read-side state machine, inverted for
// writing raw message bytes to the wire instead of parsing wire bytes back
// to raw form.
type dataWriter struct {
	w net.Conn

	// atLineStart is true when the next byte written would start a new
	// line (so a leading '.' needs stuffing).
	atLineStart bool

	// lastWasCR records whether the previous raw byte was a bare '\r', so a
	// following '\n' isn't turned into "\r\r\n".
	lastWasCR bool

	timeout time.Duration
	buf     bytes.Buffer
}

func newDataWriter(conn net.Conn, timeout time.Duration) *dataWriter {
	return &dataWriter{w: conn, atLineStart: true, timeout: timeout}
}

func (d *dataWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\r':
			d.buf.WriteString("\r\n")
			d.lastWasCR = true
			d.atLineStart = true
			continue
		case '\n':
			if !d.lastWasCR {
				d.buf.WriteString("\r\n")
			}
			d.lastWasCR = false
			d.atLineStart = true
			continue
		default:
			if d.atLineStart && b == '.' {
				d.buf.WriteByte('.')
			}
			d.buf.WriteByte(b)
			d.atLineStart = false
			d.lastWasCR = false
		}
	}
	return len(p), nil
}

// Flush sends the terminating CRLF.CRLF sequence and writes all buffered
// bytes, honoring the data timeout across the whole operation.
func (d *dataWriter) Flush() error {
	if !d.atLineStart {
		d.buf.WriteString("\r\n")
	}
	d.buf.WriteString(".\r\n")

	if d.timeout > 0 {
		d.w.SetWriteDeadline(time.Now().Add(d.timeout))
	}
	if _, err := d.w.Write(d.buf.Bytes()); err != nil {
		return ioError(err)
	}
	return nil
}

// WriteData sends body as a dot-stuffed, CRLF-normalized message body
// followed by the terminating "." line, all within the transport's data
// timeout.
func (t *Transport) WriteData(body []byte) error {
	dw := newDataWriter(t.conn, t.dataTimeout)
	if _, err := dw.Write(body); err != nil {
		return err
	}
	return dw.Flush()
}
