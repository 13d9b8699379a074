package smtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"blitiri.com.ar/go/smtpsend/internal/envelope"
	"blitiri.com.ar/go/smtpsend/internal/trace"
)

// State is the connection's position in the lifecycle state machine (spec
// §3, §4.6).
type State int

const (
	Disconnected State = iota
	Connected
	HandshakeDone
	Authenticated
	Idle
	InMail
	InRcpt
	InData
	Closing
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case HandshakeDone:
		return "handshake done"
	case Authenticated:
		return "authenticated"
	case Idle:
		return "idle"
	case InMail:
		return "in mail"
	case InRcpt:
		return "in rcpt"
	case InData:
		return "in data"
	case Closing:
		return "closing"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// SecurityMode selects how (and whether) TLS is used on a connection.
type SecurityMode int

const (
	// SecurityNone never attempts TLS.
	SecurityNone SecurityMode = iota
	// SecurityOpportunistic upgrades via STARTTLS if advertised, and
	// continues in plaintext if not.
	SecurityOpportunistic
	// SecurityRequired upgrades via STARTTLS and fails the connection if
	// it is unavailable.
	SecurityRequired
	// SecurityWrapper performs the TLS handshake before any SMTP traffic
	// (the legacy "SMTPS" convention, historically port 465).
	SecurityWrapper
)

// Security bundles the security mode with the TLS configuration to use
// when TLS is in play (spec §3's Security tagged union).
type Security struct {
	Mode   SecurityMode
	Config *tls.Config
}

// ReusePolicy governs how many transactions may share one connection (spec
// §3, §4.6).
type ReusePolicy struct {
	// Unlimited, when true, means the connection is reused indefinitely.
	Unlimited bool

	// Limit is the number of additional transactions allowed when
	// Unlimited is false. A zero Limit with Unlimited false is NoReuse.
	Limit int
}

// NoReuse never reuses a connection across Send calls.
var NoReuse = ReusePolicy{}

// ReuseLimited allows n additional transactions on the same connection.
func ReuseLimited(n int) ReusePolicy { return ReusePolicy{Limit: n} }

// ReuseUnlimited allows unbounded reuse of the same connection.
var ReuseUnlimited = ReusePolicy{Unlimited: true}

func (p ReusePolicy) allowsAnother() bool {
	return p.Unlimited || p.Limit > 0
}

func (p *ReusePolicy) consume() {
	if !p.Unlimited && p.Limit > 0 {
		p.Limit--
	}
}

// Timeouts bundles the independent timeouts the engine applies (spec §5).
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
	Data    time.Duration
}

// DefaultTimeouts matches the façade default of 60s applied uniformly.
func DefaultTimeouts() Timeouts {
	d := 60 * time.Second
	return Timeouts{Connect: d, Read: d, Write: d, Data: d}
}

// ClientConfig groups the per-connection parameters the state machine
// needs, independent of the façade's own builder surface (spec §4.7
// separates façade concerns from engine concerns; ClientConfig is what the
// façade hands the engine).
type ClientConfig struct {
	HelloName   envelope.ClientId
	Security    Security
	ServerName  string // used for TLS SNI/verification.
	Credentials *Credentials
	Mechanisms  []string // preference order; defaults to DefaultMechanismOrder.
	Reuse       ReusePolicy
	Timeouts    Timeouts
}

// Client drives one connection through the protocol state machine.
type Client struct {
	cfg   ClientConfig
	state State

	transport *Transport
	ext       *ExtensionSet

	reuse ReusePolicy

	tr *trace.Trace
}

// Dial opens a TCP (or, for SecurityWrapper, TLS) connection to addr and
// drives it through Connect, STARTTLS (if applicable), and AUTH (if
// credentials are set), leaving the client in Idle on success.
func Dial(addr string, cfg ClientConfig) (*Client, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeouts.Connect}

	var conn net.Conn
	var err error
	if cfg.Security.Mode == SecurityWrapper {
		tlsCfg := cfg.Security.Config
		if tlsCfg == nil {
			tlsCfg = &tls.Config{}
		}
		if tlsCfg.ServerName == "" && cfg.ServerName != "" {
			c := tlsCfg.Clone()
			c.ServerName = cfg.ServerName
			tlsCfg = c
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsCfg)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, &Error{Kind: Timeout, Err: err}
		}
		return nil, &Error{Kind: Resolution, Err: err}
	}

	return newClient(conn, addr, cfg)
}

// newClient drives the handshake over an already-open connection. It is
// split out from Dial so tests can supply a fake net.Conn directly.
func newClient(conn net.Conn, label string, cfg ClientConfig) (*Client, error) {
	c := &Client{
		cfg:       cfg,
		state:     Disconnected,
		transport: NewTransport(conn, cfg.Timeouts.Read, cfg.Timeouts.Write, cfg.Timeouts.Data),
		reuse:     cfg.Reuse,
		tr:        trace.New("smtpsend.Client", label),
	}
	c.tr.Debugf("dialed, security=%v", cfg.Security.Mode)

	if err := c.handshake(); err != nil {
		c.tr.Error(err)
		conn.Close()
		c.state = Failed
		return nil, err
	}

	c.tr.Debugf("handshake complete, state=%s", c.state)
	return c, nil
}

// State returns the client's current lifecycle state.
func (c *Client) State() State { return c.state }

// Extensions returns the most recently negotiated extension set.
func (c *Client) Extensions() *ExtensionSet { return c.ext }

// TLSConnectionState returns the negotiated TLS parameters and true if the
// connection is currently running over TLS (either via STARTTLS or
// SecurityWrapper), or false if the connection is plaintext.
func (c *Client) TLSConnectionState() (tls.ConnectionState, bool) {
	tc, ok := c.transport.Conn().(*tls.Conn)
	if !ok {
		return tls.ConnectionState{}, false
	}
	return tc.ConnectionState(), true
}

func (c *Client) fatal(err error) error {
	c.state = Failed
	return err
}

// handshake runs Connect, optional STARTTLS, and optional AUTH, leaving the
// client in Idle.
func (c *Client) handshake() error {
	greeting, err := c.transport.ReadReply()
	if err != nil {
		return c.fatal(err)
	}
	if greeting.Code != 220 {
		return c.fatal(&Error{Kind: ConnectionRefused, Reply: greeting})
	}
	c.state = Connected

	if err := c.ehloOrHelo(); err != nil {
		return c.fatal(err)
	}
	c.state = HandshakeDone

	if err := c.maybeStartTLS(); err != nil {
		return c.fatal(err)
	}

	if c.cfg.Credentials != nil {
		if err := c.authenticate(); err != nil {
			return c.fatal(err)
		}
		c.state = Authenticated
	}

	c.state = Idle
	return nil
}

func (c *Client) ehloOrHelo() error {
	if err := c.transport.WriteLine(EncodeHello(c.cfg.HelloName, true)); err != nil {
		return err
	}
	r, err := c.transport.ReadReply()
	if err != nil {
		return err
	}
	if r.Permanent() {
		// Fall back to HELO, no extensions available.
		if err := c.transport.WriteLine(EncodeHello(c.cfg.HelloName, false)); err != nil {
			return err
		}
		r, err = c.transport.ReadReply()
		if err != nil {
			return err
		}
		if !r.Positive() {
			return unexpected(200, r)
		}
		c.ext = &ExtensionSet{Other: map[string][]string{}}
		return nil
	}
	if !r.Positive() {
		return unexpected(200, r)
	}
	c.ext = ParseExtensions(r.Lines)
	return nil
}

func (c *Client) maybeStartTLS() error {
	mode := c.cfg.Security.Mode
	if mode != SecurityOpportunistic && mode != SecurityRequired {
		return nil
	}
	if c.transport.IsTLS() {
		return nil
	}

	if !c.ext.StartTLS {
		if mode == SecurityRequired {
			return &Error{Kind: TlsRequired, Err: fmt.Errorf("server did not advertise STARTTLS")}
		}
		return nil
	}

	if err := c.transport.WriteLine(EncodeStartTLS()); err != nil {
		return err
	}
	r, err := c.transport.ReadReply()
	if err != nil {
		return err
	}
	if r.Code != 220 {
		if mode == SecurityRequired {
			return &Error{Kind: TlsRequired, Reply: r}
		}
		return nil
	}

	tlsCfg := c.cfg.Security.Config
	if tlsCfg == nil {
		tlsCfg = &tls.Config{}
	}
	if tlsCfg.ServerName == "" && c.cfg.ServerName != "" {
		clone := tlsCfg.Clone()
		clone.ServerName = c.cfg.ServerName
		tlsCfg = clone
	}
	if err := c.transport.UpgradeTLS(tlsCfg); err != nil {
		if mode == SecurityRequired {
			return &Error{Kind: TlsRequired, Err: err}
		}
		return err
	}

	// RFC 3207: extensions must be re-queried after the upgrade.
	c.ext = nil
	return c.ehloOrHelo()
}

func (c *Client) authenticate() error {
	prefs := c.cfg.Mechanisms
	if len(prefs) == 0 {
		prefs = DefaultMechanismOrder
	}

	tried := map[string]bool{}
	for {
		remaining := make([]string, 0, len(prefs))
		for _, p := range prefs {
			if !tried[p] {
				remaining = append(remaining, p)
			}
		}
		m, err := SelectMechanism(remaining, c.ext)
		if err != nil {
			return err
		}
		tried[m.Name()] = true

		ok, err := c.tryMechanism(m)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		// 504: mechanism unknown to server, try the next one.
	}
}

func (c *Client) tryMechanism(m mechanism) (bool, error) {
	creds := *c.cfg.Credentials

	initial, hasInitial := "", false
	if ir, ok := m.InitialResponse(creds); ok {
		initial, hasInitial = ir, true
	}

	if err := c.transport.WriteLine(EncodeAuth(m.Name(), initial)); err != nil {
		return false, err
	}

	for {
		r, err := c.transport.ReadReply()
		if err != nil {
			return false, err
		}

		switch {
		case r.Code == 235:
			return true, nil
		case r.Code == 334:
			if hasInitial {
				// Server asked for a continuation despite accepting the
				// initial response; this shouldn't happen for PLAIN, but
				// guard against a protocol error rather than looping.
				hasInitial = false
			}
			resp, err := m.Challenge(creds, r.Text())
			if err != nil {
				return false, &Error{Kind: AuthProtocolError, Err: err}
			}
			if err := c.transport.WriteLine(EncodeAuthContinuation(resp)); err != nil {
				return false, err
			}
		case r.Code == 504:
			return false, nil
		case r.Code == 535:
			return false, &Error{Kind: AuthRejected, Reply: r}
		default:
			return false, &Error{Kind: AuthProtocolError, Reply: r}
		}
	}
}

// Send runs one MAIL/RCPT+/DATA transaction (spec §4.6). On return the
// client is Idle (ready for another Send), Disconnected (the reuse policy
// closed the connection after this Send), or Failed (the connection must
// be discarded).
func (c *Client) Send(env *envelope.EmailEnvelope) (*Reply, error) {
	if c.state == Failed || c.state == Disconnected || c.state == Closing {
		return nil, &Error{Kind: ClientClosed}
	}
	if c.state != Idle {
		return nil, &Error{Kind: ClientClosed, Err: fmt.Errorf("client is not idle (state=%s)", c.state)}
	}
	if err := env.Validate(); err != nil {
		return nil, &Error{Kind: Permanent, Err: err}
	}

	if env.NeedsSMTPUTF8() && !c.ext.SMTPUTF8 {
		return nil, c.fatalTxn(&Error{Kind: UnsupportedUtf8,
			Err: fmt.Errorf("envelope requires SMTPUTF8 but it was not negotiated")})
	}

	mailLine, err := EncodeMail(env.Sender, c.ext.EightBitMIME, env.NeedsSMTPUTF8(), 0, nil)
	if err != nil {
		return nil, c.fatalTxn(err)
	}

	rcptLines := make([]string, len(env.Recipients))
	for i, r := range env.Recipients {
		rcptLines[i] = EncodeRcpt(r)
	}

	var reply *Reply
	if c.ext.Pipelining {
		reply, err = c.pipelinedTransaction(env, mailLine, rcptLines)
	} else {
		reply, err = c.sequentialTransaction(env, mailLine, rcptLines)
	}
	if err != nil {
		c.tr.Error(err)
		return nil, err
	}
	c.tr.Debugf("transaction complete for %d recipient(s)", len(env.Recipients))

	c.afterSuccessfulSend()
	return reply, nil
}

func (c *Client) afterSuccessfulSend() {
	c.state = Idle
	if !c.reuse.allowsAnother() {
		c.quitAndClose()
		return
	}
	c.reuse.consume()
}

// fatalTxn marks the connection Failed without sending RSET; used for
// errors detected before any bytes reach the wire (SMTPUTF8 not
// negotiated, MAIL line encoding).
func (c *Client) fatalTxn(err error) error {
	return c.fatal(err)
}

func (c *Client) sequentialTransaction(env *envelope.EmailEnvelope, mailLine string, rcptLines []string) (*Reply, error) {
	c.state = InMail
	if err := c.transport.WriteLine(mailLine); err != nil {
		return nil, c.fatal(err)
	}
	mr, err := c.transport.ReadReply()
	if err != nil {
		return nil, c.fatal(err)
	}
	if !mr.Positive() {
		c.resetAfterTxnFailure()
		return nil, classify(mr)
	}

	c.state = InRcpt
	results := make([]RecipientResult, len(rcptLines))
	anyAccepted := false
	var lastReply *Reply
	for i, line := range rcptLines {
		if err := c.transport.WriteLine(line); err != nil {
			return nil, c.fatal(err)
		}
		rr, err := c.transport.ReadReply()
		if err != nil {
			return nil, c.fatal(err)
		}
		results[i] = RecipientResult{Mailbox: env.Recipients[i].String(), Reply: rr}
		lastReply = rr
		if rr.Code == 250 || rr.Code == 251 {
			anyAccepted = true
		}
	}

	if !anyAccepted {
		c.resetAfterTxnFailure()
		return nil, &Error{Kind: AllRecipientsRejected, PerRecipient: results, Reply: lastReply}
	}

	return c.finishData(env, results)
}

func (c *Client) pipelinedTransaction(env *envelope.EmailEnvelope, mailLine string, rcptLines []string) (*Reply, error) {
	lines := make([]string, 0, len(rcptLines)+2)
	lines = append(lines, mailLine)
	lines = append(lines, rcptLines...)
	lines = append(lines, EncodeData())

	c.state = InMail
	if err := c.transport.WriteLines(lines); err != nil {
		return nil, c.fatal(err)
	}

	mr, err := c.transport.ReadReply()
	if err != nil {
		return nil, c.fatal(err)
	}
	if !mr.Positive() {
		// Drain the remaining replies (RCPT*, DATA) so the connection stays
		// in sync, then reset.
		c.drainReplies(len(rcptLines) + 1)
		c.resetAfterTxnFailure()
		return nil, classify(mr)
	}

	c.state = InRcpt
	results := make([]RecipientResult, len(rcptLines))
	anyAccepted := false
	var lastReply *Reply
	for i := range rcptLines {
		rr, err := c.transport.ReadReply()
		if err != nil {
			return nil, c.fatal(err)
		}
		results[i] = RecipientResult{Mailbox: env.Recipients[i].String(), Reply: rr}
		lastReply = rr
		if rr.Code == 250 || rr.Code == 251 {
			anyAccepted = true
		}
	}

	dataReply, err := c.transport.ReadReply()
	if err != nil {
		return nil, c.fatal(err)
	}

	if !anyAccepted {
		// DATA was already sent as part of the batch; since there's
		// nothing to upload, abandon it with RSET rather than writing a
		// body after a rejected transaction.
		c.resetAfterTxnFailure()
		return nil, &Error{Kind: AllRecipientsRejected, PerRecipient: results, Reply: lastReply}
	}

	if dataReply.Code != 354 {
		c.resetAfterTxnFailure()
		return nil, classify(dataReply)
	}

	return c.streamBodyAndFinish(env, results)
}

func (c *Client) drainReplies(n int) {
	for i := 0; i < n; i++ {
		if _, err := c.transport.ReadReply(); err != nil {
			return
		}
	}
}

func (c *Client) finishData(env *envelope.EmailEnvelope, results []RecipientResult) (*Reply, error) {
	if err := c.transport.WriteLine(EncodeData()); err != nil {
		return nil, c.fatal(err)
	}
	dr, err := c.transport.ReadReply()
	if err != nil {
		return nil, c.fatal(err)
	}
	if dr.Code != 354 {
		c.resetAfterTxnFailure()
		return nil, classify(dr)
	}
	return c.streamBodyAndFinish(env, results)
}

func (c *Client) streamBodyAndFinish(env *envelope.EmailEnvelope, results []RecipientResult) (*Reply, error) {
	c.state = InData
	body, err := env.Body()
	if err != nil {
		return nil, c.fatal(&Error{Kind: Io, Err: err})
	}
	if err := c.transport.WriteData(body); err != nil {
		return nil, c.fatal(err)
	}
	fr, err := c.transport.ReadReply()
	if err != nil {
		return nil, c.fatal(err)
	}
	if !fr.Positive() {
		c.resetAfterTxnFailure()
		return nil, classify(fr)
	}
	fr.RecipientResults = results
	return fr, nil
}

// resetAfterTxnFailure issues RSET to return a still-usable connection to
// Idle after a transaction-level (4xx/5xx) failure.
func (c *Client) resetAfterTxnFailure() {
	if err := c.transport.WriteLine(EncodeRset()); err != nil {
		c.state = Failed
		return
	}
	if _, err := c.transport.ReadReply(); err != nil {
		c.state = Failed
		return
	}
	c.state = Idle
}

func (c *Client) quitAndClose() {
	c.state = Closing
	// Best effort: the socket is going away regardless of the outcome.
	if err := c.transport.WriteLine(EncodeQuit()); err == nil {
		c.transport.ReadReply()
	}
	c.transport.Close()
	c.state = Disconnected
	c.tr.Finish()
}

// Close tears the connection down. It sends QUIT and waits (best-effort)
// for the 221 reply, then closes the socket. Idempotent.
func (c *Client) Close() error {
	if c.state == Disconnected {
		return nil
	}
	if c.state == InData || c.state == InMail || c.state == InRcpt {
		// Calling Close mid-transaction terminates without QUIT (spec §5).
		c.state = Disconnected
		err := c.transport.Close()
		c.tr.Finish()
		return err
	}
	c.quitAndClose()
	return nil
}

// Noop sends NOOP and reports whether the server replied positively.
func (c *Client) Noop() error {
	if err := c.transport.WriteLine(EncodeNoop()); err != nil {
		return c.fatal(err)
	}
	r, err := c.transport.ReadReply()
	if err != nil {
		return c.fatal(err)
	}
	if !r.Positive() {
		return unexpected(200, r)
	}
	return nil
}

// Vrfy sends VRFY for diagnostic use; many relays disable or lie about it.
func (c *Client) Vrfy(addr string) (*Reply, error) {
	if err := c.transport.WriteLine(EncodeVrfy(addr)); err != nil {
		return nil, c.fatal(err)
	}
	return c.transport.ReadReply()
}
