package smtpsend

import (
	"context"

	"blitiri.com.ar/go/smtpsend/internal/smtp"
)

// Sender drives Send calls against one relay, reusing the underlying
// connection according to its Dialer's ReusePolicy (spec §4.7). A Sender
// is not safe for concurrent use: it represents one logical connection,
// and callers requiring parallelism create multiple Senders.
type Sender struct {
	dialer *Dialer
	addr   string

	client *smtp.Client
}

// Send delivers one envelope. It establishes the connection on the first
// call, or whenever the previous connection is not idle (closed by the
// reuse policy, or left Failed by a prior fatal error), and leaves the
// connection in the state the configured ReusePolicy dictates afterward.
//
// ctx governs only the dial: once a connection is established, the
// per-operation Dialer timeout applies to every read and write, since the
// underlying protocol has no mid-operation cancellation primitive besides
// that timeout (spec §5). If ctx is cancelled while a connection is being
// established, Send returns ctx.Err() wrapped as an Io error and the
// partially-opened connection, if any, is closed.
func (s *Sender) Send(ctx context.Context, env *Envelope) (*Reply, error) {
	if s.client == nil || s.client.State() == smtp.Disconnected || s.client.State() == smtp.Failed {
		if err := s.dial(ctx); err != nil {
			return nil, err
		}
	}

	reply, err := s.client.Send(env.toInternal())
	if err != nil {
		if e, ok := err.(*smtp.Error); ok && (e.Kind == smtp.Io || e.Kind == smtp.Tls ||
			e.Kind == smtp.MalformedReply || e.Kind == smtp.LineTooLong ||
			e.Kind == smtp.AuthRejected || e.Kind == smtp.AuthProtocolError ||
			e.Kind == smtp.AuthNoMechanism || e.Kind == smtp.TlsRequired) {
			s.client = nil
		}
		return nil, err
	}

	if s.client.State() == smtp.Disconnected {
		// The reuse policy closed the connection after this Send.
		s.client = nil
	}
	return reply, nil
}

func (s *Sender) dial(ctx context.Context) error {
	type result struct {
		client *smtp.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		c, err := smtp.Dial(s.addr, s.dialer.clientConfig())
		done <- result{c, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return r.err
		}
		s.client = r.client
		return nil
	case <-ctx.Done():
		// Let the dial finish in the background and clean up; report the
		// cancellation to the caller now rather than blocking on it.
		go func() {
			if r := <-done; r.err == nil {
				r.client.Close()
			}
		}()
		return &smtp.Error{Kind: smtp.Io, Err: ctx.Err()}
	}
}

// Close tears down the underlying connection, if any. It is safe to call
// even if no connection is currently open.
func (s *Sender) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	if s.dialer.credentials != nil {
		s.dialer.credentials.Zero()
	}
	return err
}

// State reports the underlying connection's lifecycle state, or
// Disconnected if no connection is currently open.
func (s *Sender) State() State {
	if s.client == nil {
		return Disconnected
	}
	return s.client.State()
}
