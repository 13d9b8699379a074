package smtpsend

import "blitiri.com.ar/go/smtpsend/internal/envelope"

// Envelope is what a caller hands to Sender.Send: a sender (nil for a null
// reverse-path, i.e. a bounce), a non-empty list of recipients, an opaque
// message id for diagnostics, and a pull-based source for the message
// body. The body must already be MIME-formed; this package transports it
// as an opaque byte stream and only applies CRLF normalization and
// dot-stuffing on the wire.
type Envelope struct {
	// Sender is the reverse-path. A nil Sender sends MAIL FROM:<>.
	Sender *Mailbox

	// Recipients is the non-empty, deduplicated forward-path list.
	Recipients []Mailbox

	// MessageID is an opaque identifier used only for diagnostics (e.g.
	// trace labels); it is never put on the wire.
	MessageID string

	// Body is called at most once per Send (only if the transaction
	// reaches the body) and must return the complete,
	// already-CRLF/MIME-formed message.
	Body func() ([]byte, error)
}

func (e *Envelope) toInternal() *envelope.EmailEnvelope {
	return &envelope.EmailEnvelope{
		Sender:     e.Sender,
		Recipients: e.Recipients,
		MessageID:  e.MessageID,
		Body:       e.Body,
	}
}
