package smtpsend

import "blitiri.com.ar/go/smtpsend/internal/smtp"

// State is the connection's position in the protocol lifecycle (spec §3).
type State = smtp.State

const (
	Disconnected  = smtp.Disconnected
	Connected     = smtp.Connected
	HandshakeDone = smtp.HandshakeDone
	Authenticated = smtp.Authenticated
	Idle          = smtp.Idle
	InMail        = smtp.InMail
	InRcpt        = smtp.InRcpt
	InData        = smtp.InData
	Closing       = smtp.Closing
	Failed        = smtp.Failed
)
