package smtpsend

import "blitiri.com.ar/go/smtpsend/internal/smtp"

// ReusePolicy governs how many transactions may share one connection.
type ReusePolicy = smtp.ReusePolicy

// NoReuse issues QUIT and closes the connection after every Send; the
// default.
var NoReuse = smtp.NoReuse

// ReuseLimited allows n additional transactions on the same connection
// before it is closed.
func ReuseLimited(n int) ReusePolicy { return smtp.ReuseLimited(n) }

// ReuseUnlimited allows unbounded reuse of the same connection across
// Send calls.
var ReuseUnlimited = smtp.ReuseUnlimited
