package smtp

import (
	"strconv"
	"strings"
)

// ExtensionSet is the typed view of the capabilities a relay advertised in
// its EHLO reply (spec §4.4). It is cleared on connect and on every
// STARTTLS, and populated exclusively by parsing the next EHLO reply.
type ExtensionSet struct {
	EightBitMIME bool
	SMTPUTF8     bool
	StartTLS     bool
	Pipelining   bool

	// AuthMechanisms are the SASL mechanism names the server advertised
	// via "AUTH m1 m2 ...", upper-cased.
	AuthMechanisms []string

	// SizeLimit is the maximum message size in octets the server accepts,
	// or 0 if unlimited or not advertised.
	SizeLimit int64

	// Other holds any EHLO line not recognized above, keyed by the
	// upper-cased keyword, valued by its remaining parameters. This
	// doesn't affect behavior; it's retained for diagnostics.
	Other map[string][]string
}

// ParseExtensions builds an ExtensionSet from the text lines of a 250 EHLO
// reply, skipping the first line (the greeting text itself).
func ParseExtensions(lines []string) *ExtensionSet {
	es := &ExtensionSet{Other: map[string][]string{}}

	if len(lines) <= 1 {
		return es
	}

	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		keyword := strings.ToUpper(fields[0])
		args := fields[1:]

		switch keyword {
		case "8BITMIME":
			es.EightBitMIME = true
		case "SMTPUTF8":
			es.SMTPUTF8 = true
		case "STARTTLS":
			es.StartTLS = true
		case "PIPELINING":
			es.Pipelining = true
		case "AUTH":
			for _, m := range args {
				es.AuthMechanisms = append(es.AuthMechanisms, strings.ToUpper(m))
			}
		case "SIZE":
			if len(args) == 1 {
				if n, err := strconv.ParseInt(args[0], 10, 64); err == nil && n >= 0 {
					es.SizeLimit = n
				}
			}
		default:
			es.Other[keyword] = args
		}
	}

	return es
}

// SupportsMechanism reports whether the server advertised the given SASL
// mechanism (case-insensitive).
func (es *ExtensionSet) SupportsMechanism(name string) bool {
	name = strings.ToUpper(name)
	for _, m := range es.AuthMechanisms {
		if m == name {
			return true
		}
	}
	return false
}
