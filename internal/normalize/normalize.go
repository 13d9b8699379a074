// Package normalize contains functions to normalize usernames and addresses.
package normalize

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// User normalices an username using PRECIS.
// On error, it will also return the original username to simplify callers.
func User(user string) (string, error) {
	norm, err := precis.UsernameCaseMapped.String(user)
	if err != nil {
		return user, err
	}

	return norm, nil
}

// Addr normalices the user part of an email address using PRECIS; the
// domain is left as is.
// On error, it will also return the original address to simplify callers.
func Addr(addr string) (string, error) {
	user := addr
	domain := ""
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		user, domain = addr[:i], addr[i+1:]
	}

	user, err := User(user)
	if err != nil {
		return addr, err
	}

	return user + "@" + domain, nil
}
