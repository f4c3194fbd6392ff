// Package identity resolves who is calling and which chat session they own.
package identity

import (
	"errors"
	"strings"
)

// ErrNoIdentity is returned when a caller has neither an account nor a usable address.
var ErrNoIdentity = errors.New("caller identity could not be resolved")

const addressKeyPrefix = "ip-"

// Caller describes the party behind a request.
type Caller struct {
	Email   string
	Role    string
	Address string
}

// Authenticated reports whether the caller presented a valid account token.
func (c Caller) Authenticated() bool {
	return strings.TrimSpace(c.Email) != ""
}

// SessionKey derives the chat session key for a caller. An authenticated email
// always wins, then the network address. Callers with neither are rejected.
func SessionKey(c Caller) (string, error) {
	if email := strings.ToLower(strings.TrimSpace(c.Email)); email != "" {
		return email, nil
	}
	if key := addressKey(c.Address); key != "" {
		return key, nil
	}
	return "", ErrNoIdentity
}

func addressKey(address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(addressKeyPrefix)
	for _, r := range strings.ToLower(address) {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
