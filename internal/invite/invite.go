// Package invite builds and parses the two ways of sharing a group: the
// deep link carrying the group's public id and the short human-typed code.
package invite

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

const (
	Scheme     = "my-coolive"
	CodeLength = 6
)

var ErrInvalidLink = errors.New("invalid invite link")

// NewPublicID returns a fresh random group identifier.
func NewPublicID() string {
	return uuid.NewString()
}

// Code derives the short code from a public id: the first six hex digits
// with punctuation removed.
func Code(publicID string) string {
	code := NormalizeCode(publicID)
	if len(code) > CodeLength {
		code = code[:CodeLength]
	}
	return code
}

// NormalizeCode lowercases s and keeps only hex digits, so "AB-12 cd" and
// "ab12cd" compare equal.
func NormalizeCode(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Link returns the deep link that opens the join flow for publicID.
func Link(publicID string) string {
	u := url.URL{Scheme: Scheme, Host: "join"}
	q := url.Values{}
	q.Set("groupId", publicID)
	u.RawQuery = q.Encode()
	return u.String()
}

// ParseLink extracts the group public id from a deep link.
func ParseLink(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if u.Scheme != Scheme || u.Host != "join" {
		return "", ErrInvalidLink
	}
	id, err := uuid.Parse(u.Query().Get("groupId"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	return id.String(), nil
}

// IsPublicID reports whether s parses as a group public id.
func IsPublicID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
