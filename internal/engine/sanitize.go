package engine

import (
	"errors"
	"strings"
)

// Query bounds. The allow-list strip is the sole defense against argument
// injection when the engine runs as a subprocess with untrusted input.
const (
	MinQueryLen = 3
	MaxQueryLen = 100
)

// ErrQueryTooShort rejects queries under MinQueryLen after sanitation.
var ErrQueryTooShort = errors.New("query too short (minimum 3 characters)")

// SanitizeQuery strips everything outside [A-Za-z0-9 ], truncates to
// MaxQueryLen, and rejects results shorter than MinQueryLen.
func SanitizeQuery(q string) (string, error) {
	var b strings.Builder
	for _, r := range q {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())
	if len(out) > MaxQueryLen {
		out = strings.TrimSpace(out[:MaxQueryLen])
	}
	if len(out) < MinQueryLen {
		return "", ErrQueryTooShort
	}
	return out, nil
}
