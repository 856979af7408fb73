// Package sanitize turns client-supplied identifiers into safe filesystem path segments.
package sanitize

import "strings"

// MaxLength is the maximum length of a sanitized identifier.
const MaxLength = 200

// ID replaces path separators, control characters, wildcards, and a leading dot in id,
// and truncates the result to MaxLength. It is idempotent: ID(ID(x)) == ID(x).
func ID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := b.String()
	for strings.HasPrefix(out, ".") {
		out = "_" + out[1:]
	}
	if out == "" {
		out = "_"
	}
	if len(out) > MaxLength {
		out = out[:MaxLength]
	}
	// Truncation could have left a different leading character; re-check since the
	// caller's idempotence expectation applies to the final result too.
	for strings.HasPrefix(out, ".") {
		out = "_" + out[1:]
	}
	return out
}
