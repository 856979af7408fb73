package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestID_Idempotent(t *testing.T) {
	cases := []string{
		"simple-id",
		"../../etc/passwd",
		".hidden",
		"wild*card?name",
		strings.Repeat("a", 500),
		"",
		"with spaces and\tcontrol\x00chars",
	}
	for _, c := range cases {
		once := ID(c)
		twice := ID(once)
		assert.Equal(t, once, twice, "ID must be idempotent for %q", c)
		assert.LessOrEqual(t, len(once), MaxLength)
		assert.False(t, strings.HasPrefix(once, "."))
		for _, r := range once {
			allowed := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '_' || r == '-'
			assert.True(t, allowed, "unexpected rune %q in sanitized id %q", r, once)
		}
	}
}

func TestID_PathSeparatorsReplaced(t *testing.T) {
	assert.NotContains(t, ID("a/b/c"), "/")
	assert.NotContains(t, ID("a\\b\\c"), "\\")
}

func TestID_LeadingDotReplaced(t *testing.T) {
	assert.False(t, strings.HasPrefix(ID("....secret"), "."))
}
