package utils

import (
	"strings"
	"unicode"
)

// MaxUserMessageLength bounds error messages surfaced to API clients.
const MaxUserMessageLength = 200

// htmlEscaper escapes characters that are significant when the message is
// rendered by a downstream UI.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// SanitizeUserMessage prepares an internal error message for user-facing output.
// Control characters are stripped, HTML-significant characters are escaped,
// and the result is truncated to maxLen runes.
func SanitizeUserMessage(s string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = MaxUserMessageLength
	}

	// Drop control characters before escaping
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	out := htmlEscaper.Replace(CompressAllWhitespace(b.String()))

	runes := []rune(out)
	if len(runes) > maxLen {
		out = string(runes[:maxLen]) + "..."
	}

	return out
}

// CompressAllWhitespace replaces all whitespace sequences (including newlines) with a single space.
func CompressAllWhitespace(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
