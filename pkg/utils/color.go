package utils

import "strings"

// NormalizeHexColor normalizes a color value to the canonical "#RRGGBB" form
// with uppercase hex digits. Returns false if the input is not a 6-digit hex color.
func NormalizeHexColor(s string) (string, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")

	if len(s) != 6 {
		return "", false
	}

	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return "", false
		}
	}

	return "#" + strings.ToUpper(s), true
}
