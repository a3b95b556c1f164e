package utils_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vestiapp/vesti/pkg/utils"
)

func TestSanitizeUserMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{
			name:     "plain message unchanged",
			input:    "service is busy",
			maxLen:   100,
			expected: "service is busy",
		},
		{
			name:     "html significant characters escaped",
			input:    `<script>alert("x")</script>`,
			maxLen:   200,
			expected: "&lt;script&gt;alert(&quot;x&quot;)&lt;/script&gt;",
		},
		{
			name:     "control characters stripped",
			input:    "bad\x00\x1bmessage",
			maxLen:   100,
			expected: "badmessage",
		},
		{
			name:     "whitespace collapsed",
			input:    "too   many\n\nspaces",
			maxLen:   100,
			expected: "too many spaces",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, utils.SanitizeUserMessage(tt.input, tt.maxLen))
		})
	}
}

func TestSanitizeUserMessageTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 500)
	out := utils.SanitizeUserMessage(long, 0)
	assert.Equal(t, utils.MaxUserMessageLength+3, len(out))
	assert.True(t, strings.HasSuffix(out, "..."))
}
