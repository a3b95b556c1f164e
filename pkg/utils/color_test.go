package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vestiapp/vesti/pkg/utils"
)

func TestNormalizeHexColor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
		ok       bool
	}{
		{name: "lowercase with hash", input: "#aabbcc", expected: "#AABBCC", ok: true},
		{name: "missing hash", input: "aabbcc", expected: "#AABBCC", ok: true},
		{name: "already canonical", input: "#AABBCC", expected: "#AABBCC", ok: true},
		{name: "surrounding whitespace", input: "  #ffffff ", expected: "#FFFFFF", ok: true},
		{name: "short form rejected", input: "#abc", ok: false},
		{name: "non hex digits", input: "#zzzzzz", ok: false},
		{name: "empty", input: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, ok := utils.NormalizeHexColor(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, got)
			}
		})
	}
}
