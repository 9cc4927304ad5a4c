package sanitizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"basic trim", "  hello  ", "hello"},
		{"multiple spaces", "hello    world", "hello world"},
		{"tabs and newlines", "hello\t\nworld", "hello world"},
		{"control characters dropped", "hel\x00lo", "hello"},
		{"empty", "", ""},
		{"only whitespace", "   ", ""},
		{"unicode kept", " Café & Spa™ ", "Café & Spa™"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrimAndNormalize(tt.input))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "first line\nsecond line", NormalizeText("  first   line \r\n second\tline \n"))
	assert.Equal(t, "", NormalizeText(" \n "))
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "WEEKLY", NormalizeCode(" weekly "))
}
