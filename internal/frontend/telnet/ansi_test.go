package telnet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestStripANSI(t *testing.T) {
	input := "\033[31mred\033[0m normal \033[1m\033[32mbold green\033[0m"
	assert.Equal(t, "red normal bold green", StripANSI(input))
}

func TestStripANSI_CursorSequences(t *testing.T) {
	assert.Equal(t, "ab", StripANSI("a\033[2Kb"))
	assert.Equal(t, "xy", StripANSI("x\033[10;20Hy"))
	assert.Equal(t, "lone", StripANSI("lo\033ne"))
	assert.Equal(t, "cut", StripANSI("cut\033[12"))
}

func TestStripANSI_NoEscapes(t *testing.T) {
	input := "plain text"
	assert.Equal(t, input, StripANSI(input))
}

func TestStripANSI_EmptyString(t *testing.T) {
	assert.Equal(t, "", StripANSI(""))
}

// Property: wrapping text in SGR codes and stripping yields the text.
func TestPropertyStripANSIInversesStyling(t *testing.T) {
	codes := []string{"\033[31m", "\033[1m", "\033[0m", "\033[38;5;200m", "\033[2J"}
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringMatching(`[a-zA-Z0-9 ]{0,50}`).Draw(t, "text")
		code := rapid.SampledFrom(codes).Draw(t, "code")
		assert.Equal(t, text, StripANSI(code+text+"\033[0m"))
	})
}

// Property: output never contains ESC and is never longer than the input.
func TestPropertyStripANSINoEscapeInOutput(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		result := StripANSI(text)
		assert.False(t, strings.ContainsRune(result, '\033'))
		assert.LessOrEqual(t, len(result), len(text))
	})
}
