package theme

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitSymbolsASCII(t *testing.T) {
	t.Setenv("YINSEN_ASCII_SYMBOLS", "1")
	InitSymbols()
	t.Cleanup(func() {
		t.Setenv("YINSEN_ASCII_SYMBOLS", "")
		InitSymbols()
	})

	assert.False(t, DetectUnicodeSupport())
	assert.Equal(t, "[OK]", SymbolSuccess)
	assert.Equal(t, "->", SymbolArrowR)
}

func TestInitSymbolsUnicode(t *testing.T) {
	t.Setenv("YINSEN_ASCII_SYMBOLS", "")
	t.Setenv("LANG", "en_US.UTF-8")
	InitSymbols()

	assert.True(t, DetectUnicodeSupport())
	assert.Equal(t, "✓", SymbolSuccess)
}
