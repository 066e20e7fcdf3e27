package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	assert.Equal(t, ModeBase, ParseMode("base"))
	assert.Equal(t, ModeTalk, ParseMode("talk"))
	assert.Equal(t, ModeExpert, ParseMode("expert"))
	assert.Equal(t, ModeCreative, ParseMode("creative"))

	// Unrecognized identifiers resolve to base.
	assert.Equal(t, ModeBase, ParseMode(""))
	assert.Equal(t, ModeBase, ParseMode("BASE"))
	assert.Equal(t, ModeBase, ParseMode("philosopher"))
}

func TestDefaultTable_CompleteOverModes(t *testing.T) {
	table := DefaultTable()
	for _, mode := range Modes() {
		params, ok := table[mode]
		assert.True(t, ok, "mode %s must have an entry", mode)
		assert.NotZero(t, params.MaxTokens)
		assert.NotZero(t, params.Temperature)
	}
}

func TestTable_ResolveFallsBackToBase(t *testing.T) {
	table := DefaultTable()
	base := table[ModeBase]

	assert.Equal(t, base, table.Resolve(Mode("unknown")))
	assert.Equal(t, table[ModeExpert], table.Resolve(ModeExpert))

	partial := Table{ModeBase: base}
	assert.Equal(t, base, partial.Resolve(ModeCreative))
}
