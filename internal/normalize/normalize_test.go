package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemValue(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
	}{
		{"brazilian with thousands", "1.234,56", 1234.56},
		{"brazilian without thousands", "1234,56", 1234.56},
		{"plain decimal point", "1234.56", 1234.56},
		{"integer", "1000", 1000},
		{"small", "0,05", 0.05},
		{"negative", "-10,50", -10.5},
		{"negative with thousands", "-1.500,00", -1500},
		{"millions", "1.000.000,00", 1000000},
		{"currency noise", " R$ 1.234,56 ", 1234.56},
		{"label noise", "valor: 100,00", 100},
		{"scientific", "1.5e3", 1500},
		{"scientific upper", "2E2", 200},
		{"exactly 64 digits", strings.Repeat("0", MaxValueBytes), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseItemValue(tt.input)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestParseItemValue_NoValue(t *testing.T) {
	for _, in := range []string{"", "abc", "...", "R$", "-"} {
		_, err := ParseItemValue(in)
		assert.ErrorIs(t, err, ErrNoValue, "%q", in)
	}
}

func TestParseItemValue_TooLong(t *testing.T) {
	_, err := ParseItemValue(strings.Repeat("1", MaxValueBytes+1))
	assert.ErrorIs(t, err, ErrValueTooLong)

	// Any byte after a full buffer fails, even noise.
	_, err = ParseItemValue(strings.Repeat("1", MaxValueBytes) + " ")
	assert.ErrorIs(t, err, ErrValueTooLong)

	// Skipped thousands dots do not consume the buffer.
	v, err := ParseItemValue(strings.Repeat("1.", 40) + ",5")
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}

func TestSignificant(t *testing.T) {
	assert.False(t, Significant(0))
	assert.False(t, Significant(0.00004))
	assert.False(t, Significant(-0.00004))
	assert.True(t, Significant(0.00005))
	assert.True(t, Significant(-10))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1234.57", FormatAmount(1234.567))
	assert.Equal(t, "1500.00", FormatAmount(-1500))
	assert.Equal(t, "0.00", FormatAmount(0))
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "0", FormatCount(0))
	assert.Equal(t, "999", FormatCount(999))
	assert.Equal(t, "1.000", FormatCount(1000))
	assert.Equal(t, "1.234.567", FormatCount(1234567))
}

func TestIsCancelled(t *testing.T) {
	for _, s := range []string{"Sim", "SIM", "sim", "S", "s", "True", "true", "1"} {
		assert.True(t, IsCancelled(s), s)
	}
	for _, s := range []string{"", "Não", "nao", "N", "0", "TRUE", "yes", " Sim"} {
		assert.False(t, IsCancelled(s), s)
	}
}

func TestCollapseSpaces(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpaces("a   b    c"))
	assert.Equal(t, "a b", CollapseSpaces("a \t  b"))
	assert.Equal(t, "a\t\tb", CollapseSpaces("a\t\tb"), "only double spaces trigger collapsing")
	assert.Equal(t, "single spaced", CollapseSpaces("single spaced"))
	assert.Equal(t, "", CollapseSpaces(""))
}

func TestHasNonZeroDigit(t *testing.T) {
	assert.True(t, HasNonZeroDigit("84713012"))
	assert.True(t, HasNonZeroDigit("0001"))
	assert.False(t, HasNonZeroDigit("00000000"))
	assert.False(t, HasNonZeroDigit(""))
	assert.False(t, HasNonZeroDigit("N/A"))
}
