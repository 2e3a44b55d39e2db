package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRevenue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want float64
	}{
		{"millions with dollar sign", "$25M", 25_000_000},
		{"billions decimal", "1.2B", 1_200_000_000},
		{"thousands", "$750k", 750_000},
		{"bare number with commas", "4,000,000", 4_000_000},
		{"word suffix", "$40 million", 40_000_000},
		{"range takes lower bound", "$10-50M", 10_000_000},
		{"empty", "", 0},
		{"whitespace", "   ", 0},
		{"bogus", "bogus", 0},
		{"unknown", "Unknown", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ParseRevenue(tt.in), 0.5)
		})
	}
}

func TestFormatRevenue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$25M", FormatRevenue(25_000_000))
	assert.Equal(t, "$1.2B", FormatRevenue(1_200_000_000))
	assert.Equal(t, "$750K", FormatRevenue(750_000))
	assert.Equal(t, "$0", FormatRevenue(0))
}

func TestInIPUpsideBand(t *testing.T) {
	t.Parallel()

	assert.False(t, InIPUpsideBand(0, 0))
	assert.True(t, InIPUpsideBand(5_000_000, 0))
	assert.False(t, InIPUpsideBand(10_000_000, 0))
	assert.False(t, InIPUpsideBand(200_000_000, 0))

	assert.True(t, InIPUpsideBand(20_000_000, 25_000_000))
	assert.False(t, InIPUpsideBand(5_000_000, 5_000_000))
	assert.False(t, InIPUpsideBand(-1, 25_000_000))
}
