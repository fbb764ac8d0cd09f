package humansize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBytes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want uint64
	}{
		{"bare number", "1024", 1024},
		{"kilo suffix", "2K", 2 << 10},
		{"mega suffix", "500M", 500 << 20},
		{"giga suffix", "2G", 2 << 30},
		{"tera suffix", "1T", 1 << 40},
		{"lowercase suffix", "2m", 2 << 20},
		{"trailing B accepted", "500MB", 500 << 20},
		{"fractional value", "1.5K", uint64(1.5 * (1 << 10))},
		{"whitespace trimmed", "  128K  ", 128 << 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)

			got, err := ParseBytes(tt.in)
			require.NoError(err)
			require.Equal(tt.want, got)
		})
	}
}

func TestParseBytesRejectsInvalidInput(t *testing.T) {
	tests := []string{"", "M", "abc", "-5M", "5X"}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			require := require.New(t)

			_, err := ParseBytes(in)
			require.Error(err)
		})
	}
}
