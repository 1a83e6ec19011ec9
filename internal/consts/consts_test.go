package consts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseValueSuffixes(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1.8", 1.8},
		{"10k", 1e4},
		{"100meg", 1e8},
		{"1meg", 1e6},
		{"1.5u", 1.5e-6},
		{"10m", 1e-2},
		{"5g", 5e9},
		{"2.2n", 2.2e-9},
		{"-3.3", -3.3},
		{"1.5e-3", 1.5e-3},
	}

	for _, c := range cases {
		got, err := ParseValue(c.in)
		require.NoError(t, err, "ParseValue(%q)", c.in)
		assert.InDelta(t, c.want, got, 1e-20, "ParseValue(%q)", c.in)
	}
}

func TestParseValueMegBeforeM(t *testing.T) {
	// The classic ambiguity: "meg" must win over the single-letter "m"
	// class for a value ending in "meg", even though "meg" also ends in "g".
	got, err := ParseValue("2.5meg")
	require.NoError(t, err)
	assert.Equal(t, 2.5e6, got, "meg must be checked before m/g")
}

func TestParseValueInvalid(t *testing.T) {
	_, err := ParseValue("not-a-number")
	assert.Error(t, err)
}
