package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValueFactor(t *testing.T) {
	cases := []struct {
		value float64
		unit  string
		want  string
	}{
		{1.8, "V", "1.800 V"},
		{0.0015, "V", "1.500 mV"},
		{2.5e-6, "A", "2.500 uA"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatValueFactor(c.value, c.unit))
	}
}
