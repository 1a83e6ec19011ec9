// Package consts holds the numeric constants and value-grammar parsing
// shared across the module.
package consts

import (
	"fmt"
	"strconv"
	"strings"
)

// siSuffix is one entry in the SI-suffix table, ordered longest-suffix-first
// so "meg" is matched before the single-letter "m"/"g" classes ever get a
// chance at it.
type siSuffix struct {
	suffix string
	factor float64
}

var siSuffixes = []siSuffix{
	{"meg", 1e6},
	{"f", 1e-15},
	{"p", 1e-12},
	{"n", 1e-9},
	{"u", 1e-6},
	{"m", 1e-3},
	{"k", 1e3},
	{"g", 1e9},
	{"t", 1e12},
}

// ParseValue parses a SPICE-style numeric literal with an optional SI
// suffix ("1.8", "10k", "100meg", "1.5u"). Suffixes are matched
// longest-first so "meg" never collides with the single-letter "m"/"g"
// entries.
func ParseValue(s string) (float64, error) {
	trimmed := strings.TrimSpace(s)
	lower := strings.ToLower(trimmed)

	for _, su := range siSuffixes {
		if !strings.HasSuffix(lower, su.suffix) {
			continue
		}
		numPart := trimmed[:len(trimmed)-len(su.suffix)]
		v, err := strconv.ParseFloat(numPart, 64)
		if err != nil {
			continue
		}
		return v * su.factor, nil
	}

	v, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("consts: invalid numeric literal %q: %w", s, err)
	}
	return v, nil
}
