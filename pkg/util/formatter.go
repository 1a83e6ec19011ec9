// Package util formats node voltages and IR-drop values for CLI output.
package util

import (
	"fmt"
	"math"
)

// FormatValueFactor renders value with an SI prefix scaled to its
// magnitude, e.g. FormatValueFactor(0.0015, "V") -> "1.500 mV".
func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	case absValue >= 1e-6:
		return fmt.Sprintf("%.3f u%s", value*1e6, unit)
	case absValue >= 1e-9:
		return fmt.Sprintf("%.3f n%s", value*1e9, unit)
	case absValue >= 1e-12:
		return fmt.Sprintf("%.3f p%s", value*1e12, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

// FormatMagnitude renders value in either scientific or fixed notation
// depending on its magnitude, for tabular IR-drop/current reports.
func FormatMagnitude(value float64) string {
	absValue := math.Abs(value)
	if absValue >= 1000 || (absValue < 0.001 && absValue != 0) {
		return fmt.Sprintf("%8.2e", value)
	}
	return fmt.Sprintf("%8.3g", value)
}
