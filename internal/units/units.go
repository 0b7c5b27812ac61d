// Package units provides shared constants and validation for current speed units
package units

import (
	"math"
	"strings"
)

// Unit constants
const (
	MPS   = "mps"
	CMPS  = "cmps"
	KNOTS = "knots"
	KPH   = "kph"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, CMPS, KNOTS, KPH}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertSpeed converts a speed from meters per second to the target units.
// The engine works in m/s throughout; NaN (no estimate) passes through.
func ConvertSpeed(speedMPS float64, targetUnits string) float64 {
	if math.IsNaN(speedMPS) {
		return speedMPS
	}
	switch targetUnits {
	case CMPS:
		return speedMPS * 100
	case KNOTS:
		return speedMPS * 1.9438444924406 // 1 kn = 1852 m/h
	case KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label returns a short axis/column label for the unit.
func Label(unit string) string {
	switch unit {
	case CMPS:
		return "cm/s"
	case KNOTS:
		return "kn"
	case KPH:
		return "km/h"
	default:
		return "m/s"
	}
}
