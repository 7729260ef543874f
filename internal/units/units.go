// Package units provides shared constants and conversion for speed units.
// Telemetry and storage are canonically km/h; conversion happens only at
// the display boundary.
package units

// Unit constants
const (
	KPH  = "kph"
	KMPH = "kmph"
	MPH  = "mph"
	MPS  = "mps"
)

// ValidUnits contains all valid unit values.
var ValidUnits = []string{KPH, KMPH, MPH, MPS}

// IsValid checks if the given unit is in the list of valid units.
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// ConvertSpeed converts a speed from km/h to the target units.
func ConvertSpeed(speedKPH float64, targetUnits string) float64 {
	switch targetUnits {
	case KPH, KMPH:
		return speedKPH
	case MPH:
		return speedKPH * 0.62137119223733
	case MPS:
		return speedKPH / 3.6
	default:
		return speedKPH
	}
}
