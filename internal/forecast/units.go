package forecast

import "fmt"

// UnitSystem selects the unit family used for display and for the unit
// parameters sent to the forecast API
type UnitSystem string

const (
	// Metric requests Celsius temperatures and km/h wind speeds
	Metric UnitSystem = "metric"
	// Imperial requests Fahrenheit temperatures and mph wind speeds
	Imperial UnitSystem = "imperial"
)

// ParseUnitSystem validates a unit system string
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch UnitSystem(s) {
	case Metric, Imperial:
		return UnitSystem(s), nil
	default:
		return "", fmt.Errorf("invalid unit system: %q (must be %q or %q)", s, Metric, Imperial)
	}
}

// TemperatureUnit returns the temperature unit request parameter
func (u UnitSystem) TemperatureUnit() string {
	if u == Imperial {
		return "fahrenheit"
	}
	return "celsius"
}

// WindSpeedUnit returns the wind speed unit request parameter
func (u UnitSystem) WindSpeedUnit() string {
	if u == Imperial {
		return "mph"
	}
	return "kmh"
}

// VisibilityFromMeters converts a visibility value, which the API always
// reports in meters, into the display unit of the system
func (u UnitSystem) VisibilityFromMeters(meters float64) (value float64, unit string) {
	if u == Imperial {
		return meters / 1609.344, "mi"
	}
	return meters / 1000, "km"
}
