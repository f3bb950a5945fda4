package forecast

import "fmt"

// Snapshot represents one complete forecast response for a place and unit
// system. A successful fetch replaces the previous snapshot wholesale; the
// service never merges across snapshots.
type Snapshot struct {
	Current Current `json:"current"`
	Hourly  Hourly  `json:"hourly"`
	Daily   Daily   `json:"daily"`
}

// Current holds the point-in-time values of a snapshot
type Current struct {
	Time          string  `json:"time"`
	Temperature   float64 `json:"temperature_2m"`
	Apparent      float64 `json:"apparent_temperature"`
	Humidity      float64 `json:"relative_humidity_2m"`
	Precipitation float64 `json:"precipitation"`
	WeatherCode   int     `json:"weather_code"`
	WindSpeed     float64 `json:"wind_speed_10m"`
	WindDirection float64 `json:"wind_direction_10m"`
	Pressure      float64 `json:"surface_pressure"`
	// Visibility is always meters regardless of the requested unit system;
	// the display layer converts it
	Visibility float64 `json:"visibility"`
	IsDay      int     `json:"is_day"`
}

// Hourly holds the hourly parallel arrays, all indexed by Time
type Hourly struct {
	Time                     []string  `json:"time"`
	Temperature              []float64 `json:"temperature_2m"`
	ApparentTemperature      []float64 `json:"apparent_temperature"`
	PrecipitationProbability []int     `json:"precipitation_probability"`
	WeatherCode              []int     `json:"weather_code"`
}

// Daily holds the daily parallel arrays, all indexed by Time
type Daily struct {
	Time           []string  `json:"time"`
	WeatherCode    []int     `json:"weather_code"`
	TemperatureMax []float64 `json:"temperature_2m_max"`
	TemperatureMin []float64 `json:"temperature_2m_min"`
	Sunrise        []string  `json:"sunrise"`
	Sunset         []string  `json:"sunset"`
}

// Validate checks the parallel-array invariant: every hourly array shares the
// hourly time index length, and every daily array the daily one
func (s *Snapshot) Validate() error {
	n := len(s.Hourly.Time)
	if len(s.Hourly.Temperature) != n ||
		len(s.Hourly.ApparentTemperature) != n ||
		len(s.Hourly.PrecipitationProbability) != n ||
		len(s.Hourly.WeatherCode) != n {
		return fmt.Errorf("hourly parallel arrays do not share the time index length %d", n)
	}
	m := len(s.Daily.Time)
	if len(s.Daily.WeatherCode) != m ||
		len(s.Daily.TemperatureMax) != m ||
		len(s.Daily.TemperatureMin) != m ||
		len(s.Daily.Sunrise) != m ||
		len(s.Daily.Sunset) != m {
		return fmt.Errorf("daily parallel arrays do not share the time index length %d", m)
	}
	return nil
}
