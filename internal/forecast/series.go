package forecast

import (
	"strings"
	"time"
)

// hourlyTimeLayout is the local-time layout the forecast API uses for
// hourly and daily timestamps
const hourlyTimeLayout = "2006-01-02T15:04"

// HourlyPoint is one display-ready hourly forecast entry
type HourlyPoint struct {
	Time  string  `json:"time"` // formatted hour:minute label
	Temp  float64 `json:"temp"`
	Feels float64 `json:"feels"`
	Pop   int     `json:"pop"` // precipitation probability, percent
	ISO   string  `json:"iso"` // raw timestamp as returned by the API
}

// DailyPoint is one display-ready daily forecast entry
type DailyPoint struct {
	Day     string  `json:"day"`   // ISO date
	Label   string  `json:"label"` // capitalized short weekday name
	Max     float64 `json:"max"`
	Min     float64 `json:"min"`
	Code    int     `json:"code"`
	Sunrise string  `json:"sunrise"`
	Sunset  string  `json:"sunset"`
}

// BuildHourlySeries slices the hourly parallel arrays into a window of up to
// windowSize points starting at the first timestamp at or after ref. If no
// timestamp qualifies (ref past the end of the series, or nothing parses),
// the window starts at index 0. Pure: same snapshot and ref always produce
// the same output.
func BuildHourlySeries(s *Snapshot, ref time.Time, windowSize int) []HourlyPoint {
	if s == nil || len(s.Hourly.Time) == 0 || windowSize <= 0 {
		return nil
	}

	start := 0
	found := false
	for i, raw := range s.Hourly.Time {
		ts, err := time.Parse(hourlyTimeLayout, raw)
		if err != nil {
			continue
		}
		// Timestamps are in the place's local clock; compare against the
		// wall-clock reading of ref
		if !ts.Before(time.Date(ref.Year(), ref.Month(), ref.Day(), ref.Hour(), ref.Minute(), 0, 0, time.UTC)) {
			start = i
			found = true
			break
		}
	}
	if !found {
		start = 0
	}

	end := start + windowSize
	if end > len(s.Hourly.Time) {
		end = len(s.Hourly.Time)
	}

	points := make([]HourlyPoint, 0, end-start)
	for i := start; i < end; i++ {
		label := s.Hourly.Time[i]
		if ts, err := time.Parse(hourlyTimeLayout, label); err == nil {
			label = ts.Format("15:04")
		}
		points = append(points, HourlyPoint{
			Time:  label,
			Temp:  s.Hourly.Temperature[i],
			Feels: s.Hourly.ApparentTemperature[i],
			Pop:   s.Hourly.PrecipitationProbability[i],
			ISO:   s.Hourly.Time[i],
		})
	}
	return points
}

// BuildDailySeries reshapes the daily parallel arrays into one point per
// calendar day with a capitalized short weekday label. Pure.
func BuildDailySeries(s *Snapshot) []DailyPoint {
	if s == nil || len(s.Daily.Time) == 0 {
		return nil
	}

	points := make([]DailyPoint, 0, len(s.Daily.Time))
	for i, raw := range s.Daily.Time {
		label := raw
		if day, err := time.Parse("2006-01-02", raw); err == nil {
			label = weekdayLabel(day.Weekday())
		}
		points = append(points, DailyPoint{
			Day:     raw,
			Label:   label,
			Max:     s.Daily.TemperatureMax[i],
			Min:     s.Daily.TemperatureMin[i],
			Code:    s.Daily.WeatherCode[i],
			Sunrise: s.Daily.Sunrise[i],
			Sunset:  s.Daily.Sunset[i],
		})
	}
	return points
}

// weekdayLabel formats a weekday as a capitalized three-letter label
func weekdayLabel(d time.Weekday) string {
	name := d.String()
	if len(name) > 3 {
		name = name[:3]
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}
