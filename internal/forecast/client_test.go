package forecast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/pkg/logger"
)

const minimalBody = `{
	"current": {"time":"2025-06-01T12:00","temperature_2m":21.5,"apparent_temperature":20.1,"relative_humidity_2m":60,"precipitation":0,"weather_code":2,"wind_speed_10m":14.2,"wind_direction_10m":120,"surface_pressure":1013.2,"visibility":24140,"is_day":1},
	"hourly": {"time":["2025-06-01T12:00","2025-06-01T13:00"],"temperature_2m":[21.5,22.0],"apparent_temperature":[20.1,20.6],"precipitation_probability":[5,10],"weather_code":[2,2]},
	"daily": {"time":["2025-06-01"],"weather_code":[2],"temperature_2m_max":[24.0],"temperature_2m_min":[17.0],"sunrise":["2025-06-01T05:10"],"sunset":["2025-06-01T19:45"]}
}`

func testPlace() place.Place {
	return place.Place{
		ID:        "3390760",
		Name:      "Recife",
		Latitude:  -8.0476,
		Longitude: -34.877,
		Timezone:  "America/Recife",
	}
}

func newTestForecastClient(baseURL string) *Client {
	return NewClient(config.ForecastConfig{
		APIBaseURL:            baseURL,
		RequestTimeoutSeconds: 5,
		ForecastDays:          7,
	}, logger.NewNop())
}

func TestFetchMetricUnitParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("temperature_unit"); got != "celsius" {
			t.Errorf("expected temperature_unit=celsius, got %s", got)
		}
		if got := q.Get("wind_speed_unit"); got != "kmh" {
			t.Errorf("expected wind_speed_unit=kmh, got %s", got)
		}
		if got := q.Get("timezone"); got != "America/Recife" {
			t.Errorf("expected place timezone, got %s", got)
		}
		if got := q.Get("forecast_days"); got != "7" {
			t.Errorf("expected forecast_days=7, got %s", got)
		}
		w.Write([]byte(minimalBody))
	}))
	defer srv.Close()

	snap, err := newTestForecastClient(srv.URL).Fetch(context.Background(), testPlace(), Metric)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Current.Temperature != 21.5 {
		t.Errorf("expected current temperature 21.5, got %f", snap.Current.Temperature)
	}
	if len(snap.Hourly.Time) != 2 || len(snap.Daily.Time) != 1 {
		t.Errorf("unexpected snapshot shape: %d hourly, %d daily", len(snap.Hourly.Time), len(snap.Daily.Time))
	}
}

func TestFetchImperialUnitParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("temperature_unit"); got != "fahrenheit" {
			t.Errorf("expected temperature_unit=fahrenheit, got %s", got)
		}
		if got := q.Get("wind_speed_unit"); got != "mph" {
			t.Errorf("expected wind_speed_unit=mph, got %s", got)
		}
		w.Write([]byte(minimalBody))
	}))
	defer srv.Close()

	if _, err := newTestForecastClient(srv.URL).Fetch(context.Background(), testPlace(), Imperial); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestForecastClient(srv.URL).Fetch(context.Background(), testPlace(), Metric); err == nil {
		t.Fatal("expected error for 500 response, got nil")
	}
}

func TestFetchRejectsRaggedArrays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"hourly": {"time":["2025-06-01T12:00","2025-06-01T13:00"],"temperature_2m":[21.5],"apparent_temperature":[20.1,20.6],"precipitation_probability":[5,10],"weather_code":[2,2]},
			"daily": {"time":[],"weather_code":[],"temperature_2m_max":[],"temperature_2m_min":[],"sunrise":[],"sunset":[]}
		}`))
	}))
	defer srv.Close()

	if _, err := newTestForecastClient(srv.URL).Fetch(context.Background(), testPlace(), Metric); err == nil {
		t.Fatal("expected validation error for ragged arrays, got nil")
	}
}

func TestVisibilityConversion(t *testing.T) {
	if v, unit := Metric.VisibilityFromMeters(24140); v != 24.14 || unit != "km" {
		t.Errorf("expected 24.14 km, got %f %s", v, unit)
	}
	v, unit := Imperial.VisibilityFromMeters(1609.344)
	if unit != "mi" || v < 0.999 || v > 1.001 {
		t.Errorf("expected 1 mi, got %f %s", v, unit)
	}
}

func TestParseUnitSystem(t *testing.T) {
	if _, err := ParseUnitSystem("metric"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseUnitSystem("imperial"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, err := ParseUnitSystem("kelvin"); err == nil {
		t.Error("expected error for unknown unit system")
	}
}
