package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/pkg/logger"
)

const (
	currentFields = "temperature_2m,apparent_temperature,relative_humidity_2m,precipitation,weather_code,wind_speed_10m,wind_direction_10m,surface_pressure,visibility,is_day"
	hourlyFields  = "temperature_2m,apparent_temperature,precipitation_probability,weather_code"
	dailyFields   = "weather_code,temperature_2m_max,temperature_2m_min,sunrise,sunset"
)

// Client handles HTTP requests to the forecast API
type Client struct {
	config     config.ForecastConfig
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a new forecast API client
func NewClient(cfg config.ForecastConfig, log *logger.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		logger: log.Named("forecast-client"),
	}
}

// Fetch requests a complete snapshot (current, hourly, daily) for the place
// in the given unit system. One request, no retries: a failed load is
// surfaced to the user with an explicit retry action instead.
func (c *Client) Fetch(ctx context.Context, p place.Place, unit UnitSystem) (*Snapshot, error) {
	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(p.Latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(p.Longitude, 'f', -1, 64))
	params.Set("timezone", p.Timezone)
	params.Set("temperature_unit", unit.TemperatureUnit())
	params.Set("wind_speed_unit", unit.WindSpeedUnit())
	params.Set("current", currentFields)
	params.Set("hourly", hourlyFields)
	params.Set("daily", dailyFields)
	params.Set("forecast_days", fmt.Sprintf("%d", c.config.ForecastDays))

	reqURL := fmt.Sprintf("%s/forecast?%s", c.config.APIBaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build forecast request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request to forecast API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var snapshot Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("error decoding forecast response: %w", err)
	}

	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("forecast response failed validation: %w", err)
	}

	c.logger.Debug("Forecast fetch completed",
		logger.String("place", p.Name),
		logger.String("unit", string(unit)),
		logger.Duration("duration", time.Since(start)),
		logger.Int("hourly_points", len(snapshot.Hourly.Time)),
		logger.Int("daily_points", len(snapshot.Daily.Time)))
	return &snapshot, nil
}
