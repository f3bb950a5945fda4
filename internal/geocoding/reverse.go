package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/pkg/logger"
)

// ReverseClient handles reverse geocoding requests (coordinates to a place).
// It is a separate boundary from the forward client: different provider,
// different wire format, and failures here are swallowed rather than shown.
type ReverseClient struct {
	config     config.ReverseGeocodingConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *logger.Logger
}

// NewReverseClient creates a new reverse geocoding client. A circuit breaker
// stops us from repeatedly calling a provider that is down, since every
// failure already degrades to a synthesized place anyway.
func NewReverseClient(cfg config.ReverseGeocodingConfig, log *logger.Logger) *ReverseClient {
	named := log.Named("reverse-geocoding")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "reverse-geocoding",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			named.Info("Reverse geocoding circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return &ReverseClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		breaker: breaker,
		logger:  named,
	}
}

// ResolveByCoordinates resolves coordinates into a normalized place. Missing
// address fields are substituted with defaults ("My location", empty
// admin/country). Total failure (transport error, non-2xx, open breaker,
// malformed body) returns an error; the caller falls back to a place
// synthesized purely from the coordinates.
func (c *ReverseClient) ResolveByCoordinates(ctx context.Context, lat, lon float64, language string) (place.Place, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchAddress(ctx, lat, lon, language)
	})
	if err != nil {
		c.logger.Warn("Reverse geocoding failed",
			logger.Float64("lat", lat),
			logger.Float64("lon", lon),
			logger.Error(err))
		return place.Place{}, err
	}

	addr := result.(*reverseAddress)
	name := firstNonEmpty(addr.City, addr.Town, addr.Village, addr.County)
	if name == "" {
		name = "My location"
	}

	return place.Place{
		ID:        place.SynthesizeID(lat, lon),
		Name:      name,
		Admin1:    addr.State,
		Country:   addr.Country,
		Latitude:  lat,
		Longitude: lon,
		Timezone:  "auto",
	}, nil
}

// fetchAddress performs the actual HTTP request
func (c *ReverseClient) fetchAddress(ctx context.Context, lat, lon float64, language string) (*reverseAddress, error) {
	reqURL := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%f&lon=%f&accept-language=%s",
		c.config.APIBaseURL, lat, lon, language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reverse geocoding request: %w", err)
	}
	// The provider's usage policy asks for an identifying User-Agent
	ua := "skycast/1.0"
	if c.config.ContactEmail != "" {
		ua = fmt.Sprintf("skycast/1.0 (%s)", c.config.ContactEmail)
	}
	req.Header.Set("User-Agent", ua)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error making request to reverse geocoding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding reverse geocoding response: %w", err)
	}
	return &result.Address, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
