package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/pkg/logger"
)

// Client handles forward geocoding requests (free-text query to places)
type Client struct {
	config     config.GeocodingConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a new forward geocoding client. Outbound requests are
// rate limited so fast typists cannot hammer the public API.
func NewClient(cfg config.GeocodingConfig, log *logger.Logger) *Client {
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:  log.Named("geocoding-client"),
	}
}

// SearchByName resolves a free-text query into a list of normalized places.
// Network errors and non-2xx responses degrade to an empty list plus an
// error the caller may log; callers never see a partial result.
// Minimum-length filtering happens upstream, not here.
func (c *Client) SearchByName(ctx context.Context, query string, maxResults int, language string) ([]place.Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}

	reqURL := fmt.Sprintf("%s/search?name=%s&count=%d&language=%s&format=json",
		c.config.APIBaseURL, url.QueryEscape(query), maxResults, url.QueryEscape(language))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocoding request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Geocoding request failed",
			logger.String("query", query),
			logger.Error(err))
		return nil, fmt.Errorf("error making request to geocoding API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Geocoding API returned non-OK status",
			logger.String("query", query),
			logger.Int("status_code", resp.StatusCode))
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("error decoding geocoding response: %w", err)
	}

	places := make([]place.Place, 0, len(result.Results))
	for _, r := range result.Results {
		p := normalizeResult(r)
		if err := p.Validate(); err != nil {
			c.logger.Warn("Dropping geocoding result violating place invariants",
				logger.String("query", query),
				logger.Error(err))
			continue
		}
		places = append(places, p)
	}

	c.logger.Debug("Geocoding search completed",
		logger.String("query", query),
		logger.Int("result_count", len(places)))
	return places, nil
}

// normalizeResult maps a raw geocoding result onto the internal place shape,
// synthesizing the fields the provider left out
func normalizeResult(r searchResult) place.Place {
	id := strconv.FormatInt(r.ID, 10)
	if r.ID == 0 {
		id = place.SynthesizeID(r.Latitude, r.Longitude)
	}
	tz := r.Timezone
	if tz == "" {
		tz = "auto"
	}
	return place.Place{
		ID:        id,
		Name:      r.Name,
		Admin1:    r.Admin1,
		Country:   r.Country,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Timezone:  tz,
	}
}
