package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server           ServerConfig           `toml:"server"`            // HTTP server settings
	Logging          LoggingConfig          `toml:"logging"`           // Application logging settings
	Search           SearchConfig           `toml:"search"`            // Place search and debounce settings
	Forecast         ForecastConfig         `toml:"forecast"`          // Forecast API settings
	Geocoding        GeocodingConfig        `toml:"geocoding"`         // Forward geocoding API settings
	ReverseGeocoding ReverseGeocodingConfig `toml:"reverse_geocoding"` // Reverse geocoding API settings
	Favorites        FavoritesConfig        `toml:"favorites"`         // Favorite places settings
	Storage          StorageConfig          `toml:"storage"`           // Data persistence settings
	DefaultPlace     DefaultPlaceConfig     `toml:"default_place"`     // Place selected when nothing is persisted
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory to serve the dashboard assets from (e.g., "www")
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// SearchConfig contains place search settings
type SearchConfig struct {
	DebounceMs     int    `toml:"debounce_ms"`      // Quiet period before a typed query is sent (default: 350)
	MinQueryLength int    `toml:"min_query_length"` // Queries shorter than this never hit the network (default: 2)
	MaxResults     int    `toml:"max_results"`      // Maximum number of suggestions requested (default: 6)
	Language       string `toml:"language"`         // Language code passed to the geocoding APIs (default: "en")
}

// ForecastConfig contains forecast API settings
type ForecastConfig struct {
	APIBaseURL             string `toml:"api_base_url"`             // Base URL for the forecast API (e.g., https://api.open-meteo.com/v1)
	RequestTimeoutSeconds  int    `toml:"request_timeout_seconds"`  // HTTP request timeout in seconds
	ForecastDays           int    `toml:"forecast_days"`            // Number of daily entries requested (default: 7)
	HourlyWindowSize       int    `toml:"hourly_window_size"`       // Hourly points shown starting from now (default: 24)
	RefreshIntervalMinutes int    `toml:"refresh_interval_minutes"` // Periodic refresh of the current forecast (0 = disabled)
}

// GeocodingConfig contains forward geocoding API settings
type GeocodingConfig struct {
	APIBaseURL            string  `toml:"api_base_url"`            // Base URL for the geocoding API (e.g., https://geocoding-api.open-meteo.com/v1)
	RequestTimeoutSeconds int     `toml:"request_timeout_seconds"` // HTTP request timeout in seconds
	RequestsPerSecond     float64 `toml:"requests_per_second"`     // Outbound rate limit toward the geocoding API (default: 2)
}

// ReverseGeocodingConfig contains reverse geocoding API settings.
// This is a separate boundary from forward geocoding on purpose: the two
// go through different providers with different formats and failure modes.
type ReverseGeocodingConfig struct {
	APIBaseURL            string `toml:"api_base_url"`            // Base URL for the reverse geocoding API (e.g., https://nominatim.openstreetmap.org)
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"` // HTTP request timeout in seconds
	ContactEmail          string `toml:"contact_email"`           // Contact e-mail sent in the User-Agent header (SKYCAST_CONTACT_EMAIL overrides)
}

// FavoritesConfig contains favorite places settings
type FavoritesConfig struct {
	MaxEntries int `toml:"max_entries"` // Maximum number of stored favorites, most recent first (default: 12)
}

// StorageConfig contains data persistence configuration
type StorageConfig struct {
	Type       string `toml:"type"`        // Storage backend type (currently only "sqlite" is supported)
	SQLitePath string `toml:"sqlite_path"` // Path to the SQLite database file
}

// DefaultPlaceConfig describes the place selected synchronously at startup
// when no previously selected place is persisted
type DefaultPlaceConfig struct {
	Name      string  `toml:"name"`
	Admin1    string  `toml:"admin1"`
	Country   string  `toml:"country"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
	Timezone  string  `toml:"timezone"`
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and applies defaults
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	// Validate AdditionalPorts
	portsSeen := make(map[int]bool)
	portsSeen[c.Server.Port] = true
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	// Set default static files directory if not specified
	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if err := c.ValidateSearch(); err != nil {
		return err
	}
	if err := c.ValidateForecast(); err != nil {
		return err
	}
	if err := c.ValidateGeocoding(); err != nil {
		return err
	}
	if err := c.ValidateFavorites(); err != nil {
		return err
	}
	if err := c.ValidateStorage(); err != nil {
		return err
	}
	return c.ValidateDefaultPlace()
}

// ValidateSearch validates the search configuration and applies defaults
func (c *Config) ValidateSearch() error {
	if c.Search.DebounceMs == 0 {
		c.Search.DebounceMs = 350
	}
	if c.Search.DebounceMs < 0 {
		return fmt.Errorf("search debounce_ms must be 0 or greater: %d", c.Search.DebounceMs)
	}
	if c.Search.MinQueryLength == 0 {
		c.Search.MinQueryLength = 2
	}
	if c.Search.MinQueryLength < 1 {
		return fmt.Errorf("search min_query_length must be at least 1: %d", c.Search.MinQueryLength)
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 6
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search max_results must be at least 1: %d", c.Search.MaxResults)
	}
	if c.Search.Language == "" {
		c.Search.Language = "en"
	}
	return nil
}

// ValidateForecast validates the forecast configuration and applies defaults
func (c *Config) ValidateForecast() error {
	if c.Forecast.APIBaseURL == "" {
		return fmt.Errorf("forecast api_base_url cannot be empty")
	}
	if c.Forecast.RequestTimeoutSeconds == 0 {
		c.Forecast.RequestTimeoutSeconds = 10
	}
	if c.Forecast.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("forecast request_timeout_seconds must be greater than 0: %d", c.Forecast.RequestTimeoutSeconds)
	}
	if c.Forecast.ForecastDays == 0 {
		c.Forecast.ForecastDays = 7
	}
	if c.Forecast.ForecastDays < 1 || c.Forecast.ForecastDays > 16 {
		return fmt.Errorf("forecast forecast_days must be between 1 and 16: %d", c.Forecast.ForecastDays)
	}
	if c.Forecast.HourlyWindowSize == 0 {
		c.Forecast.HourlyWindowSize = 24
	}
	if c.Forecast.HourlyWindowSize < 1 {
		return fmt.Errorf("forecast hourly_window_size must be at least 1: %d", c.Forecast.HourlyWindowSize)
	}
	if c.Forecast.RefreshIntervalMinutes < 0 {
		return fmt.Errorf("forecast refresh_interval_minutes must be 0 or greater: %d", c.Forecast.RefreshIntervalMinutes)
	}
	return nil
}

// ValidateGeocoding validates both geocoding boundaries and applies defaults
func (c *Config) ValidateGeocoding() error {
	if c.Geocoding.APIBaseURL == "" {
		return fmt.Errorf("geocoding api_base_url cannot be empty")
	}
	if c.Geocoding.RequestTimeoutSeconds == 0 {
		c.Geocoding.RequestTimeoutSeconds = 10
	}
	if c.Geocoding.RequestsPerSecond == 0 {
		c.Geocoding.RequestsPerSecond = 2
	}
	if c.Geocoding.RequestsPerSecond < 0 {
		return fmt.Errorf("geocoding requests_per_second must be greater than 0: %f", c.Geocoding.RequestsPerSecond)
	}

	if c.ReverseGeocoding.APIBaseURL == "" {
		return fmt.Errorf("reverse_geocoding api_base_url cannot be empty")
	}
	if c.ReverseGeocoding.RequestTimeoutSeconds == 0 {
		c.ReverseGeocoding.RequestTimeoutSeconds = 12
	}
	// Environment wins over the config file so the e-mail stays out of
	// committed files
	if envEmail := os.Getenv("SKYCAST_CONTACT_EMAIL"); envEmail != "" {
		c.ReverseGeocoding.ContactEmail = envEmail
	}
	return nil
}

// ValidateFavorites validates the favorites configuration and applies defaults
func (c *Config) ValidateFavorites() error {
	if c.Favorites.MaxEntries == 0 {
		c.Favorites.MaxEntries = 12
	}
	if c.Favorites.MaxEntries < 1 {
		return fmt.Errorf("favorites max_entries must be at least 1: %d", c.Favorites.MaxEntries)
	}
	return nil
}

// ValidateStorage validates the storage configuration
func (c *Config) ValidateStorage() error {
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/skycast.db"
	}
	return nil
}

// ValidateDefaultPlace validates the default place configuration and applies defaults
func (c *Config) ValidateDefaultPlace() error {
	if c.DefaultPlace.Name == "" {
		c.DefaultPlace = DefaultPlaceConfig{
			Name:      "Recife",
			Admin1:    "Pernambuco",
			Country:   "Brazil",
			Latitude:  -8.0476,
			Longitude: -34.877,
			Timezone:  "America/Recife",
		}
	}
	if c.DefaultPlace.Latitude < -90 || c.DefaultPlace.Latitude > 90 {
		return fmt.Errorf("invalid default place latitude: %f", c.DefaultPlace.Latitude)
	}
	if c.DefaultPlace.Longitude < -180 || c.DefaultPlace.Longitude > 180 {
		return fmt.Errorf("invalid default place longitude: %f", c.DefaultPlace.Longitude)
	}
	if c.DefaultPlace.Timezone == "" {
		c.DefaultPlace.Timezone = "auto"
	}
	return nil
}
