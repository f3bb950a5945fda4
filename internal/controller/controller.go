package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/favorites"
	"github.com/skycast-app/skycast/internal/forecast"
	"github.com/skycast-app/skycast/internal/geocoding"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/internal/storage/sqlite"
	"github.com/skycast-app/skycast/pkg/logger"
)

// KV is the persistence boundary for the selected place and settings
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Publisher receives every state transition. The websocket server implements
// this to push snapshots to connected dashboards.
type Publisher interface {
	PublishState(v interface{})
}

// Controller owns the application state and serializes every transition.
// Search requests are debounced and forecast loads are guarded by generation
// counters, so a slow response for an old place or query can never overwrite
// the state of a newer one.
type Controller struct {
	mu    sync.Mutex
	state State

	// searchGen and loadGen are bumped on every new search intent and place
	// selection respectively; in-flight responses carrying an older
	// generation are discarded
	searchGen uint64
	loadGen   uint64
	debounce  *time.Timer

	cfg       *config.Config
	geocoder  *geocoding.Client
	reverse   *geocoding.ReverseClient
	forecasts *forecast.Client
	favorites *favorites.Store
	kv        KV
	publisher Publisher
	scheduler *gocron.Scheduler
	logger    *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// now is replaceable in tests
	now func() time.Time
}

// New creates the controller. Start must be called before use.
func New(
	cfg *config.Config,
	geocoder *geocoding.Client,
	reverse *geocoding.ReverseClient,
	forecasts *forecast.Client,
	favs *favorites.Store,
	kv KV,
	log *logger.Logger,
) *Controller {
	return &Controller{
		cfg:       cfg,
		geocoder:  geocoder,
		reverse:   reverse,
		forecasts: forecasts,
		favorites: favs,
		kv:        kv,
		logger:    log.Named("controller"),
		now:       time.Now,
	}
}

// SetPublisher wires the state publisher. Must be called before Start.
func (c *Controller) SetPublisher(p Publisher) {
	c.publisher = p
}

// Start restores the persisted place and settings (falling back to the
// configured default place), kicks off the initial forecast load, and starts
// the periodic refresh when one is configured.
func (c *Controller) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.mu.Lock()
	c.state = State{
		Place:       c.restorePlace(),
		Settings:    c.restoreSettings(),
		SearchState: SearchIdle,
		LoadState:   LoadUnloaded,
		UpdatedAt:   c.now().UTC(),
	}
	c.state.Favorite = c.favorites.IsFavorite(c.state.Place)
	p := c.state.Place
	unit := c.state.Settings.Unit
	c.state.LoadState = LoadLoading
	c.loadGen++
	gen := c.loadGen
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snapshot)
	c.logger.Info("Controller started",
		logger.String("place", p.Name),
		logger.String("unit", string(unit)))

	go c.loadForecast(gen, p, unit)

	if mins := c.cfg.Forecast.RefreshIntervalMinutes; mins > 0 {
		c.scheduler = gocron.NewScheduler(time.UTC)
		if _, err := c.scheduler.Every(mins).Minutes().Do(c.Refresh); err != nil {
			return fmt.Errorf("failed to schedule forecast refresh: %w", err)
		}
		c.scheduler.StartAsync()
		c.logger.Info("Periodic forecast refresh enabled", logger.Int("interval_minutes", mins))
	}
	return nil
}

// Stop cancels pending work and stops the refresh scheduler
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.mu.Unlock()
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	c.logger.Info("Controller stopped")
}

// State returns a copy of the current state. Slices are copied so callers
// can hold the result without racing ongoing transitions.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Search records a typed query. Queries shorter than the configured minimum
// clear the suggestions immediately and never reach the network; anything
// longer is sent after the debounce quiet period. Each call supersedes the
// previous one, so only the latest query can ever populate suggestions.
func (c *Controller) Search(query string) {
	trimmed := strings.TrimSpace(query)

	c.mu.Lock()
	c.state.Query = query
	c.searchGen++
	gen := c.searchGen
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}

	if len([]rune(trimmed)) < c.cfg.Search.MinQueryLength {
		c.state.Suggestions = nil
		c.state.SearchState = SearchIdle
		snapshot := c.touchLocked()
		c.mu.Unlock()
		c.publish(snapshot)
		return
	}

	c.state.SearchState = SearchSearching
	delay := time.Duration(c.cfg.Search.DebounceMs) * time.Millisecond
	c.debounce = time.AfterFunc(delay, func() {
		c.runSearch(gen, trimmed)
	})
	snapshot := c.touchLocked()
	c.mu.Unlock()
	c.publish(snapshot)
}

// runSearch performs the geocoding request for a debounced query and applies
// the result only if the query is still the latest one
func (c *Controller) runSearch(gen uint64, query string) {
	c.mu.Lock()
	if gen != c.searchGen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	results, err := c.geocoder.SearchByName(c.ctx, query, c.cfg.Search.MaxResults, c.cfg.Search.Language)

	c.mu.Lock()
	if gen != c.searchGen {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale search results", logger.String("query", query))
		return
	}
	if err != nil {
		c.state.Suggestions = nil
		c.state.SearchState = SearchFailed
		c.logger.Warn("Place search failed", logger.String("query", query), logger.Error(err))
	} else {
		c.state.Suggestions = results
		c.state.SearchState = SearchReady
	}
	snapshot := c.touchLocked()
	c.mu.Unlock()
	c.publish(snapshot)
}

// SelectPlace makes p the selected place: the query and suggestions are
// cleared, the selection is persisted, and a forecast load starts for it
func (c *Controller) SelectPlace(p place.Place) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid place: %w", err)
	}

	c.mu.Lock()
	c.searchGen++
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.state.Query = ""
	c.state.Suggestions = nil
	c.state.SearchState = SearchIdle
	c.state.Place = p
	c.state.Favorite = c.favorites.IsFavorite(p)
	c.state.Current = nil
	c.state.Hourly = nil
	c.state.Daily = nil
	c.state.LoadState = LoadLoading
	c.state.LoadError = ""
	c.loadGen++
	gen := c.loadGen
	unit := c.state.Settings.Unit
	snapshot := c.touchLocked()
	c.mu.Unlock()

	c.persistPlace(p)
	c.publish(snapshot)
	go c.loadForecast(gen, p, unit)
	return nil
}

// Locate selects the place at the given coordinates. The name comes from
// reverse geocoding; if that fails the coordinates are still selected under
// a synthesized placeholder name, so locating degrades instead of failing.
func (c *Controller) Locate(lat, lon float64) error {
	p, err := c.reverse.ResolveByCoordinates(c.ctx, lat, lon, c.cfg.Search.Language)
	if err != nil {
		c.logger.Warn("Reverse geocoding failed, selecting coordinates directly",
			logger.Float64("lat", lat), logger.Float64("lon", lon), logger.Error(err))
		p = place.Synthesized(lat, lon)
	}
	return c.SelectPlace(p)
}

// SetUnit switches the unit system and reloads the forecast in the new
// units. Setting the already active unit is a no-op.
func (c *Controller) SetUnit(raw string) error {
	unit, err := forecast.ParseUnitSystem(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state.Settings.Unit == unit {
		c.mu.Unlock()
		return nil
	}
	c.state.Settings.Unit = unit
	c.state.LoadState = LoadLoading
	c.state.LoadError = ""
	c.loadGen++
	gen := c.loadGen
	p := c.state.Place
	settings := c.state.Settings
	snapshot := c.touchLocked()
	c.mu.Unlock()

	c.persistSettings(settings)
	c.publish(snapshot)
	go c.loadForecast(gen, p, unit)
	return nil
}

// SetTheme switches the display theme. Themes never touch the forecast.
func (c *Controller) SetTheme(theme string) error {
	switch theme {
	case "light", "dark":
	default:
		return fmt.Errorf("invalid theme: %s (must be 'light' or 'dark')", theme)
	}

	c.mu.Lock()
	if c.state.Settings.Theme == theme {
		c.mu.Unlock()
		return nil
	}
	c.state.Settings.Theme = theme
	settings := c.state.Settings
	snapshot := c.touchLocked()
	c.mu.Unlock()

	c.persistSettings(settings)
	c.publish(snapshot)
	return nil
}

// Retry re-issues the forecast load for the selected place after a failure
func (c *Controller) Retry() {
	c.Refresh()
}

// Refresh reloads the forecast for the currently selected place in the
// current unit system
func (c *Controller) Refresh() {
	c.mu.Lock()
	c.state.LoadState = LoadLoading
	c.state.LoadError = ""
	c.loadGen++
	gen := c.loadGen
	p := c.state.Place
	unit := c.state.Settings.Unit
	snapshot := c.touchLocked()
	c.mu.Unlock()

	c.publish(snapshot)
	go c.loadForecast(gen, p, unit)
}

// ToggleFavorite toggles p in the favorites list and reports whether it is
// now a favorite
func (c *Controller) ToggleFavorite(p place.Place) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("invalid place: %w", err)
	}
	added := c.favorites.Toggle(p)

	c.mu.Lock()
	c.state.Favorite = c.favorites.IsFavorite(c.state.Place)
	snapshot := c.touchLocked()
	c.mu.Unlock()
	c.publish(snapshot)
	return added, nil
}

// Favorites lists the favorite places, most recently added first
func (c *Controller) Favorites() []place.Place {
	return c.favorites.List()
}

// loadForecast fetches a snapshot and applies it only if no newer load has
// started since; a stale response is dropped on the floor
func (c *Controller) loadForecast(gen uint64, p place.Place, unit forecast.UnitSystem) {
	snap, err := c.forecasts.Fetch(c.ctx, p, unit)

	c.mu.Lock()
	if gen != c.loadGen {
		c.mu.Unlock()
		c.logger.Debug("Discarding stale forecast response",
			logger.String("place", p.Name), logger.Uint64("generation", gen))
		return
	}
	if err != nil {
		c.state.LoadState = LoadFailed
		c.state.LoadError = err.Error()
		c.logger.Warn("Forecast load failed", logger.String("place", p.Name), logger.Error(err))
	} else {
		c.state.Current = &snap.Current
		c.state.Hourly = forecast.BuildHourlySeries(snap, c.now(), c.cfg.Forecast.HourlyWindowSize)
		c.state.Daily = forecast.BuildDailySeries(snap)
		c.state.LoadState = LoadLoaded
		c.state.LoadError = ""
		c.logger.Info("Forecast loaded",
			logger.String("place", p.Name),
			logger.Int("hourly_points", len(c.state.Hourly)),
			logger.Int("daily_points", len(c.state.Daily)))
	}
	snapshot := c.touchLocked()
	c.mu.Unlock()
	c.publish(snapshot)
}

// restorePlace returns the persisted place or, absent one, the configured
// default place
func (c *Controller) restorePlace() place.Place {
	def := place.Place{
		ID:        place.SynthesizeID(c.cfg.DefaultPlace.Latitude, c.cfg.DefaultPlace.Longitude),
		Name:      c.cfg.DefaultPlace.Name,
		Admin1:    c.cfg.DefaultPlace.Admin1,
		Country:   c.cfg.DefaultPlace.Country,
		Latitude:  c.cfg.DefaultPlace.Latitude,
		Longitude: c.cfg.DefaultPlace.Longitude,
		Timezone:  c.cfg.DefaultPlace.Timezone,
	}

	raw, found, err := c.kv.Get(sqlite.KeyLastPlace)
	if err != nil {
		c.logger.Warn("Failed to read persisted place, using default", logger.Error(err))
		return def
	}
	if !found {
		return def
	}
	var p place.Place
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.Validate() != nil {
		c.logger.Warn("Persisted place is unusable, using default", logger.Error(err))
		return def
	}
	return p
}

// restoreSettings returns the persisted settings or the defaults
func (c *Controller) restoreSettings() Settings {
	def := Settings{Unit: forecast.Metric, Theme: "dark"}

	raw, found, err := c.kv.Get(sqlite.KeySettings)
	if err != nil || !found {
		if err != nil {
			c.logger.Warn("Failed to read persisted settings, using defaults", logger.Error(err))
		}
		return def
	}
	var s Settings
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.logger.Warn("Persisted settings failed to parse, using defaults", logger.Error(err))
		return def
	}
	if _, err := forecast.ParseUnitSystem(string(s.Unit)); err != nil {
		s.Unit = def.Unit
	}
	if s.Theme != "light" && s.Theme != "dark" {
		s.Theme = def.Theme
	}
	return s
}

func (c *Controller) persistPlace(p place.Place) {
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Error("Failed to encode place for persistence", logger.Error(err))
		return
	}
	if err := c.kv.Set(sqlite.KeyLastPlace, string(data)); err != nil {
		c.logger.Error("Failed to persist selected place", logger.Error(err))
	}
}

func (c *Controller) persistSettings(s Settings) {
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.Error("Failed to encode settings for persistence", logger.Error(err))
		return
	}
	if err := c.kv.Set(sqlite.KeySettings, string(data)); err != nil {
		c.logger.Error("Failed to persist settings", logger.Error(err))
	}
}

// touchLocked stamps the state and returns a copy. Callers must hold mu.
func (c *Controller) touchLocked() State {
	c.state.UpdatedAt = c.now().UTC()
	return c.snapshotLocked()
}

// snapshotLocked copies the state, including its slices. Callers must hold mu.
func (c *Controller) snapshotLocked() State {
	s := c.state
	if c.state.Suggestions != nil {
		s.Suggestions = make([]place.Place, len(c.state.Suggestions))
		copy(s.Suggestions, c.state.Suggestions)
	}
	if c.state.Hourly != nil {
		s.Hourly = make([]forecast.HourlyPoint, len(c.state.Hourly))
		copy(s.Hourly, c.state.Hourly)
	}
	if c.state.Daily != nil {
		s.Daily = make([]forecast.DailyPoint, len(c.state.Daily))
		copy(s.Daily, c.state.Daily)
	}
	if c.state.Current != nil {
		cur := *c.state.Current
		s.Current = &cur
	}
	return s
}

// publish pushes a state copy to the publisher, if one is wired
func (c *Controller) publish(s State) {
	if c.publisher != nil {
		c.publisher.PublishState(s)
	}
}
