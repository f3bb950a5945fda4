package controller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skycast-app/skycast/internal/config"
	"github.com/skycast-app/skycast/internal/favorites"
	"github.com/skycast-app/skycast/internal/forecast"
	"github.com/skycast-app/skycast/internal/geocoding"
	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/internal/storage/sqlite"
	"github.com/skycast-app/skycast/pkg/logger"
)

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: make(map[string]string)}
}

func (k *fakeKV) Get(key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.data[key]
	return v, ok, nil
}

func (k *fakeKV) Set(key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.data[key] = value
	return nil
}

func forecastBody(temp float64) string {
	return fmt.Sprintf(`{
		"current": {"time":"2025-06-01T12:00","temperature_2m":%g,"apparent_temperature":20.1,"relative_humidity_2m":60,"precipitation":0,"weather_code":2,"wind_speed_10m":14.2,"wind_direction_10m":120,"surface_pressure":1013.2,"visibility":24140,"is_day":1},
		"hourly": {"time":["2025-06-01T12:00","2025-06-01T13:00"],"temperature_2m":[%g,22.0],"apparent_temperature":[20.1,20.6],"precipitation_probability":[5,10],"weather_code":[2,2]},
		"daily": {"time":["2025-06-01"],"weather_code":[2],"temperature_2m_max":[24.0],"temperature_2m_min":[17.0],"sunrise":["2025-06-01T05:10"],"sunset":["2025-06-01T19:45"]}
	}`, temp, temp)
}

// recorder keeps the query values of the most recent request
type recorder struct {
	mu   sync.Mutex
	last url.Values
}

func (r *recorder) record(q url.Values) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = q
}

func (r *recorder) get(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return ""
	}
	return r.last.Get(key)
}

type testEnv struct {
	ctrl     *Controller
	kv       *fakeKV
	fcCalls  *atomic.Int64
	geoCalls *atomic.Int64
	fcReq    *recorder
	geoReq   *recorder
}

// newTestEnv starts a controller against stub forecast and geocoding
// servers. fcHandler and geoHandler may be nil for default 200 responses.
func newTestEnv(t *testing.T, kv *fakeKV, fcHandler, geoHandler http.HandlerFunc) *testEnv {
	t.Helper()

	env := &testEnv{
		kv:       kv,
		fcCalls:  &atomic.Int64{},
		geoCalls: &atomic.Int64{},
		fcReq:    &recorder{},
		geoReq:   &recorder{},
	}

	fcSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.fcCalls.Add(1)
		env.fcReq.record(r.URL.Query())
		if fcHandler != nil {
			fcHandler(w, r)
			return
		}
		w.Write([]byte(forecastBody(21.5)))
	}))
	t.Cleanup(fcSrv.Close)

	geoSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.geoCalls.Add(1)
		env.geoReq.record(r.URL.Query())
		if geoHandler != nil {
			geoHandler(w, r)
			return
		}
		name := r.URL.Query().Get("name")
		fmt.Fprintf(w, `{"results":[{"id":1,"name":%q,"admin1":"Ontario","country":"Canada","latitude":43.6532,"longitude":-79.3832,"timezone":"America/Toronto"}]}`, name)
	}))
	t.Cleanup(geoSrv.Close)

	cfg := &config.Config{
		Search: config.SearchConfig{
			DebounceMs:     20,
			MinQueryLength: 2,
			MaxResults:     6,
			Language:       "en",
		},
		Forecast: config.ForecastConfig{
			APIBaseURL:            fcSrv.URL,
			RequestTimeoutSeconds: 5,
			ForecastDays:          7,
			HourlyWindowSize:      24,
		},
		Geocoding: config.GeocodingConfig{
			APIBaseURL:            geoSrv.URL,
			RequestTimeoutSeconds: 5,
			RequestsPerSecond:     1000,
		},
		ReverseGeocoding: config.ReverseGeocodingConfig{
			APIBaseURL:            geoSrv.URL,
			RequestTimeoutSeconds: 5,
		},
		Favorites: config.FavoritesConfig{MaxEntries: 12},
		DefaultPlace: config.DefaultPlaceConfig{
			Name:      "Recife",
			Admin1:    "Pernambuco",
			Country:   "Brazil",
			Latitude:  -8.0476,
			Longitude: -34.877,
			Timezone:  "America/Recife",
		},
	}

	log := logger.NewNop()
	favs := favorites.NewStore(kv, cfg.Favorites.MaxEntries, log)
	env.ctrl = New(
		cfg,
		geocoding.NewClient(cfg.Geocoding, log),
		geocoding.NewReverseClient(cfg.ReverseGeocoding, log),
		forecast.NewClient(cfg.Forecast, log),
		favs,
		kv,
		log,
	)
	if err := env.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("failed to start controller: %v", err)
	}
	t.Cleanup(env.ctrl.Stop)
	return env
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func toronto() place.Place {
	return place.Place{
		ID:        "6167865",
		Name:      "Toronto",
		Admin1:    "Ontario",
		Country:   "Canada",
		Latitude:  43.6532,
		Longitude: -79.3832,
		Timezone:  "America/Toronto",
	}
}

func TestStartLoadsDefaultPlace(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)

	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})

	s := env.ctrl.State()
	if s.Place.Name != "Recife" {
		t.Errorf("expected default place Recife, got %s", s.Place.Name)
	}
	if s.Current == nil || s.Current.Temperature != 21.5 {
		t.Errorf("expected current conditions from the stub, got %+v", s.Current)
	}
	if len(s.Hourly) == 0 || len(s.Daily) == 0 {
		t.Errorf("expected hourly and daily series, got %d/%d points", len(s.Hourly), len(s.Daily))
	}
	if env.fcReq.get("temperature_unit") != "celsius" {
		t.Errorf("expected default metric units, got temperature_unit=%s", env.fcReq.get("temperature_unit"))
	}
}

func TestStartRestoresPersistedPlaceAndSettings(t *testing.T) {
	kv := newFakeKV()
	kv.Set(sqlite.KeyLastPlace, `{"id":"6167865","name":"Toronto","admin1":"Ontario","country":"Canada","latitude":43.6532,"longitude":-79.3832,"timezone":"America/Toronto"}`)
	kv.Set(sqlite.KeySettings, `{"unit":"imperial","theme":"light"}`)

	env := newTestEnv(t, kv, nil, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})

	s := env.ctrl.State()
	if s.Place.Name != "Toronto" {
		t.Errorf("expected restored place Toronto, got %s", s.Place.Name)
	}
	if s.Settings.Unit != forecast.Imperial || s.Settings.Theme != "light" {
		t.Errorf("expected restored settings, got %+v", s.Settings)
	}
	if env.fcReq.get("temperature_unit") != "fahrenheit" {
		t.Errorf("expected restored imperial units on the wire, got %s", env.fcReq.get("temperature_unit"))
	}
}

func TestStartFallsBackOnCorruptPersistedState(t *testing.T) {
	kv := newFakeKV()
	kv.Set(sqlite.KeyLastPlace, "{not json")
	kv.Set(sqlite.KeySettings, `{"unit":"kelvin","theme":"sepia"}`)

	env := newTestEnv(t, kv, nil, nil)
	s := env.ctrl.State()
	if s.Place.Name != "Recife" {
		t.Errorf("expected fallback to default place, got %s", s.Place.Name)
	}
	if s.Settings.Unit != forecast.Metric || s.Settings.Theme != "dark" {
		t.Errorf("expected default settings, got %+v", s.Settings)
	}
}

func TestShortQueryNeverReachesNetwork(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)

	env.ctrl.Search("t")
	time.Sleep(100 * time.Millisecond)

	if got := env.geoCalls.Load(); got != 0 {
		t.Errorf("expected no geocoding calls for a 1-char query, got %d", got)
	}
	s := env.ctrl.State()
	if s.SearchState != SearchIdle || s.Suggestions != nil {
		t.Errorf("expected idle search with no suggestions, got %s/%v", s.SearchState, s.Suggestions)
	}
}

func TestWhitespaceQueryTreatedAsShort(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)

	env.ctrl.Search("  a   ")
	time.Sleep(100 * time.Millisecond)

	if got := env.geoCalls.Load(); got != 0 {
		t.Errorf("expected no geocoding calls for a padded 1-char query, got %d", got)
	}
	if env.ctrl.State().SearchState != SearchIdle {
		t.Errorf("expected idle search, got %s", env.ctrl.State().SearchState)
	}
}

func TestShortQueryClearsPreviousSuggestions(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)

	env.ctrl.Search("toronto")
	waitFor(t, "suggestions", func() bool {
		return env.ctrl.State().SearchState == SearchReady
	})
	if len(env.ctrl.State().Suggestions) == 0 {
		t.Fatal("expected suggestions before clearing")
	}

	env.ctrl.Search("t")
	s := env.ctrl.State()
	if s.SearchState != SearchIdle || len(s.Suggestions) != 0 {
		t.Errorf("expected suggestions cleared on short query, got %s/%d", s.SearchState, len(s.Suggestions))
	}
}

func TestDebounceCollapsesTypingBurst(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)

	for _, q := range []string{"to", "tor", "toro", "toron", "toront", "toronto"} {
		env.ctrl.Search(q)
		time.Sleep(2 * time.Millisecond)
	}
	waitFor(t, "debounced search", func() bool {
		return env.ctrl.State().SearchState == SearchReady
	})

	if got := env.geoCalls.Load(); got != 1 {
		t.Errorf("expected exactly 1 geocoding call for the burst, got %d", got)
	}
	if got := env.geoReq.get("name"); got != "toronto" {
		t.Errorf("expected only the final query on the wire, got %q", got)
	}
	s := env.ctrl.State()
	if len(s.Suggestions) != 1 || s.Suggestions[0].Name != "toronto" {
		t.Errorf("unexpected suggestions: %+v", s.Suggestions)
	}
}

func TestStaleSearchResponseDiscarded(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "slowtown" {
			time.Sleep(150 * time.Millisecond)
		}
		fmt.Fprintf(w, `{"results":[{"id":1,"name":%q,"country":"Canada","latitude":43.65,"longitude":-79.38,"timezone":"America/Toronto"}]}`, name)
	})

	env.ctrl.Search("slowtown")
	// Let the debounce fire so the slow request is in flight
	time.Sleep(60 * time.Millisecond)
	env.ctrl.Search("fasttown")

	waitFor(t, "fast search result", func() bool {
		s := env.ctrl.State()
		return s.SearchState == SearchReady && len(s.Suggestions) == 1 && s.Suggestions[0].Name == "fasttown"
	})

	// The slow response arrives after the fast one; it must not win
	time.Sleep(200 * time.Millisecond)
	s := env.ctrl.State()
	if len(s.Suggestions) != 1 || s.Suggestions[0].Name != "fasttown" {
		t.Errorf("stale response overwrote newer suggestions: %+v", s.Suggestions)
	}
}

func TestSelectPlaceLoadsForecastAndClearsSearch(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})

	env.ctrl.Search("toronto")
	waitFor(t, "suggestions", func() bool {
		return env.ctrl.State().SearchState == SearchReady
	})

	if err := env.ctrl.SelectPlace(toronto()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "forecast for the new place", func() bool {
		s := env.ctrl.State()
		return s.LoadState == LoadLoaded && s.Place.Name == "Toronto"
	})

	s := env.ctrl.State()
	if s.Query != "" || s.Suggestions != nil || s.SearchState != SearchIdle {
		t.Errorf("expected search cleared after selection, got %q/%v/%s", s.Query, s.Suggestions, s.SearchState)
	}
	if got := env.fcReq.get("latitude"); got != "43.6532" {
		t.Errorf("expected forecast request for Toronto, got latitude=%s", got)
	}

	// Selection is persisted
	raw, found, _ := env.kv.Get(sqlite.KeyLastPlace)
	if !found || !strings.Contains(raw, "Toronto") {
		t.Errorf("expected persisted place, got %q (found=%v)", raw, found)
	}
}

func TestSelectPlaceRejectsInvalidCoordinates(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	bad := toronto()
	bad.Latitude = 91
	if err := env.ctrl.SelectPlace(bad); err == nil {
		t.Fatal("expected error for out-of-range latitude")
	}
}

func TestUnitToggleRefetchesOnce(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})
	before := env.fcCalls.Load()

	if err := env.ctrl.SetUnit("imperial"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, "imperial reload", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded && env.ctrl.State().Settings.Unit == forecast.Imperial
	})

	if got := env.fcCalls.Load(); got != before+1 {
		t.Errorf("expected exactly one refetch, got %d extra", got-before)
	}
	if env.fcReq.get("temperature_unit") != "fahrenheit" {
		t.Errorf("expected fahrenheit on the wire, got %s", env.fcReq.get("temperature_unit"))
	}

	// Same unit again is a no-op
	if err := env.ctrl.SetUnit("imperial"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := env.fcCalls.Load(); got != before+1 {
		t.Errorf("expected no fetch for unchanged unit, got %d extra", got-before)
	}

	raw, _, _ := env.kv.Get(sqlite.KeySettings)
	if !strings.Contains(raw, "imperial") {
		t.Errorf("expected persisted settings, got %q", raw)
	}
}

func TestSetUnitRejectsUnknownSystem(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	if err := env.ctrl.SetUnit("kelvin"); err == nil {
		t.Fatal("expected error for unknown unit system")
	}
}

func TestThemeChangeDoesNotTouchForecast(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})
	before := env.fcCalls.Load()

	if err := env.ctrl.SetTheme("light"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.ctrl.State().Settings.Theme != "light" {
		t.Errorf("expected theme light, got %s", env.ctrl.State().Settings.Theme)
	}
	time.Sleep(50 * time.Millisecond)
	if got := env.fcCalls.Load(); got != before {
		t.Errorf("theme change triggered %d forecast calls", got-before)
	}

	if err := env.ctrl.SetTheme("sepia"); err == nil {
		t.Fatal("expected error for unknown theme")
	}
	raw, _, _ := env.kv.Get(sqlite.KeySettings)
	if !strings.Contains(raw, "light") {
		t.Errorf("expected persisted theme, got %q", raw)
	}
}

func TestLoadFailureThenRetry(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	env := newTestEnv(t, newFakeKV(), func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(forecastBody(21.5)))
	}, nil)

	waitFor(t, "failed load", func() bool {
		return env.ctrl.State().LoadState == LoadFailed
	})
	if env.ctrl.State().LoadError == "" {
		t.Error("expected a load error message")
	}

	failing.Store(false)
	env.ctrl.Retry()
	waitFor(t, "retried load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})
	s := env.ctrl.State()
	if s.LoadError != "" || s.Current == nil {
		t.Errorf("expected clean loaded state after retry, got error=%q current=%v", s.LoadError, s.Current)
	}
	if env.fcReq.get("latitude") != "-8.0476" {
		t.Errorf("expected retry against the same place, got latitude=%s", env.fcReq.get("latitude"))
	}
}

func TestStaleForecastResponseDiscarded(t *testing.T) {
	slow := place.Place{ID: "1", Name: "Slowville", Latitude: 10.5, Longitude: 10.5, Timezone: "UTC"}
	fast := place.Place{ID: "2", Name: "Fastburg", Latitude: 20.5, Longitude: 20.5, Timezone: "UTC"}

	env := newTestEnv(t, newFakeKV(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("latitude") {
		case "10.5":
			time.Sleep(150 * time.Millisecond)
			w.Write([]byte(forecastBody(10)))
		case "20.5":
			w.Write([]byte(forecastBody(20)))
		default:
			w.Write([]byte(forecastBody(0)))
		}
	}, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})

	if err := env.ctrl.SelectPlace(slow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := env.ctrl.SelectPlace(fast); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, "fast place forecast", func() bool {
		s := env.ctrl.State()
		return s.LoadState == LoadLoaded && s.Place.Name == "Fastburg"
	})

	// The slow response lands afterwards and must be discarded
	time.Sleep(250 * time.Millisecond)
	s := env.ctrl.State()
	if s.Place.Name != "Fastburg" || s.Current == nil || s.Current.Temperature != 20 {
		t.Errorf("stale forecast overwrote newer one: place=%s current=%+v", s.Place.Name, s.Current)
	}
}

func TestLocateFallsBackWhenReverseGeocodingFails(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if err := env.ctrl.Locate(43.6532, -79.3832); err != nil {
		t.Fatalf("expected locate to degrade, not fail: %v", err)
	}
	waitFor(t, "forecast at coordinates", func() bool {
		s := env.ctrl.State()
		return s.LoadState == LoadLoaded && s.Place.Name == "My location"
	})
	s := env.ctrl.State()
	if s.Place.Latitude != 43.6532 || s.Place.Longitude != -79.3832 {
		t.Errorf("expected the requested coordinates, got %f,%f", s.Place.Latitude, s.Place.Longitude)
	}
}

func TestToggleFavoriteReflectsInState(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})

	current := env.ctrl.State().Place
	added, err := env.ctrl.ToggleFavorite(current)
	if err != nil || !added {
		t.Fatalf("expected toggle to add, got added=%v err=%v", added, err)
	}
	if !env.ctrl.State().Favorite {
		t.Error("expected state to mark the selected place as favorite")
	}
	if favs := env.ctrl.Favorites(); len(favs) != 1 || favs[0].Name != current.Name {
		t.Errorf("unexpected favorites list: %+v", favs)
	}

	added, err = env.ctrl.ToggleFavorite(current)
	if err != nil || added {
		t.Fatalf("expected toggle to remove, got added=%v err=%v", added, err)
	}
	if env.ctrl.State().Favorite {
		t.Error("expected favorite flag cleared after removal")
	}
}

func TestStateReturnsIndependentCopies(t *testing.T) {
	env := newTestEnv(t, newFakeKV(), nil, nil)
	waitFor(t, "initial forecast load", func() bool {
		return env.ctrl.State().LoadState == LoadLoaded
	})

	a := env.ctrl.State()
	if len(a.Hourly) == 0 {
		t.Fatal("expected hourly points")
	}
	a.Hourly[0].Temp = -273
	b := env.ctrl.State()
	if b.Hourly[0].Temp == -273 {
		t.Error("mutating a returned state leaked into the controller")
	}
}
