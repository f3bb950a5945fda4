package controller

import (
	"time"

	"github.com/skycast-app/skycast/internal/forecast"
	"github.com/skycast-app/skycast/internal/place"
)

// LoadState tracks the forecast loading lifecycle
type LoadState string

const (
	LoadUnloaded LoadState = "unloaded"
	LoadLoading  LoadState = "loading"
	LoadLoaded   LoadState = "loaded"
	LoadFailed   LoadState = "load_failed"
)

// SearchState tracks the suggestion flow, independently of the forecast
type SearchState string

const (
	SearchIdle      SearchState = "idle"
	SearchSearching SearchState = "searching"
	SearchReady     SearchState = "ready"
	SearchFailed    SearchState = "failed"
)

// Settings holds the persisted display preferences
type Settings struct {
	Unit  forecast.UnitSystem `json:"unit"`
	Theme string              `json:"theme"`
}

// State is the complete application state observed by the dashboard. It is
// owned by the Controller and replaced through reducer-style transitions;
// observers only ever see copies.
type State struct {
	Place       place.Place            `json:"place"`
	Settings    Settings               `json:"settings"`
	Query       string                 `json:"query"`
	SearchState SearchState            `json:"search_state"`
	Suggestions []place.Place          `json:"suggestions"`
	LoadState   LoadState              `json:"load_state"`
	LoadError   string                 `json:"load_error,omitempty"`
	Current     *forecast.Current      `json:"current,omitempty"`
	Hourly      []forecast.HourlyPoint `json:"hourly,omitempty"`
	Daily       []forecast.DailyPoint  `json:"daily,omitempty"`
	Favorite    bool                   `json:"favorite"`
	UpdatedAt   time.Time              `json:"updated_at"`
}
