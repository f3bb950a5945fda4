package favorites

import (
	"encoding/json"
	"sync"

	"github.com/skycast-app/skycast/internal/place"
	"github.com/skycast-app/skycast/internal/storage/sqlite"
	"github.com/skycast-app/skycast/pkg/logger"
)

// KV is the persistence boundary the store writes through
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Store is a deduplicated, order-preserving list of favorite places, most
// recently added first, capped in size. Uniqueness is defined by
// coordinate-rounding equality, not by place ID. Every mutation is persisted.
type Store struct {
	mu     sync.Mutex
	places []place.Place
	max    int
	kv     KV
	logger *logger.Logger
}

// NewStore creates a favorites store, loading any persisted list. Absent or
// corrupt stored data falls back to an empty list.
func NewStore(kv KV, maxEntries int, log *logger.Logger) *Store {
	s := &Store{
		max:    maxEntries,
		kv:     kv,
		logger: log.Named("favorites"),
	}
	s.load()
	return s
}

// load reads the persisted list once at startup
func (s *Store) load() {
	raw, found, err := s.kv.Get(sqlite.KeyFavorites)
	if err != nil {
		s.logger.Warn("Failed to load favorites, starting empty", logger.Error(err))
		return
	}
	if !found {
		return
	}

	var places []place.Place
	if err := json.Unmarshal([]byte(raw), &places); err != nil {
		s.logger.Warn("Stored favorites failed to parse, starting empty", logger.Error(err))
		return
	}

	// Re-apply cap and dedup in case the stored data predates the limits
	seen := make(map[string]bool)
	for _, p := range places {
		if len(s.places) >= s.max {
			break
		}
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		s.places = append(s.places, p)
	}

	s.logger.Info("Loaded favorites", logger.Int("count", len(s.places)))
}

// Toggle adds the place if absent and removes it if present, then persists.
// Returns true if the place is a favorite after the call.
func (s *Store) Toggle(p place.Place) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.places {
		if place.Equal(existing, p) {
			s.places = append(s.places[:i], s.places[i+1:]...)
			s.persist()
			return false
		}
	}

	// Prepend and truncate to the cap, evicting the oldest entry
	s.places = append([]place.Place{p}, s.places...)
	if len(s.places) > s.max {
		s.places = s.places[:s.max]
	}
	s.persist()
	return true
}

// IsFavorite reports whether an equal place is present
func (s *Store) IsFavorite(p place.Place) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.places {
		if place.Equal(existing, p) {
			return true
		}
	}
	return false
}

// List returns a copy of the favorites, most recently added first
func (s *Store) List() []place.Place {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]place.Place, len(s.places))
	copy(out, s.places)
	return out
}

// persist writes the current list through the persistence boundary.
// Caller must hold the lock.
func (s *Store) persist() {
	data, err := json.Marshal(s.places)
	if err != nil {
		s.logger.Error("Failed to encode favorites", logger.Error(err))
		return
	}
	if err := s.kv.Set(sqlite.KeyFavorites, string(data)); err != nil {
		s.logger.Error("Failed to persist favorites", logger.Error(err))
	}
}
