package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skycast-app/skycast/pkg/logger"
)

// Versioned keys for the persisted application state. The version suffix
// allows future format migrations: an old-format value simply fails to parse
// and the caller falls back to its default.
const (
	KeyFavorites = "favorites.v1"
	KeyLastPlace = "last_place.v1"
	KeySettings  = "settings.v1"
)

// KVStorage is a SQLite-backed key-value store for the persisted
// application state (favorites, last selected place, settings)
type KVStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewKVStorage creates a new SQLite-based key-value storage
func NewKVStorage(dbPath string, log *logger.Logger) (*KVStorage, error) {
	storageLogger := log.Named("sqlite-kv")

	storageLogger.Info("Initializing SQLite storage",
		logger.String("path", dbPath))

	// Open the database
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	storage := &KVStorage{
		db:     db,
		logger: storageLogger,
	}

	if err := storage.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return storage, nil
}

// initDB initializes the database tables
func (s *KVStorage) initDB() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create kv table: %w", err)
	}
	return nil
}

// Get returns the value stored under key. The second return value reports
// whether the key was present.
func (s *KVStorage) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value
func (s *KVStorage) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}

	s.logger.Debug("Persisted value",
		logger.String("key", key),
		logger.Int("bytes", len(value)))
	return nil
}

// Close closes the underlying database
func (s *KVStorage) Close() error {
	return s.db.Close()
}
