package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/rs/zerolog/log"
)

// SQLiteCache is the durable Provider. Entries survive process restarts and
// are only removed by Clear, by replacement, or when found useless at
// lookup time. An unreadable stored entry degrades to a miss, never an
// error.
type SQLiteCache struct {
	db *sql.DB
	// guards read-modify-write sequences (Refresh); sql.DB itself is
	// safe for concurrent use
	mu sync.Mutex

	// HeuristicTTL overrides DefaultHeuristicTTL for Refresh.
	HeuristicTTL time.Duration
}

// NewSQLiteCache opens (creating if needed) the cache database at path.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db %q: %w", path, err)
	}
	if _, err := db.Exec(
		"CREATE TABLE IF NOT EXISTS cache (key TEXT PRIMARY KEY, expires INTEGER, entry BLOB)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache db: %w", err)
	}
	if _, err := db.Exec(
		"CREATE INDEX IF NOT EXISTS expires_idx ON cache (expires)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing cache db: %w", err)
	}
	return &SQLiteCache{db: db}, nil
}

func (s *SQLiteCache) Lookup(key string) (Entry, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(key)
}

func (s *SQLiteCache) lookupLocked(key string) (Entry, State, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT entry FROM cache WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, Miss, nil
	}
	if err != nil {
		return Entry{}, Miss, err
	}
	entry, err := unmarshalEntry(blob)
	if err != nil {
		// corrupted entry: purge and treat as a miss
		log.Error().Err(err).Str("key", key).Msg("Could not read cache entry, purging")
		s.purgeLocked(key)
		return Entry{}, Miss, nil
	}
	state, usable := lookupState(entry, time.Now())
	if !usable {
		s.purgeLocked(key)
		return Entry{}, Miss, nil
	}
	return entry, state, nil
}

func (s *SQLiteCache) Put(key string, entry Entry) error {
	blob, err := entry.marshal()
	if err != nil {
		return fmt.Errorf("serializing cache entry: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO cache (key, expires, entry) VALUES (?, ?, ?)",
		key, entry.Expires.Unix(), blob)
	return err
}

func (s *SQLiteCache) Refresh(key string, header http.Header, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var blob []byte
	err := s.db.QueryRow("SELECT entry FROM cache WHERE key = ?", key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	entry, err := unmarshalEntry(blob)
	if err != nil {
		s.purgeLocked(key)
		return nil
	}
	entry.refresh(header, now, s.HeuristicTTL)
	blob, err = entry.marshal()
	if err != nil {
		return fmt.Errorf("serializing cache entry: %w", err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO cache (key, expires, entry) VALUES (?, ?, ?)",
		key, entry.Expires.Unix(), blob)
	return err
}

func (s *SQLiteCache) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("DELETE FROM cache")
	return err
}

func (s *SQLiteCache) Close() error {
	return s.db.Close()
}

func (s *SQLiteCache) purgeLocked(key string) {
	if _, err := s.db.Exec("DELETE FROM cache WHERE key = ?", key); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Could not purge cache entry")
	}
}
