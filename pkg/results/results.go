// Package results persists the numbered list of search results so that a
// later invocation can resolve "open result N" back into a URL. It owns the
// numbering; the core fetch path does not.
package results

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/glebarez/go-sqlite"

	"github.com/go2web/go2web/pkg/search"
)

// Store is a durable, numbered result list backed by SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the result list database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening results db %q: %w", path, err)
	}
	if _, err := db.Exec(
		"CREATE TABLE IF NOT EXISTS results (num INTEGER PRIMARY KEY, title TEXT, url TEXT)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing results db: %w", err)
	}
	return &Store{db: db}, nil
}

// Save replaces the stored list with the given results, numbered from 1 in
// order.
func (s *Store) Save(list []search.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec("DELETE FROM results"); err != nil {
		return err
	}
	for i, result := range list {
		if _, err := tx.Exec(
			"INSERT INTO results (num, title, url) VALUES (?, ?, ?)",
			i+1, result.Title, result.URL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Get returns stored result number n (1-based).
func (s *Store) Get(n int) (search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result search.Result
	err := s.db.QueryRow(
		"SELECT title, url FROM results WHERE num = ?", n).Scan(&result.Title, &result.URL)
	if errors.Is(err, sql.ErrNoRows) {
		return result, fmt.Errorf("no stored result number %d (run a search first)", n)
	}
	return result, err
}

// List returns all stored results in number order.
func (s *Store) List() ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.Query("SELECT title, url FROM results ORDER BY num")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []search.Result
	for rows.Next() {
		var result search.Result
		if err := rows.Scan(&result.Title, &result.URL); err != nil {
			return nil, err
		}
		list = append(list, result)
	}
	return list, rows.Err()
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
