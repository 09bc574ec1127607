package cache

import (
	"net/http"
	"sync"
	"time"
)

// State is the outcome of a cache lookup.
type State int

const (
	// Miss means no usable entry exists for the key.
	Miss State = iota
	// Fresh means the entry is within its freshness window and may be
	// served directly.
	Fresh
	// Stale means the entry is past its freshness window but carries
	// validators, so it may be revalidated with a conditional request.
	Stale
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "miss"
	}
}

// Provider is a validated response cache.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Lookup returns the entry for the key together with its state.
	// On Miss the returned entry is the zero value. A stale entry
	// without validators is purged and reported as Miss.
	Lookup(key string) (Entry, State, error)
	// Put stores the entry under the key, replacing any previous one.
	Put(key string, entry Entry) error
	// Refresh applies a 304 Not Modified to the stored entry: headers
	// from the validation response are merged in and the freshness
	// window restarts. The stored body is reused without re-transfer.
	Refresh(key string, header http.Header, now time.Time) error
	// Clear removes all entries. It succeeds on an empty cache.
	Clear() error
	// Close releases the underlying storage.
	Close() error
}

// lookupState classifies an entry at lookup time.
// The boolean is false when the entry is useless and should be purged.
func lookupState(e Entry, now time.Time) (State, bool) {
	if e.IsFresh(now) {
		return Fresh, true
	}
	if e.HasValidators() {
		return Stale, true
	}
	return Miss, false
}

// MemCache is an in-memory Provider, used in tests and for the
// `-db memory` mode. Contents do not survive the process.
type MemCache struct {
	mu sync.Mutex
	db map[string]Entry

	// HeuristicTTL overrides DefaultHeuristicTTL for Refresh.
	HeuristicTTL time.Duration
}

// NewMemCache returns an empty in-memory cache.
func NewMemCache() *MemCache {
	return &MemCache{db: make(map[string]Entry)}
}

func (m *MemCache) Lookup(key string) (Entry, State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return Entry{}, Miss, nil
	}
	state, usable := lookupState(entry, time.Now())
	if !usable {
		delete(m.db, key)
		return Entry{}, Miss, nil
	}
	return entry, state, nil
}

func (m *MemCache) Put(key string, entry Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db[key] = entry
	return nil
}

func (m *MemCache) Refresh(key string, header http.Header, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.db[key]
	if !ok {
		return nil
	}
	entry.refresh(header, now, m.HeuristicTTL)
	m.db[key] = entry
	return nil
}

func (m *MemCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = make(map[string]Entry)
	return nil
}

func (m *MemCache) Close() error {
	return nil
}
