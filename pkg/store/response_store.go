// Package store implements the persistent keyed table the similarity
// cache records LLM responses in, alongside the index entry they
// answer for.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one stored response. The similarity cache keys it by the
// MD5-hex of the response text and sets RequestKey to the MD5-hex key
// of the prompt that produced it.
type Record struct {
	Key        string
	RequestKey string
	Response   string
	CreatedAt  time.Time
}

// ResponseStore is a persistent table of (key, request_key, response)
// rows, backed by SQLite.
//
// Safe for concurrent use: database/sql pools connections internally,
// and SQLite serializes writers.
type ResponseStore struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite-backed ResponseStore at path.
// Use ":memory:" for an ephemeral, test-only store.
func Open(path string) (*ResponseStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite only supports one writer at a time; cap the pool so
	// database/sql doesn't hand out concurrent write connections that
	// would otherwise serialize with SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)

	s := &ResponseStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ResponseStore) ensureSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS responses (
		key         TEXT PRIMARY KEY,
		request_key TEXT NOT NULL,
		response    TEXT NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("store: create responses table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_responses_request_key ON responses(request_key)`)
	if err != nil {
		return fmt.Errorf("store: create request_key index: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *ResponseStore) Close() error {
	return s.db.Close()
}

// Save upserts a response record. A save with an existing key replaces
// its request_key and response (used when a cache key is reused across
// an index eviction/reinsertion cycle).
func (s *ResponseStore) Save(key, requestKey, response string) error {
	_, err := s.db.Exec(
		`INSERT INTO responses (key, request_key, response) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET request_key=excluded.request_key, response=excluded.response`,
		key, requestKey, response,
	)
	if err != nil {
		return fmt.Errorf("store: save: %w", err)
	}
	return nil
}

// Fetch returns the record for key, or (nil, nil) if absent.
func (s *ResponseStore) Fetch(key string) (*Record, error) {
	row := s.db.QueryRow(`SELECT key, request_key, response, created_at FROM responses WHERE key = ?`, key)
	var rec Record
	if err := row.Scan(&rec.Key, &rec.RequestKey, &rec.Response, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: fetch: %w", err)
	}
	return &rec, nil
}

// FetchByRequest returns the first record (by rowid / insertion order)
// whose request_key matches requestKey, or (nil, nil) if none. The
// store assumes one response per request_key; if more than one exists
// (a bug elsewhere), the earliest insert wins.
func (s *ResponseStore) FetchByRequest(requestKey string) (*Record, error) {
	row := s.db.QueryRow(
		`SELECT key, request_key, response, created_at FROM responses WHERE request_key = ? ORDER BY rowid LIMIT 1`,
		requestKey,
	)
	var rec Record
	if err := row.Scan(&rec.Key, &rec.RequestKey, &rec.Response, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: fetch by request: %w", err)
	}
	return &rec, nil
}

// Remove deletes key. Returns true if a row was removed.
func (s *ResponseStore) Remove(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM responses WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("store: remove: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: remove: %w", err)
	}
	return n > 0, nil
}

// RemoveByRequest deletes every record whose request_key matches
// requestKey. Used when a prompt is evicted from the RequestIndex: all
// responses recorded against it must go too, to keep the size
// invariant `size(index) == size(store)`. Returns true if anything was removed.
func (s *ResponseStore) RemoveByRequest(requestKey string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM responses WHERE request_key = ?`, requestKey)
	if err != nil {
		return false, fmt.Errorf("store: remove by request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: remove by request: %w", err)
	}
	return n > 0, nil
}

// Exists reports whether key is present.
func (s *ResponseStore) Exists(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM responses WHERE key = ? LIMIT 1`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: exists: %w", err)
	}
	return true, nil
}

// Size returns the total number of rows.
func (s *ResponseStore) Size() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM responses`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: size: %w", err)
	}
	return n, nil
}
