// Package store implements the record store: named collections of ordered
// JSON records plus singleton slots, persisted in SQLite. Writers publish a
// change notification per collection so aggregators can recompute without
// polling.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/akamquiz/akamquiz/internal/model"

	_ "modernc.org/sqlite"
)

// Collection names understood by the store.
const (
	CollectionUsers    = "users"
	CollectionResults  = "testResults"
	CollectionRatings  = "userRatings"
	CollectionMessages = "contactMessages"
)

// Singleton slot names.
const (
	SlotCurrentUser = "currentUser"
	SlotAuthToken   = "authToken"
)

type Store struct {
	db *sql.DB

	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
	closed bool
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, subs: make(map[int]*subscription)}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for id, sub := range s.subs {
			close(sub.ch)
			delete(s.subs, id)
		}
	}
	s.mu.Unlock()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		key TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection, id);

	CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		payload TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// appendRecord marshals v and appends it to the collection, then notifies.
func (s *Store) appendRecord(collection, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", collection, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO records (collection, key, payload) VALUES (?, ?, ?)`,
		collection, key, string(payload),
	)
	if err != nil {
		return err
	}
	s.notify(collection)
	return nil
}

// updateRecord rewrites exactly the record identified by key. Other rows,
// including ones that failed to parse, are left untouched.
func (s *Store) updateRecord(collection, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s record: %w", collection, err)
	}
	res, err := s.db.Exec(
		`UPDATE records SET payload = ? WHERE collection = ? AND key = ?`,
		string(payload), collection, key,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s record %q not found", collection, key)
	}
	s.notify(collection)
	return nil
}

func (s *Store) deleteRecord(collection, key string) error {
	_, err := s.db.Exec(
		`DELETE FROM records WHERE collection = ? AND key = ?`, collection, key,
	)
	if err != nil {
		return err
	}
	s.notify(collection)
	return nil
}

// readCollection returns the raw payloads of a collection in insertion order.
func (s *Store) readCollection(collection string) ([][]byte, error) {
	rows, err := s.db.Query(
		`SELECT payload FROM records WHERE collection = ? ORDER BY id`, collection,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payloads [][]byte
	for rows.Next() {
		var p []byte
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		payloads = append(payloads, p)
	}
	return payloads, rows.Err()
}

func (s *Store) count(collection string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM records WHERE collection = ?`, collection,
	).Scan(&n)
	return n, err
}

// decodeAll parses every payload of a collection. A payload that does not
// parse surfaces ErrStoreCorrupt; the stored value is never modified here,
// so a later successful write path is the only thing that replaces it.
func decodeAll[T any](collection string, payloads [][]byte) ([]T, error) {
	out := make([]T, 0, len(payloads))
	for _, p := range payloads {
		var v T
		if err := json.Unmarshal(p, &v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrStoreCorrupt, collection, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SetSlot writes a singleton slot.
func (s *Store) SetSlot(name string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal slot %s: %w", name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO slots (name, payload) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET payload = ?`,
		name, string(payload), string(payload),
	)
	return err
}

// GetSlot reads a singleton slot into v. Returns false when the slot is
// empty, ErrStoreCorrupt when the stored payload does not parse.
func (s *Store) GetSlot(name string, v any) (bool, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM slots WHERE name = ?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, fmt.Errorf("%w: slot %s: %v", model.ErrStoreCorrupt, name, err)
	}
	return true, nil
}

// ClearSlot removes a singleton slot. Idempotent.
func (s *Store) ClearSlot(name string) error {
	_, err := s.db.Exec(`DELETE FROM slots WHERE name = ?`, name)
	return err
}
