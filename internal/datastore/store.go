// Package datastore keeps an append-only journal of locker records and a
// current-state table per collection, both in one SQLite database.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// DefaultCacheSize is the number of current records kept decoded in memory.
const DefaultCacheSize = 1024

// Record is one journal entry.
type Record struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Timestamp  int64          `json:"ts"`
	Data       map[string]any `json:"data"`
}

// Store is the journal plus current-state table.
type Store struct {
	db    *sql.DB
	path  string
	cache *lru.Cache[string, string]

	// mu serializes journal-then-current sequences.
	mu sync.Mutex

	// currentMu orders writes to the current table with cache fills, so a
	// fill never caches a row older than one already written.
	currentMu sync.Mutex
}

// beforeCacheFill runs between a cache-miss read and the fill. Tests use it.
var beforeCacheFill = func() {}

// Open opens or creates the datastore at path. An empty path opens an
// in-memory database.
func Open(path string, cacheSize int) (*Store, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if path != "" {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		} {
			if _, err := db.Exec(pragma); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to set pragma: %w", err)
			}
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, _ := lru.New[string, string](cacheSize)

	return &Store{db: db, path: path, cache: cache}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		record_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		data TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_collection_ts ON journal(collection, ts, seq);

	CREATE TABLE IF NOT EXISTS current (
		collection TEXT NOT NULL,
		record_id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, record_id)
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create datastore schema: %w", err)
	}
	return nil
}

func storeErr(op string, err error) error {
	return ixerrors.New(ixerrors.ErrCodeDatastoreIO, op+": "+err.Error(), err).WithDetail("op", op)
}

func cacheKey(collection, id string) string {
	return collection + "\x00" + id
}

// AddRecord appends a record to a collection's journal.
func (s *Store) AddRecord(ctx context.Context, collection, id string, ts int64, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal (collection, record_id, ts, data) VALUES (?, ?, ?, ?)`,
		collection, id, ts, string(data))
	if err != nil {
		return storeErr("add record", err)
	}
	return nil
}

// Since returns the journal entries of a collection with a timestamp
// strictly after ts, oldest first.
func (s *Store) Since(ctx context.Context, collection string, ts int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, ts, data
		FROM journal
		WHERE collection = ? AND ts > ?
		ORDER BY ts, seq
	`, collection, ts)
	if err != nil {
		return nil, storeErr("read journal", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		r := Record{Collection: collection}
		var data string
		if err := rows.Scan(&r.ID, &r.Timestamp, &data); err != nil {
			return nil, storeErr("scan journal", err)
		}
		if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
			return nil, storeErr("decode journal", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("read journal", err)
	}
	return records, nil
}

// PutCurrent inserts or replaces the current state of a record.
func (s *Store) PutCurrent(ctx context.Context, collection, id string, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	s.currentMu.Lock()
	defer s.currentMu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO current (collection, record_id, data) VALUES (?, ?, ?)
		ON CONFLICT(collection, record_id) DO UPDATE SET data = excluded.data
	`, collection, id, string(data))
	if err != nil {
		return storeErr("put current", err)
	}
	s.cache.Add(cacheKey(collection, id), string(data))
	return nil
}

// updateCurrent replaces the state of an existing record only.
func (s *Store) updateCurrent(ctx context.Context, collection, id string, record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	s.currentMu.Lock()
	defer s.currentMu.Unlock()

	s.cache.Remove(cacheKey(collection, id))
	_, err = s.db.ExecContext(ctx,
		`UPDATE current SET data = ? WHERE collection = ? AND record_id = ?`,
		string(data), collection, id)
	if err != nil {
		return storeErr("update current", err)
	}
	return nil
}

// GetCurrent returns the current state of a record.
func (s *Store) GetCurrent(ctx context.Context, collection, id string) (map[string]any, bool, error) {
	key := cacheKey(collection, id)

	data, ok := s.cache.Get(key)
	if !ok {
		var err error
		if data, ok, err = s.fillCurrent(ctx, collection, id); err != nil || !ok {
			return nil, false, err
		}
	}

	var record map[string]any
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, false, storeErr("decode current", err)
	}
	return record, true, nil
}

// fillCurrent reads a row on a cache miss and caches it. Writers hold
// currentMu too, so the cached row is never older than the table.
func (s *Store) fillCurrent(ctx context.Context, collection, id string) (string, bool, error) {
	s.currentMu.Lock()
	defer s.currentMu.Unlock()

	key := cacheKey(collection, id)
	if data, ok := s.cache.Get(key); ok {
		return data, true, nil
	}

	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM current WHERE collection = ? AND record_id = ?`,
		collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, storeErr("get current", err)
	}
	beforeCacheFill()
	s.cache.Add(key, data)
	return data, true, nil
}

// RemoveCurrent deletes the current state of a record. Removing an absent
// record is not an error.
func (s *Store) RemoveCurrent(ctx context.Context, collection, id string) error {
	s.currentMu.Lock()
	defer s.currentMu.Unlock()

	s.cache.Remove(cacheKey(collection, id))
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM current WHERE collection = ? AND record_id = ?`, collection, id)
	if err != nil {
		return storeErr("remove current", err)
	}
	return nil
}

// ListCurrent returns every current record of a collection ordered by id.
// Rows that fail to decode are skipped.
func (s *Store) ListCurrent(ctx context.Context, collection string) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM current WHERE collection = ? ORDER BY record_id`, collection)
	if err != nil {
		return nil, storeErr("list current", err)
	}
	defer rows.Close()

	out := []map[string]any{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, storeErr("scan current", err)
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			continue
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// CurrentIDs returns the record ids of a collection's current table.
func (s *Store) CurrentIDs(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id FROM current WHERE collection = ? ORDER BY record_id`, collection)
	if err != nil {
		return nil, storeErr("list current", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storeErr("scan current", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Collections returns the names of collections with journal entries.
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT collection FROM journal ORDER BY collection`)
	if err != nil {
		return nil, storeErr("list collections", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, storeErr("scan collection", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
