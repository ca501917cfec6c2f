package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLite is the durable cache tier, backed by a single table in the
// service database. Payloads are stored as opaque blobs with their
// expiry timestamp, queryable by key and bulk-deletable by expiry.
type SQLite struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key  TEXT    PRIMARY KEY,
	payload    BLOB    NOT NULL,
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at);
`

// NewSQLite prepares the cache table on the provided handle.
func NewSQLite(ctx context.Context, db *sql.DB) (*SQLite, error) {
	if _, err := db.ExecContext(ctx, cacheSchema); err != nil {
		return nil, fmt.Errorf("creating cache schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, key string) (Entry, bool, error) {
	var payload []byte
	var expiresAt int64

	err := s.db.QueryRowContext(ctx,
		`SELECT payload, expires_at FROM cache_entries WHERE cache_key = ?`, key).
		Scan(&payload, &expiresAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache entry %q: %w", key, err)
	}

	return Entry{Payload: payload, ExpiresAt: time.Unix(0, expiresAt).UTC()}, true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries (cache_key, payload, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			payload    = excluded.payload,
			expires_at = excluded.expires_at`,
		key, entry.Payload, entry.ExpiresAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("writing cache entry %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting cache entry %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at <= ?`, now.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("deleting expired cache entries: %w", err)
	}
	return result.RowsAffected()
}
