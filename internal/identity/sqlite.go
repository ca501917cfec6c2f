package identity

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SQLiteStore persists identity records in the service's SQLite database.
// The same handle is shared with the durable cache tier; SQLite serializes
// writers, which gives the refresh path its atomicity.
type SQLiteStore struct {
	db *sql.DB
}

const identitySchema = `
CREATE TABLE IF NOT EXISTS identities (
	character_id   INTEGER PRIMARY KEY,
	character_name TEXT    NOT NULL,
	access_token   TEXT    NOT NULL,
	refresh_token  TEXT    NOT NULL,
	token_expiry   INTEGER NOT NULL,
	scopes         TEXT    NOT NULL,
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
`

// NewSQLiteStore prepares the identity table on the provided handle.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, identitySchema); err != nil {
		return nil, fmt.Errorf("creating identity schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, characterID int64) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT character_id, character_name, access_token, refresh_token,
		       token_expiry, scopes, active, created_at, updated_at
		FROM identities WHERE character_id = ?`, characterID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("loading identity %d: %w", characterID, err)
	}
	return rec, true, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec Record) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO identities
			(character_id, character_name, access_token, refresh_token,
			 token_expiry, scopes, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id) DO UPDATE SET
			character_name = excluded.character_name,
			access_token   = excluded.access_token,
			refresh_token  = excluded.refresh_token,
			token_expiry   = excluded.token_expiry,
			scopes         = excluded.scopes,
			active         = excluded.active,
			updated_at     = excluded.updated_at`,
		rec.CharacterID, rec.CharacterName, rec.AccessToken, rec.RefreshToken,
		rec.TokenExpiry.UTC().Unix(), strings.Join(rec.Scopes, " "),
		boolToInt(rec.Active), rec.CreatedAt.UTC().Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("upserting identity %d: %w", rec.CharacterID, err)
	}
	return nil
}

func (s *SQLiteStore) MarkInactive(ctx context.Context, characterID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE identities SET active = 0, updated_at = ? WHERE character_id = ?`,
		time.Now().UTC().Unix(), characterID)
	if err != nil {
		return fmt.Errorf("deactivating identity %d: %w", characterID, err)
	}
	return nil
}

func (s *SQLiteStore) ListActive(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT character_id, character_name, access_token, refresh_token,
		       token_expiry, scopes, active, created_at, updated_at
		FROM identities WHERE active = 1 ORDER BY character_id`)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var expiry, created, updated int64
	var scopes string
	var active int

	err := row.Scan(&rec.CharacterID, &rec.CharacterName, &rec.AccessToken,
		&rec.RefreshToken, &expiry, &scopes, &active, &created, &updated)
	if err != nil {
		return Record{}, err
	}

	rec.TokenExpiry = time.Unix(expiry, 0).UTC()
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	rec.Active = active != 0
	if scopes != "" {
		rec.Scopes = strings.Fields(scopes)
	}
	return rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
