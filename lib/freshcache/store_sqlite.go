package freshcache

import (
	"context"
	"database/sql"
	"time"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// SqliteStore persists cache entries durably across restarts.
// timestamps are stored as unix nanoseconds.
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(db *sql.DB) (SqliteStore, error) {
	_, err := db.Exec(Schema)
	if err != nil {
		return SqliteStore{}, err
	}
	return SqliteStore{db: db}, nil
}

func (s SqliteStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		"SELECT payload, updated_at FROM feed_cache WHERE key = ?",
		key,
	)
	var payload []byte
	var updatedAt int64
	err := row.Scan(&payload, &updatedAt)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{
		Key:       key,
		Payload:   payload,
		UpdatedAt: time.Unix(0, updatedAt),
	}, true, nil
}

func (s SqliteStore) Upsert(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO feed_cache (key, payload, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (key) DO UPDATE SET
				payload = excluded.payload,
				updated_at = excluded.updated_at`,
		entry.Key, entry.Payload, entry.UpdatedAt.UnixNano(),
	)
	return err
}

// List returns every stored entry, oldest first. used by the status
// command, not by the refresh pipeline.
func (s SqliteStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		"SELECT key, payload, updated_at FROM feed_cache ORDER BY updated_at ASC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var entry Entry
		var updatedAt int64
		err := rows.Scan(&entry.Key, &entry.Payload, &updatedAt)
		if err != nil {
			return nil, err
		}
		entry.UpdatedAt = time.Unix(0, updatedAt)
		out = append(out, entry)
	}
	return out, rows.Err()
}
