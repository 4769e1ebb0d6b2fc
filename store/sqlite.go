package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore keeps each logical key as a JSON value in a kv table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// pending migrations. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, &PersistenceError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &PersistenceError{Op: "open", Err: fmt.Errorf("opening database: %w", err)}
	}
	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, &PersistenceError{Op: "open", Err: err}
	}

	return &SQLiteStore{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Load reads both keys. Values that are not valid JSON are treated as
// absent and reported in Discarded.
func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN (?, ?)`, KeyHomeSet, KeyCards)
	if err != nil {
		return State{}, &PersistenceError{Op: "load", Err: err}
	}
	defer rows.Close()

	values := make(map[string]any, 2)
	var discarded []error
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return State{}, &PersistenceError{Op: "load", Err: err}
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			discarded = append(discarded, fmt.Errorf("key %s: %w", key, err))
			continue
		}
		values[key] = v
	}
	if err := rows.Err(); err != nil {
		return State{}, &PersistenceError{Op: "load", Err: err}
	}

	st := decodeState(values[KeyHomeSet], values[KeyCards])
	st.Discarded = append(discarded, st.Discarded...)
	return st, nil
}

// Save writes both keys in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, st State) error {
	homeSet, err := json.Marshal(st.HomeSet)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	cardsJSON, err := json.Marshal(encode(st.Cards))
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	defer tx.Rollback()

	const upsert = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	for _, kv := range []struct {
		key   string
		value []byte
	}{
		{KeyHomeSet, homeSet},
		{KeyCards, cardsJSON},
	} {
		if _, err := tx.ExecContext(ctx, upsert, kv.key, string(kv.value)); err != nil {
			return &PersistenceError{Op: "save", Err: fmt.Errorf("writing %s: %w", kv.key, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "save", Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
