package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver

	"github.com/vyrodovalexey/storefront/internal/model"
)

// dialect holds the statements that differ between SQL engines.
type dialect struct {
	driver string
	schema string
	load   string
	save   string
	delete string
}

var sqliteDialect = dialect{
	driver: "sqlite3",
	schema: `
CREATE TABLE IF NOT EXISTS storefront_state (
	state_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);`,
	load: `SELECT payload FROM storefront_state WHERE state_key = ?`,
	save: `INSERT INTO storefront_state (state_key, payload, updated_at) VALUES (?, ?, ?)
ON CONFLICT (state_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
	delete: `DELETE FROM storefront_state WHERE state_key = ?`,
}

var postgresDialect = dialect{
	driver: "pgx",
	schema: `
CREATE TABLE IF NOT EXISTS storefront_state (
	state_key  TEXT PRIMARY KEY,
	payload    TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`,
	load: `SELECT payload FROM storefront_state WHERE state_key = $1`,
	save: `INSERT INTO storefront_state (state_key, payload, updated_at) VALUES ($1, $2, $3)
ON CONFLICT (state_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
	delete: `DELETE FROM storefront_state WHERE state_key = $1`,
}

// SQLStore implements Store on top of database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewSQLiteStore opens (and creates if needed) a SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite store: database path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite store: create database dir: %w", err)
	}

	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// SQLite serializes writers; a single connection avoids "database is locked".
	db.SetMaxOpenConns(1)

	return newSQLStore(ctx, db, sqliteDialect)
}

// NewPostgresStore connects to PostgreSQL using a pgx connection string.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres store: connection string must not be empty")
	}

	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: open: %w", err)
	}

	return newSQLStore(ctx, db, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s store: ping: %w", d.driver, err)
	}

	if _, err := db.ExecContext(ctx, d.schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s store: create schema: %w", d.driver, err)
	}

	return &SQLStore{db: db, dialect: d}, nil
}

// Load returns the state saved under key.
func (s *SQLStore) Load(ctx context.Context, key string) (*model.PersistedState, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, s.dialect.load, key).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load state: %w", err)
	}

	return decodeState(payload)
}

// Save replaces the state saved under key.
func (s *SQLStore) Save(ctx context.Context, key string, state model.PersistedState) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := encodeState(state)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.save, key, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	return nil
}

// Delete removes the state saved under key.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.delete, key); err != nil {
		return fmt.Errorf("delete state: %w", err)
	}

	return nil
}

// Close closes the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
