package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores records in a single SQLite table
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and creates) the database at dbPath
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database tables: %w", err)
	}
	return b, nil
}

// initTables initializes database tables
func (b *SQLiteBackend) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS records (
			type TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (type, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at)`,
	}

	for _, query := range queries {
		if _, err := b.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %s, error: %w", query, err)
		}
	}
	return nil
}

// Read implements Backend
func (b *SQLiteBackend) Read(ctx context.Context, typ, key string) ([]byte, error) {
	var value string
	err := b.db.QueryRowContext(ctx,
		"SELECT value FROM records WHERE type = ? AND key = ?",
		typ, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return []byte(value), nil
}

// Write implements Backend
func (b *SQLiteBackend) Write(ctx context.Context, typ, key string, data []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO records (type, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(type, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		typ, key, string(data), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

// Keys implements Backend
func (b *SQLiteBackend) Keys(ctx context.Context, typ string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT key FROM records WHERE type = ? ORDER BY key", typ)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan record key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Close closes the database connection
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
