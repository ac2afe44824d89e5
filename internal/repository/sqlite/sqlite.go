package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS classifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		generation INTEGER NOT NULL DEFAULT 0,
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		filesize INTEGER DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		rendered TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		classification_id INTEGER NOT NULL,
		rank INTEGER NOT NULL,
		label TEXT NOT NULL,
		probability REAL DEFAULT 0,
		FOREIGN KEY (classification_id) REFERENCES classifications(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_classifications_session ON classifications(session_id);
	CREATE INDEX IF NOT EXISTS idx_classifications_created ON classifications(created_at);
	CREATE INDEX IF NOT EXISTS idx_predictions_label ON predictions(label);
	CREATE INDEX IF NOT EXISTS idx_predictions_classification ON predictions(classification_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
