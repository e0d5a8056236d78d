package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database manages the SQLite database for pipeline state persistence
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support concurrent writes well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetDB returns the underlying database connection
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// initSchema initializes the database schema
func (d *Database) initSchema() error {
	schema := `
	-- System state table
	CREATE TABLE IF NOT EXISTS system_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- One row per processed frame: the structured result record
	CREATE TABLE IF NOT EXISTS frame_results (
		id TEXT PRIMARY KEY,
		frame_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		frame_path TEXT NOT NULL,
		skipped BOOLEAN DEFAULT 0,
		skip_reason TEXT,
		stage TEXT NOT NULL,
		threat_level TEXT,
		threat_score INTEGER,
		alert_sent BOOLEAN DEFAULT 0,
		alert_debounced BOOLEAN DEFAULT 0,
		error TEXT,
		processing_ms INTEGER,
		payload TEXT, -- Full result record as JSON
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Classification audit store keyed by frame identity
	CREATE TABLE IF NOT EXISTS classifications (
		frame_id TEXT PRIMARY KEY,
		frame_path TEXT NOT NULL,
		task TEXT NOT NULL,
		description TEXT NOT NULL,
		latency_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Dispatched alert history
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		frame_id TEXT NOT NULL,
		level TEXT NOT NULL,
		score INTEGER NOT NULL,
		confidence INTEGER NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for common queries
	CREATE INDEX IF NOT EXISTS idx_frame_results_created ON frame_results(created_at);
	CREATE INDEX IF NOT EXISTS idx_frame_results_sequence ON frame_results(sequence);
	CREATE INDEX IF NOT EXISTS idx_alerts_level ON alerts(level);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	CREATE INDEX IF NOT EXISTS idx_classifications_created ON classifications(created_at);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}
