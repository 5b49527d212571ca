// Package database provides SQLite access for the engine's persistent entities.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Migrate creates the engine tables if they do not exist.
func Migrate(conn *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dca_schedules (
			id TEXT PRIMARY KEY,
			asset TEXT NOT NULL,
			amount_per_period REAL NOT NULL,
			frequency TEXT NOT NULL,
			start_date INTEGER NOT NULL,
			duration_periods INTEGER NOT NULL,
			status TEXT NOT NULL,
			purchases_completed INTEGER NOT NULL,
			total_invested REAL NOT NULL,
			total_units_acquired REAL NOT NULL,
			next_purchase_date INTEGER NOT NULL,
			events BLOB,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		) STRICT`,
		`CREATE INDEX IF NOT EXISTS idx_dca_schedules_status ON dca_schedules(status)`,
		`CREATE TABLE IF NOT EXISTS stop_orders (
			id TEXT PRIMARY KEY,
			asset TEXT NOT NULL,
			amount REAL NOT NULL,
			stop_loss_price REAL,
			take_profit_price REAL,
			trailing_enabled INTEGER NOT NULL,
			trailing_percent REAL,
			trailing_stop_price REAL,
			status TEXT NOT NULL,
			trigger_reason TEXT,
			trigger_price REAL,
			triggered_at INTEGER,
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		) STRICT`,
		`CREATE INDEX IF NOT EXISTS idx_stop_orders_status ON stop_orders(status)`,
		`CREATE TABLE IF NOT EXISTS market_prices (
			asset TEXT PRIMARY KEY,
			price REAL NOT NULL,
			updated_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		) STRICT`,
		`CREATE TABLE IF NOT EXISTS market_closes (
			asset TEXT NOT NULL,
			date INTEGER NOT NULL,
			close REAL NOT NULL,
			PRIMARY KEY (asset, date)
		) STRICT`,
		`CREATE TABLE IF NOT EXISTS holdings (
			asset TEXT PRIMARY KEY,
			units REAL NOT NULL,
			volatility REAL NOT NULL,
			locked INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		) STRICT`,
		`CREATE TABLE IF NOT EXISTS allocation_targets (
			asset TEXT PRIMARY KEY,
			weight REAL NOT NULL,
			updated_at INTEGER NOT NULL
		) STRICT`,
		`CREATE TABLE IF NOT EXISTS order_intents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			asset TEXT NOT NULL,
			side TEXT,
			amount_usd REAL NOT NULL,
			price REAL,
			reference TEXT,
			priority INTEGER,
			created_at INTEGER NOT NULL
		) STRICT`,
		`CREATE INDEX IF NOT EXISTS idx_order_intents_kind ON order_intents(kind, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Migrate runs migrations on the wrapped connection.
func (db *DB) Migrate() error {
	return Migrate(db.conn)
}
