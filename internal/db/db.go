package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB is the SQLite store for spaces, add-ons and reservations.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates missing tables.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Immediate transactions take the write lock on BEGIN, so two reservations for the
	// same space cannot both pass the overlap check.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// Path returns the database file location.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone TEXT,
			email TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS spaces (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			coworking_space TEXT,
			description TEXT,
			capacity INTEGER NOT NULL DEFAULT 1,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			price_hourly TEXT NOT NULL DEFAULT '0',
			price_daily TEXT NOT NULL DEFAULT '0',
			price_weekly TEXT NOT NULL DEFAULT '0',
			price_monthly TEXT NOT NULL DEFAULT '0',
			open_time TEXT NOT NULL DEFAULT '08:00',
			close_time TEXT NOT NULL DEFAULT '20:00',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS add_ons (
			id INTEGER PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '0',
			price_type TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS reservations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			user_id INTEGER NOT NULL DEFAULT 0,
			space_id INTEGER NOT NULL,
			coworking_space TEXT,
			date TEXT NOT NULL,
			time_slot TEXT NOT NULL,
			slot_start INTEGER,
			slot_end INTEGER,
			full_day BOOLEAN NOT NULL DEFAULT 0,
			total_price TEXT NOT NULL DEFAULT '0',
			extras TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (space_id) REFERENCES spaces(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_spaces_active ON spaces(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_space_date ON reservations(space_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_user ON reservations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_users_email ON users(email)`,
		// Identical active slots are rejected even if a writer skips the overlap check.
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_reservations_active_slot
			ON reservations(space_id, date, time_slot) WHERE status != 'cancelled'`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}

	return db.ensureNewColumns()
}

// ensureNewColumns upgrades databases created before a column existed.
func (db *DB) ensureNewColumns() error {
	migrations := []string{
		`ALTER TABLE reservations ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
		`ALTER TABLE reservations ADD COLUMN extras TEXT`,
		`ALTER TABLE add_ons ADD COLUMN is_active BOOLEAN NOT NULL DEFAULT 1`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err == nil || strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			continue
		}
		return fmt.Errorf("exec migration %s: %w", trimSQL(m), err)
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
