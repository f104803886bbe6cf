// Package sqlite persists the agent's local state: the imported game
// catalog, session history, RFID cards and their per-game permissions,
// ratings, and settings.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vrarcade/kiosk/pkg/logger"
	_ "modernc.org/sqlite"
)

// Import logger functions
var (
	String = logger.String
	Error  = logger.Error
)

// Store owns the SQLite database connection shared by the storage types.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStore opens (creating if necessary) the agent database at the
// given path and initializes the schema.
func NewStore(dbPath string, log *logger.Logger) (*Store, error) {
	storeLogger := log.Named("sqlite")

	storeLogger.Info("Initializing SQLite storage", String("path", dbPath))

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &Store{db: db, logger: storeLogger}
	if err := store.initDB(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initDB initializes the database tables
func (s *Store) initDB() error {
	statements := []struct {
		name string
		sql  string
	}{
		{"games", `
			CREATE TABLE IF NOT EXISTS games (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				executable_path TEXT,
				working_directory TEXT,
				arguments TEXT,
				description TEXT,
				image_url TEXT,
				min_duration_seconds INTEGER NOT NULL DEFAULT 0,
				max_duration_seconds INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"sessions", `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				game_id TEXT NOT NULL,
				start_time TIMESTAMP NOT NULL,
				end_time TIMESTAMP,
				duration_seconds INTEGER,
				rfid_tag TEXT,
				rating INTEGER,
				status TEXT NOT NULL,
				FOREIGN KEY (game_id) REFERENCES games(id)
			)`},
		{"rfid_cards", `
			CREATE TABLE IF NOT EXISTS rfid_cards (
				tag_id TEXT PRIMARY KEY,
				name TEXT,
				status TEXT NOT NULL,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				last_used_at TIMESTAMP
			)`},
		{"rfid_game_permissions", `
			CREATE TABLE IF NOT EXISTS rfid_game_permissions (
				tag_id TEXT NOT NULL,
				game_id TEXT NOT NULL,
				permission_type TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (tag_id, game_id)
			)`},
		{"ratings", `
			CREATE TABLE IF NOT EXISTS ratings (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				game_id TEXT NOT NULL,
				rating INTEGER NOT NULL,
				rfid_tag TEXT,
				created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
		{"settings", `
			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
			)`},
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s table: %w", stmt.name, err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_sessions_rfid_tag ON sessions(rfid_tag)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_ratings_game_id ON ratings(game_id)`,
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// DB returns the underlying database handle for sibling storage types.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetSetting returns the value for key, or defaultValue when unset.
func (s *Store) GetSetting(key, defaultValue string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return defaultValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a setting value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}
