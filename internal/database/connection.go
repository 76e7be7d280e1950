package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported database types
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
)

// Config selects and locates the database
type Config struct {
	Type string // sqlite or postgres
	Path string // sqlite file, ":memory:" for an in-memory database
	URL  string // postgres connection string
}

// Connect opens the database and creates the schema if needed
func Connect(cfg Config) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.Type {
	case TypePostgres:
		if cfg.URL == "" {
			return nil, fmt.Errorf("postgres connection string is empty")
		}
		db, err = sqlx.Connect("postgres", cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}

	case TypeSQLite, "":
		db, err = connectSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	if err := initializeSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func connectSQLite(path string) (*sqlx.DB, error) {
	if path == "" {
		path = filepath.Join("data", "flashbot.db")
	}

	// Create data directory if it doesn't exist
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// SQLite doesn't support multiple writers; one connection also keeps :memory: alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return db, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"cards", `
		CREATE TABLE IF NOT EXISTS cards (
			id BIGINT PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			telegram_id BIGINT PRIMARY KEY,
			username TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			notification_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			notification_hour INTEGER NOT NULL DEFAULT 9,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`},
	{"review_state", `
		CREATE TABLE IF NOT EXISTS review_state (
			user_id BIGINT NOT NULL,
			state_key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, state_key)
		)`},
}

// initializeSchema creates necessary tables if they don't exist
func initializeSchema(db *sqlx.DB) error {
	for _, table := range schema {
		if _, err := db.Exec(table.ddl); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}
	return nil
}
