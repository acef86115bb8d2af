package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Veraticus/saffron/internal/common"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL,
					subcategory TEXT NOT NULL DEFAULT '',
					system_generated BOOLEAN NOT NULL DEFAULT 0,
					approved BOOLEAN NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE (name, subcategory)
				)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					hash TEXT NOT NULL,
					date DATETIME NOT NULL,
					merchant TEXT NOT NULL,
					description TEXT,
					amount REAL NOT NULL,
					account_id TEXT,
					pattern_key TEXT,
					category_id INTEGER REFERENCES categories(id),
					method TEXT,
					confidence REAL NOT NULL DEFAULT 0,
					needs_review BOOLEAN NOT NULL DEFAULT 1,
					categorized_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant)`,
				`CREATE INDEX idx_transactions_pattern_key ON transactions(pattern_key)`,
				`CREATE INDEX idx_transactions_hash ON transactions(hash)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add merchant patterns and advisory cache",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS merchant_patterns (
					pattern_key TEXT PRIMARY KEY,
					category_id INTEGER NOT NULL REFERENCES categories(id),
					confidence REAL,
					usage_count INTEGER NOT NULL DEFAULT 0,
					display TEXT,
					metadata TEXT,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_merchant_patterns_category ON merchant_patterns(category_id)`,

				`CREATE TABLE IF NOT EXISTS llm_cache (
					merchant_key TEXT PRIMARY KEY,
					model TEXT NOT NULL,
					result TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add category suggestion tracking",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS category_suggestions (
					category TEXT NOT NULL,
					subcategory TEXT NOT NULL,
					support_count INTEGER NOT NULL DEFAULT 0,
					total_amount TEXT NOT NULL DEFAULT '0',
					max_confidence REAL NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'pending',
					first_seen DATETIME NOT NULL,
					last_seen DATETIME NOT NULL,
					PRIMARY KEY (category, subcategory)
				)`,
				`CREATE INDEX idx_category_suggestions_status ON category_suggestions(status)`,
			})
		},
	},
}

// Migrate brings the schema up to ExpectedSchemaVersion.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if version != ExpectedSchemaVersion {
		return fmt.Errorf("%w: schema version mismatch: expected %d, got %d",
			common.ErrDatabaseCorrupted, ExpectedSchemaVersion, version)
	}

	return nil
}

// SchemaVersion reports the database's current user_version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}
