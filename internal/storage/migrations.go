package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					batch_id TEXT NOT NULL,
					date DATETIME NOT NULL,
					amount REAL NOT NULL,
					merchant TEXT,
					description TEXT NOT NULL,
					raw_fields TEXT,
					parent_id TEXT NOT NULL DEFAULT '',
					is_child INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_transactions_batch ON transactions(batch_id)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant)`,

				`CREATE TABLE IF NOT EXISTS taxonomy_nodes (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					description TEXT,
					parent_id TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS resolutions (
					transaction_id TEXT PRIMARY KEY,
					node_id TEXT NOT NULL,
					confidence REAL DEFAULT 0,
					reasoning TEXT,
					source TEXT NOT NULL,
					resolved_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id),
					FOREIGN KEY (node_id) REFERENCES taxonomy_nodes(id)
				)`,
				`CREATE INDEX idx_resolutions_node ON resolutions(node_id)`,

				`CREATE TABLE IF NOT EXISTS review_items (
					id TEXT PRIMARY KEY,
					transaction_id TEXT NOT NULL UNIQUE,
					batch_id TEXT NOT NULL,
					reason TEXT NOT NULL,
					suggestion TEXT,
					status TEXT NOT NULL DEFAULT 'pending',
					retry_count INTEGER NOT NULL DEFAULT 0,
					retrying_since DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (transaction_id) REFERENCES transactions(id)
				)`,
				`CREATE INDEX idx_review_items_status ON review_items(status)`,

				`CREATE TABLE IF NOT EXISTS batch_runs (
					id TEXT PRIMARY KEY,
					total_items INTEGER NOT NULL DEFAULT 0,
					categorized_count INTEGER NOT NULL DEFAULT 0,
					review_queue_count INTEGER NOT NULL DEFAULT 0,
					failed_count INTEGER NOT NULL DEFAULT 0,
					status TEXT NOT NULL DEFAULT 'processing',
					started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					completed_at DATETIME
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Sibling name dedup and synthetic taxonomy root",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				// The unique index is the sole taxonomy de-duplication
				// mechanism; concurrent proposals of the same
				// (parent, name) pair collapse onto one row.
				`CREATE UNIQUE INDEX idx_taxonomy_parent_name
					ON taxonomy_nodes(parent_id, lower(name))`,
				`INSERT OR IGNORE INTO taxonomy_nodes (id, name, description, parent_id)
					VALUES ('root', 'Root', 'Synthetic taxonomy root', '')`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Outcome event log for batch completion accounting",
		Up: func(tx *sql.Tx) error {
			// One row per (batch, transaction); re-delivered signals are
			// absorbed by the primary key so counters stay monotonic.
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS batch_outcomes (
					batch_id TEXT NOT NULL,
					transaction_id TEXT NOT NULL,
					kind TEXT NOT NULL,
					reason TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (batch_id, transaction_id)
				)
			`)
			return err
		},
	},
}

// Migrate applies all pending migrations to the database.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w",
				migration.Version, migration.Description, err)
		}

		if _, err := tx.Exec(
			`INSERT INTO schema_migrations (version) VALUES (?)`,
			migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		slog.Info("applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	return nil
}
