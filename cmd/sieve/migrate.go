package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ledgersieve/ledgersieve/internal/cli"
	"github.com/ledgersieve/ledgersieve/internal/storage"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Every command migrates on startup; this exists for provisioning a
database ahead of time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dbPath := viper.GetString("database.path")
			if dbPath == "" {
				dbPath = "$HOME/.local/share/sieve/sieve.db"
			}
			dbPath = expandPath(dbPath)

			slog.Info("running database migrations",
				"database", dbPath,
				"target_version", storage.ExpectedSchemaVersion)

			store, err := initStorage(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			defer func() { _ = store.Close() }()

			fmt.Println(cli.SuccessStyle.Render(
				fmt.Sprintf("✓ Database at schema version %d", storage.ExpectedSchemaVersion)))
			return nil
		},
	}
}
