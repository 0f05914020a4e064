package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgersieve/ledgersieve/internal/classifier"
	"github.com/ledgersieve/ledgersieve/internal/engine"
	"github.com/ledgersieve/ledgersieve/internal/exemplar"
	"github.com/ledgersieve/ledgersieve/internal/service"
	"github.com/ledgersieve/ledgersieve/internal/storage"
	"github.com/ledgersieve/ledgersieve/internal/workflow"
)

// initStorage opens the configured database and runs pending migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	dbPath := viper.GetString("database.path")
	if dbPath == "" {
		dbPath = "$HOME/.local/share/sieve/sieve.db"
	}
	dbPath = expandPath(dbPath)

	store, err := storage.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// expandPath resolves a leading tilde and environment variables.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// newClassifier builds the configured classifier client.
func newClassifier() (classifier.Client, error) {
	client, err := classifier.NewHTTPClient(classifier.HTTPConfig{
		Endpoint:    viper.GetString("classifier.endpoint"),
		APIKey:      viper.GetString("classifier.api_key"),
		Model:       viper.GetString("classifier.model"),
		Temperature: viper.GetFloat64("classifier.temperature"),
		MaxTokens:   viper.GetInt("classifier.max_tokens"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize classifier: %w", err)
	}
	return client, nil
}

// newLimiter builds the per-batch dispatch gate from config.
func newLimiter() *classifier.Limiter {
	calls := viper.GetInt("classify.rate_limit_calls")
	window := viper.GetDuration("classify.rate_limit_window")
	if calls <= 0 {
		calls = 2
	}
	if window <= 0 {
		window = 15 * time.Second
	}
	return classifier.NewLimiter(calls, window)
}

// engineConfig assembles the engine configuration, with config-file
// overrides on top of defaults.
func engineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	if v := viper.GetFloat64("classify.confidence_threshold"); v > 0 {
		cfg.ConfidenceThreshold = v
	}
	if v := viper.GetInt("classify.max_attempts"); v > 0 {
		cfg.MaxAttempts = v
	}
	if v := viper.GetInt("classify.exemplar_k"); v > 0 {
		cfg.ExemplarK = v
	}
	if v := viper.GetStringSlice("classify.vague_identifiers"); len(v) > 0 {
		cfg.VagueIdentifiers = v
	}
	return cfg
}

// newEngine wires storage, classifier, exemplar index, and the signal bus
// into a ready engine.
func newEngine(store service.Storage, bus *workflow.InProc) (*engine.Engine, error) {
	client, err := newClassifier()
	if err != nil {
		return nil, err
	}
	return engine.New(store, client, exemplar.NewIndex(store), bus, newLimiter(), engineConfig()), nil
}
