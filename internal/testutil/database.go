// Package testutil provides shared test fixtures for the sieve project.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/model"
	"github.com/ledgersieve/ledgersieve/internal/storage"
)

// SetupTestDB creates a migrated in-memory database and registers cleanup.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedNode creates a taxonomy node under the given parent or fails the test.
func SeedNode(t *testing.T, store *storage.SQLiteStorage, name, parentID string) *model.TaxonomyNode {
	t.Helper()

	node, _, err := store.EnsureNode(context.Background(), model.NodePlan{
		Name:     name,
		ParentID: parentID,
	})
	if err != nil {
		t.Fatalf("failed to seed node %q: %v", name, err)
	}
	return node
}

// SeedBatch creates a batch run with the given total or fails the test.
func SeedBatch(t *testing.T, store *storage.SQLiteStorage, id string, total int) *model.BatchRun {
	t.Helper()

	batch := &model.BatchRun{ID: id, TotalItems: total}
	if err := store.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("failed to seed batch %q: %v", id, err)
	}
	return batch
}

// SeedTransaction persists a transaction with a derived id or fails the test.
func SeedTransaction(t *testing.T, store *storage.SQLiteStorage, batchID, merchant, description string, amount float64) model.Transaction {
	t.Helper()

	txn := model.Transaction{
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		BatchID:     batchID,
		Merchant:    merchant,
		Description: description,
		Amount:      amount,
	}
	txn.GenerateID()

	if err := store.SaveTransactions(context.Background(), []model.Transaction{txn}); err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	return txn
}
