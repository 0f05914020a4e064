package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// CreateBatch records a new batch run in the processing state.
func (s *SQLiteStorage) CreateBatch(ctx context.Context, batch *model.BatchRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return createBatch(ctx, s.db, batch)
}

func (t *sqliteTx) CreateBatch(ctx context.Context, batch *model.BatchRun) error {
	return createBatch(ctx, t.tx, batch)
}

func createBatch(ctx context.Context, db dbtx, batch *model.BatchRun) error {
	if batch == nil {
		return fmt.Errorf("batch cannot be nil")
	}
	if err := validateString(batch.ID, "batch id"); err != nil {
		return err
	}
	if batch.Status == "" {
		batch.Status = model.BatchProcessing
	}
	if batch.StartedAt.IsZero() {
		batch.StartedAt = time.Now()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO batch_runs (id, total_items, status, started_at)
		VALUES (?, ?, ?, ?)
	`, batch.ID, batch.TotalItems, string(batch.Status), batch.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create batch run: %w", err)
	}
	return nil
}

// GetBatch returns the status readout for a batch run.
func (s *SQLiteStorage) GetBatch(ctx context.Context, id string) (*model.BatchRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getBatch(ctx, s.db, id)
}

func (t *sqliteTx) GetBatch(ctx context.Context, id string) (*model.BatchRun, error) {
	return getBatch(ctx, t.tx, id)
}

func getBatch(ctx context.Context, db dbtx, id string) (*model.BatchRun, error) {
	var batch model.BatchRun
	var status string
	var completedAt sql.NullTime

	err := db.QueryRowContext(ctx, `
		SELECT id, total_items, categorized_count, review_queue_count,
		       failed_count, status, started_at, completed_at
		FROM batch_runs
		WHERE id = ?`, id).Scan(
		&batch.ID, &batch.TotalItems, &batch.CategorizedCount,
		&batch.ReviewQueueCount, &batch.FailedCount, &status,
		&batch.StartedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, ErrBatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query batch run: %w", err)
	}

	batch.Status = model.BatchStatus(status)
	if completedAt.Valid {
		batch.CompletedAt = &completedAt.Time
	}
	return &batch, nil
}

// AddBatchItems extends a batch's total after split children are spawned,
// so completion accounting still converges.
func (s *SQLiteStorage) AddBatchItems(ctx context.Context, batchID string, n int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return err
	}
	return addBatchItems(ctx, s.db, batchID, n)
}

func (t *sqliteTx) AddBatchItems(ctx context.Context, batchID string, n int) error {
	return addBatchItems(ctx, t.tx, batchID, n)
}

func addBatchItems(ctx context.Context, db dbtx, batchID string, n int) error {
	if n <= 0 {
		return fmt.Errorf("item count must be positive, got %d", n)
	}

	result, err := db.ExecContext(ctx, `
		UPDATE batch_runs SET total_items = total_items + ? WHERE id = ?
	`, n, batchID)
	if err != nil {
		return fmt.Errorf("failed to extend batch total: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrBatchNotFound)
	}
	return nil
}

// RecordOutcome applies one outcome signal to a batch's counters. The event
// row keyed (batch, transaction) absorbs redelivery: only the first signal
// for a transaction bumps a counter, so applying the same signal twice (or
// a later signal of a different kind for the same transaction) never
// double-counts. Returns whether the signal was new.
func (s *SQLiteStorage) RecordOutcome(ctx context.Context, signal model.OutcomeSignal) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	applied, err := recordOutcome(ctx, tx, signal)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit outcome: %w", err)
	}
	return applied, nil
}

func (t *sqliteTx) RecordOutcome(ctx context.Context, signal model.OutcomeSignal) (bool, error) {
	return recordOutcome(ctx, t.tx, signal)
}

func recordOutcome(ctx context.Context, db dbtx, signal model.OutcomeSignal) (bool, error) {
	if err := validateString(signal.BatchID, "batchId"); err != nil {
		return false, err
	}
	if err := validateString(signal.TransactionID, "transactionId"); err != nil {
		return false, err
	}

	var counter string
	switch signal.Kind {
	case model.OutcomeCategorized:
		counter = "categorized_count"
	case model.OutcomeQueued:
		counter = "review_queue_count"
	case model.OutcomeFailed:
		counter = "failed_count"
	default:
		return false, fmt.Errorf("unknown outcome kind %q", signal.Kind)
	}

	result, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO batch_outcomes (batch_id, transaction_id, kind, reason)
		VALUES (?, ?, ?, ?)
	`, signal.BatchID, signal.TransactionID, string(signal.Kind), string(signal.Reason))
	if err != nil {
		return false, fmt.Errorf("failed to record outcome event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		// Redelivered signal; counters already reflect this transaction.
		return false, nil
	}

	//nolint:gosec // counter is one of three hardcoded column names
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE batch_runs SET %s = %s + 1 WHERE id = ?`, counter, counter),
		signal.BatchID); err != nil {
		return false, fmt.Errorf("failed to increment batch counter: %w", err)
	}
	return true, nil
}

// CompleteBatchIfDone flips a batch from processing to categorizationDone
// when every item has reported, guarded so the transition happens exactly
// once no matter how many times completion is re-checked. Returns whether
// this call performed the flip.
func (s *SQLiteStorage) CompleteBatchIfDone(ctx context.Context, batchID string) (bool, error) {
	if err := validateContext(ctx); err != nil {
		return false, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return false, err
	}
	return completeBatchIfDone(ctx, s.db, batchID)
}

func (t *sqliteTx) CompleteBatchIfDone(ctx context.Context, batchID string) (bool, error) {
	return completeBatchIfDone(ctx, t.tx, batchID)
}

func completeBatchIfDone(ctx context.Context, db dbtx, batchID string) (bool, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE batch_runs
		SET status = ?, completed_at = ?
		WHERE id = ?
		  AND status = ?
		  AND categorized_count + review_queue_count + failed_count >= total_items
	`, string(model.BatchCategorizationDone), time.Now(), batchID,
		string(model.BatchProcessing))
	if err != nil {
		return false, fmt.Errorf("failed to complete batch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return rows > 0, nil
}
