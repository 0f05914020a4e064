package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// SaveResolution upserts the resolution for a transaction. Keyed by
// transaction id, so re-ingestion overwrites in place.
func (s *SQLiteStorage) SaveResolution(ctx context.Context, resolution *model.Resolution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return saveResolution(ctx, s.db, resolution)
}

func (t *sqliteTx) SaveResolution(ctx context.Context, resolution *model.Resolution) error {
	return saveResolution(ctx, t.tx, resolution)
}

func saveResolution(ctx context.Context, db dbtx, resolution *model.Resolution) error {
	if err := validateResolution(resolution); err != nil {
		return err
	}
	if resolution.ResolvedAt.IsZero() {
		resolution.ResolvedAt = time.Now()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO resolutions (
			transaction_id, node_id, confidence, reasoning, source, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			node_id = excluded.node_id,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			source = excluded.source,
			resolved_at = excluded.resolved_at
	`,
		resolution.TransactionID, resolution.NodeID, resolution.Confidence,
		resolution.Reasoning, string(resolution.Source), resolution.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resolution: %w", err)
	}
	return nil
}

// GetResolution returns the resolution for a transaction, or nil when the
// transaction has not been resolved.
func (s *SQLiteStorage) GetResolution(ctx context.Context, transactionID string) (*model.Resolution, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(transactionID, "transactionID"); err != nil {
		return nil, err
	}
	return getResolution(ctx, s.db, transactionID)
}

func (t *sqliteTx) GetResolution(ctx context.Context, transactionID string) (*model.Resolution, error) {
	return getResolution(ctx, t.tx, transactionID)
}

func getResolution(ctx context.Context, db dbtx, transactionID string) (*model.Resolution, error) {
	var res model.Resolution
	var source string
	err := db.QueryRowContext(ctx, `
		SELECT transaction_id, node_id, confidence, reasoning, source, resolved_at
		FROM resolutions
		WHERE transaction_id = ?`, transactionID).Scan(
		&res.TransactionID, &res.NodeID, &res.Confidence,
		&res.Reasoning, &source, &res.ResolvedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query resolution: %w", err)
	}
	res.Source = model.ResolutionSource(source)
	return &res, nil
}

// ListResolvedExemplars returns every resolved transaction joined with its
// node, the candidate pool for similarity-based precedent retrieval. Queued
// items are not eligible.
func (s *SQLiteStorage) ListResolvedExemplars(ctx context.Context) ([]model.ResolvedExemplar, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listResolvedExemplars(ctx, s.db)
}

func (t *sqliteTx) ListResolvedExemplars(ctx context.Context) ([]model.ResolvedExemplar, error) {
	return listResolvedExemplars(ctx, t.tx)
}

func listResolvedExemplars(ctx context.Context, db dbtx) ([]model.ResolvedExemplar, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.transaction_id, t.merchant, t.description, r.node_id, n.name
		FROM resolutions r
		JOIN transactions t ON t.id = r.transaction_id
		JOIN taxonomy_nodes n ON n.id = r.node_id
		ORDER BY r.resolved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query exemplars: %w", err)
	}
	defer rows.Close()

	var exemplars []model.ResolvedExemplar
	for rows.Next() {
		var ex model.ResolvedExemplar
		var merchant sql.NullString
		if err := rows.Scan(
			&ex.TransactionID, &merchant, &ex.Description, &ex.NodeID, &ex.NodeName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan exemplar: %w", err)
		}
		ex.Merchant = merchant.String
		exemplars = append(exemplars, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exemplars: %w", err)
	}
	return exemplars, nil
}
