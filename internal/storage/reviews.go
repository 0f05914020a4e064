package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// SaveReviewItem creates or replaces the review item for a transaction.
// At most one review item exists per transaction at a time.
func (s *SQLiteStorage) SaveReviewItem(ctx context.Context, item *model.ReviewItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	return saveReviewItem(ctx, s.db, item)
}

func (t *sqliteTx) SaveReviewItem(ctx context.Context, item *model.ReviewItem) error {
	return saveReviewItem(ctx, t.tx, item)
}

func saveReviewItem(ctx context.Context, db dbtx, item *model.ReviewItem) error {
	if err := validateReviewItem(item); err != nil {
		return err
	}
	if item.ID == "" {
		item.ID = item.TransactionID
	}
	if item.Status == "" {
		item.Status = model.ReviewPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}

	suggestion, err := marshalSuggestion(item.Suggestion)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO review_items (
			id, transaction_id, batch_id, reason, suggestion,
			status, retry_count, retrying_since, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			reason = excluded.reason,
			suggestion = excluded.suggestion,
			status = excluded.status
	`,
		item.ID, item.TransactionID, item.BatchID, string(item.Reason),
		suggestion, string(item.Status), item.RetryCount, item.RetryingSince,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save review item: %w", err)
	}
	return nil
}

// GetReviewItem returns a review item by its id.
func (s *SQLiteStorage) GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getReviewItem(ctx, s.db, id)
}

func (t *sqliteTx) GetReviewItem(ctx context.Context, id string) (*model.ReviewItem, error) {
	return getReviewItem(ctx, t.tx, id)
}

func getReviewItem(ctx context.Context, db dbtx, id string) (*model.ReviewItem, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, transaction_id, batch_id, reason, suggestion,
		       status, retry_count, retrying_since, created_at
		FROM review_items
		WHERE id = ?`, id)

	item, err := scanReviewItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("review item %s: %w", id, ErrReviewNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query review item: %w", err)
	}
	return item, nil
}

// ListPendingReviews returns pending review items, optionally filtered to a
// set of reasons. The retry cascade uses the filter to pick up only items a
// taxonomy change can affect.
func (s *SQLiteStorage) ListPendingReviews(ctx context.Context, reasons ...model.ReviewReason) ([]model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listPendingReviews(ctx, s.db, reasons...)
}

func (t *sqliteTx) ListPendingReviews(ctx context.Context, reasons ...model.ReviewReason) ([]model.ReviewItem, error) {
	return listPendingReviews(ctx, t.tx, reasons...)
}

func listPendingReviews(ctx context.Context, db dbtx, reasons ...model.ReviewReason) ([]model.ReviewItem, error) {
	query := `
		SELECT id, transaction_id, batch_id, reason, suggestion,
		       status, retry_count, retrying_since, created_at
		FROM review_items
		WHERE status = 'pending'`
	args := make([]any, 0, len(reasons))

	if len(reasons) > 0 {
		placeholders := make([]string, len(reasons))
		for i, reason := range reasons {
			placeholders[i] = "?"
			args = append(args, string(reason))
		}
		query += fmt.Sprintf(" AND reason IN (%s)", strings.Join(placeholders, ", "))
	}
	query += " ORDER BY created_at"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer rows.Close()

	var items []model.ReviewItem
	for rows.Next() {
		item, err := scanReviewItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating review items: %w", err)
	}
	return items, nil
}

// UpdateReviewSuggestion replaces the stored suggestion after an
// inconclusive cascade re-run and bumps the retry bookkeeping.
func (s *SQLiteStorage) UpdateReviewSuggestion(ctx context.Context, id string, suggestion *model.Suggestion) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	return updateReviewSuggestion(ctx, s.db, id, suggestion)
}

func (t *sqliteTx) UpdateReviewSuggestion(ctx context.Context, id string, suggestion *model.Suggestion) error {
	return updateReviewSuggestion(ctx, t.tx, id, suggestion)
}

func updateReviewSuggestion(ctx context.Context, db dbtx, id string, suggestion *model.Suggestion) error {
	data, err := marshalSuggestion(suggestion)
	if err != nil {
		return err
	}

	result, err := db.ExecContext(ctx, `
		UPDATE review_items
		SET suggestion = ?, retry_count = retry_count + 1, retrying_since = ?
		WHERE id = ? AND status = 'pending'
	`, data, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update review suggestion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("review item %s: %w", id, ErrReviewNotFound)
	}
	return nil
}

// ResolveReview marks a review item resolved and, when a resolution is
// supplied, writes it in the same database transaction. Split parents pass
// a nil resolution since they never carry one.
func (s *SQLiteStorage) ResolveReview(ctx context.Context, id string, resolution *model.Resolution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := resolveReview(ctx, tx, id, resolution); err != nil {
		return err
	}
	return tx.Commit()
}

func (t *sqliteTx) ResolveReview(ctx context.Context, id string, resolution *model.Resolution) error {
	return resolveReview(ctx, t.tx, id, resolution)
}

func resolveReview(ctx context.Context, db dbtx, id string, resolution *model.Resolution) error {
	result, err := db.ExecContext(ctx, `
		UPDATE review_items
		SET status = 'resolved', retrying_since = NULL
		WHERE id = ? AND status = 'pending'
	`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pending review item %s: %w", id, ErrReviewNotFound)
	}

	if resolution != nil {
		if err := saveResolution(ctx, db, resolution); err != nil {
			return err
		}
	}
	return nil
}

func marshalSuggestion(suggestion *model.Suggestion) ([]byte, error) {
	if suggestion == nil {
		return nil, nil
	}
	data, err := json.Marshal(suggestion)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal suggestion: %w", err)
	}
	return data, nil
}

func scanReviewItem(row scanner) (*model.ReviewItem, error) {
	var item model.ReviewItem
	var reason, status string
	var suggestion sql.NullString
	var retryingSince sql.NullTime

	if err := row.Scan(
		&item.ID, &item.TransactionID, &item.BatchID, &reason, &suggestion,
		&status, &item.RetryCount, &retryingSince, &item.CreatedAt,
	); err != nil {
		return nil, err
	}

	item.Reason = model.ReviewReason(reason)
	item.Status = model.ReviewStatus(status)
	if retryingSince.Valid {
		item.RetryingSince = &retryingSince.Time
	}
	if suggestion.Valid && suggestion.String != "" {
		var s model.Suggestion
		if err := json.Unmarshal([]byte(suggestion.String), &s); err != nil {
			return nil, fmt.Errorf("failed to unmarshal suggestion: %w", err)
		}
		item.Suggestion = &s
	}
	return &item, nil
}
