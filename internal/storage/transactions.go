package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

// SaveTransactions upserts a batch of transactions. Ids are content-derived,
// so re-ingesting identical source data overwrites rows in place instead of
// duplicating them.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return err
	}
	return saveTransactions(ctx, s.db, transactions)
}

func (t *sqliteTx) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateTransactions(transactions); err != nil {
		return err
	}
	return saveTransactions(ctx, t.tx, transactions)
}

func saveTransactions(ctx context.Context, db dbtx, transactions []model.Transaction) error {
	for i := range transactions {
		txn := &transactions[i]

		var rawFields []byte
		if txn.RawFields != nil {
			var err error
			rawFields, err = json.Marshal(txn.RawFields)
			if err != nil {
				return fmt.Errorf("failed to marshal raw fields for %s: %w", txn.ID, err)
			}
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO transactions (
				id, batch_id, date, amount, merchant, description,
				raw_fields, parent_id, is_child
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				batch_id = excluded.batch_id,
				raw_fields = excluded.raw_fields
		`,
			txn.ID, txn.BatchID, txn.Date, txn.Amount, txn.Merchant,
			txn.Description, rawFields, txn.ParentID, txn.IsChild,
		)
		if err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", txn.ID, err)
		}
	}
	return nil
}

// GetTransactionByID returns a single transaction by its id.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getTransactionByID(ctx, s.db, id)
}

func (t *sqliteTx) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getTransactionByID(ctx, t.tx, id)
}

func getTransactionByID(ctx context.Context, db dbtx, id string) (*model.Transaction, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, batch_id, date, amount, merchant, description,
		       raw_fields, parent_id, is_child
		FROM transactions
		WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction: %w", err)
	}
	return txn, nil
}

// GetTransactionsByBatch returns every transaction in a batch, split
// children included.
func (s *SQLiteStorage) GetTransactionsByBatch(ctx context.Context, batchID string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return nil, err
	}
	return getTransactionsByBatch(ctx, s.db, batchID)
}

func (t *sqliteTx) GetTransactionsByBatch(ctx context.Context, batchID string) ([]model.Transaction, error) {
	return getTransactionsByBatch(ctx, t.tx, batchID)
}

func getTransactionsByBatch(ctx context.Context, db dbtx, batchID string) ([]model.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, batch_id, date, amount, merchant, description,
		       raw_fields, parent_id, is_child
		FROM transactions
		WHERE batch_id = ?
		ORDER BY date, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

// scanner abstracts sql.Row and sql.Rows for shared scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var txn model.Transaction
	var rawFields sql.NullString
	var merchant sql.NullString

	if err := row.Scan(
		&txn.ID, &txn.BatchID, &txn.Date, &txn.Amount, &merchant,
		&txn.Description, &rawFields, &txn.ParentID, &txn.IsChild,
	); err != nil {
		return nil, err
	}

	txn.Merchant = merchant.String
	if rawFields.Valid && rawFields.String != "" {
		if err := json.Unmarshal([]byte(rawFields.String), &txn.RawFields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw fields: %w", err)
		}
	}
	return &txn, nil
}
