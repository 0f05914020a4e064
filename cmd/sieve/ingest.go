package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ledgersieve/ledgersieve/internal/cli"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

// ingestRecord is one line of the JSONL input file.
type ingestRecord struct {
	Date         string  `json:"date"`
	Description  string  `json:"description"`
	Counterparty string  `json:"counterparty"`
	Amount       float64 `json:"amount"`
}

func ingestCmd() *cobra.Command {
	var batchID string

	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>",
		Short: "Ingest transactions from a JSONL file",
		Long: `Read one transaction per line, derive content-addressed identifiers,
and create a batch run covering them. Re-ingesting the same file is an
upsert: identical source fields always produce the same id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			transactions, err := readTransactions(args[0])
			if err != nil {
				return err
			}
			if len(transactions) == 0 {
				fmt.Println(cli.WarningStyle.Render("No transactions found in input file."))
				return nil
			}

			if batchID == "" {
				batchID = uuid.NewString()
			}
			for i := range transactions {
				transactions[i].BatchID = batchID
			}

			batch := &model.BatchRun{
				ID:         batchID,
				TotalItems: len(transactions),
			}
			if err := store.CreateBatch(ctx, batch); err != nil {
				return fmt.Errorf("failed to create batch: %w", err)
			}
			if err := store.SaveTransactions(ctx, transactions); err != nil {
				return fmt.Errorf("failed to save transactions: %w", err)
			}

			fmt.Println(cli.SuccessStyle.Render(
				fmt.Sprintf("✓ Ingested %d transactions into batch %s", len(transactions), batchID)))
			fmt.Println(cli.SubtleStyle.Render(
				fmt.Sprintf("  Run 'sieve classify %s' to categorize them.", batchID)))
			return nil
		},
	}

	cmd.Flags().StringVar(&batchID, "batch", "", "Batch id (generated if not provided)")
	return cmd
}

func readTransactions(path string) ([]model.Transaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	bar := progressbar.DefaultBytes(info.Size(), "reading")

	var transactions []model.Transaction
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		_ = bar.Add(len(scanner.Bytes()) + 1)

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record ingestRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNo, err)
		}

		date, err := time.Parse("2006-01-02", record.Date)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", lineNo, record.Date, err)
		}

		var raw map[string]any
		_ = json.Unmarshal(line, &raw)

		txn := model.Transaction{
			Date:        date,
			Merchant:    record.Counterparty,
			Description: record.Description,
			Amount:      record.Amount,
			RawFields:   raw,
		}
		txn.GenerateID()

		// A file can legitimately repeat a transaction; identity collapses
		// the duplicates before they inflate the batch denominator.
		if seen[txn.ID] {
			continue
		}
		seen[txn.ID] = true
		transactions = append(transactions, txn)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	return transactions, nil
}
