package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ledgersieve/ledgersieve/internal/model"
)

// EnsureNode creates a taxonomy node, or returns the existing one when a
// node with the same (parent, case-insensitive name) already exists. The
// check and insert ride on the unique index in one statement, so two items
// proposing the same node concurrently both observe the single winner.
// The second return value reports whether a new node was created.
func (s *SQLiteStorage) EnsureNode(ctx context.Context, plan model.NodePlan) (*model.TaxonomyNode, bool, error) {
	if err := validateContext(ctx); err != nil {
		return nil, false, err
	}
	return ensureNode(ctx, s.db, plan)
}

func (t *sqliteTx) EnsureNode(ctx context.Context, plan model.NodePlan) (*model.TaxonomyNode, bool, error) {
	return ensureNode(ctx, t.tx, plan)
}

func ensureNode(ctx context.Context, db dbtx, plan model.NodePlan) (*model.TaxonomyNode, bool, error) {
	if err := validateString(plan.Name, "name"); err != nil {
		return nil, false, err
	}
	parentID := plan.ParentID
	if parentID == "" {
		parentID = model.RootNodeID
	}

	if parentID != model.RootNodeID {
		if _, err := getNode(ctx, db, parentID); err != nil {
			return nil, false, fmt.Errorf("parent node %s: %w", parentID, ErrNodeNotFound)
		}
	}

	id := uuid.NewString()
	result, err := db.ExecContext(ctx, `
		INSERT INTO taxonomy_nodes (id, name, description, parent_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(parent_id, lower(name)) DO NOTHING
	`, id, plan.Name, plan.Description, parentID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert taxonomy node: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	if rows == 0 {
		// Lost the race (or the node predates this call); use the winner.
		winner, err := findChild(ctx, db, parentID, plan.Name)
		if err != nil {
			return nil, false, err
		}
		if winner == nil {
			return nil, false, fmt.Errorf("node %q under %s vanished after conflict", plan.Name, parentID)
		}
		return winner, false, nil
	}

	node, err := getNode(ctx, db, id)
	if err != nil {
		return nil, false, err
	}

	slog.Info("created taxonomy node",
		"id", node.ID,
		"name", node.Name,
		"parent_id", node.ParentID)
	return node, true, nil
}

// GetNode returns a taxonomy node by its id.
func (s *SQLiteStorage) GetNode(ctx context.Context, id string) (*model.TaxonomyNode, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	return getNode(ctx, s.db, id)
}

func (t *sqliteTx) GetNode(ctx context.Context, id string) (*model.TaxonomyNode, error) {
	return getNode(ctx, t.tx, id)
}

func getNode(ctx context.Context, db dbtx, id string) (*model.TaxonomyNode, error) {
	var node model.TaxonomyNode
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, parent_id, created_at
		FROM taxonomy_nodes
		WHERE id = ?`, id).Scan(
		&node.ID, &node.Name, &node.Description, &node.ParentID, &node.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy node: %w", err)
	}
	return &node, nil
}

// FindChild returns the child of parentID with the given case-insensitive
// name, or nil when no such node exists.
func (s *SQLiteStorage) FindChild(ctx context.Context, parentID, name string) (*model.TaxonomyNode, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}
	return findChild(ctx, s.db, parentID, name)
}

func (t *sqliteTx) FindChild(ctx context.Context, parentID, name string) (*model.TaxonomyNode, error) {
	return findChild(ctx, t.tx, parentID, name)
}

func findChild(ctx context.Context, db dbtx, parentID, name string) (*model.TaxonomyNode, error) {
	if parentID == "" {
		parentID = model.RootNodeID
	}

	var node model.TaxonomyNode
	err := db.QueryRowContext(ctx, `
		SELECT id, name, description, parent_id, created_at
		FROM taxonomy_nodes
		WHERE parent_id = ? AND lower(name) = lower(?)`, parentID, name).Scan(
		&node.ID, &node.Name, &node.Description, &node.ParentID, &node.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy child: %w", err)
	}
	return &node, nil
}

// ListNodes returns the full taxonomy, synthetic root included, ordered for
// stable presentation to the classifier.
func (s *SQLiteStorage) ListNodes(ctx context.Context) ([]model.TaxonomyNode, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return listNodes(ctx, s.db)
}

func (t *sqliteTx) ListNodes(ctx context.Context) ([]model.TaxonomyNode, error) {
	return listNodes(ctx, t.tx)
}

func listNodes(ctx context.Context, db dbtx) ([]model.TaxonomyNode, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, description, parent_id, created_at
		FROM taxonomy_nodes
		ORDER BY parent_id, lower(name)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.TaxonomyNode
	for rows.Next() {
		var node model.TaxonomyNode
		if err := rows.Scan(
			&node.ID, &node.Name, &node.Description, &node.ParentID, &node.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy node: %w", err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating taxonomy nodes: %w", err)
	}
	return nodes, nil
}
