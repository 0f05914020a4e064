package model

import "time"

// RootNodeID is the id of the single synthetic root of the taxonomy forest.
const RootNodeID = "root"

// TaxonomyNode is one entry in the category tree. Nodes are immutable once
// created; no two siblings share a case-insensitive name.
type TaxonomyNode struct {
	CreatedAt   time.Time
	ID          string
	Name        string
	Description string
	ParentID    string // Empty only for the synthetic root
}

// NodePlan describes a node the classifier proposes to create.
type NodePlan struct {
	Name        string
	Description string
	ParentID    string
}
