package graph

import (
	"encoding/json"
	"fmt"
)

// DiffKind identifies which mutation a Diff carries.
type DiffKind string

const (
	KindConstraintUpsert DiffKind = "constraint_upsert"
	KindDependencyAdd    DiffKind = "dependency_add"
)

// ConstraintUpsert proposes setting key=value on a project, deactivating any
// prior active constraint with the same key.
type ConstraintUpsert struct {
	ProjectID string         `json:"project_id"`
	Key       string         `json:"constraint_key"`
	Value     string         `json:"constraint_value"`
	Type      ConstraintType `json:"constraint_type"`
	Reason    string         `json:"reason"`
}

// DependencyAdd proposes a new active edge from one project to another.
type DependencyAdd struct {
	FromProjectID string `json:"from_project_id"`
	ToProjectID   string `json:"to_project_id"`
	Reason        string `json:"reason"`
}

// Diff is a typed mutation proposal. Exactly one of Constraint or Dependency
// is set; the zero Diff is invalid.
type Diff struct {
	Constraint *ConstraintUpsert `json:"constraint,omitempty"`
	Dependency *DependencyAdd    `json:"dependency,omitempty"`
}

// Kind reports which mutation the diff carries. Empty for the zero Diff.
func (d Diff) Kind() DiffKind {
	switch {
	case d.Constraint != nil:
		return KindConstraintUpsert
	case d.Dependency != nil:
		return KindDependencyAdd
	default:
		return ""
	}
}

// ProjectIDs returns every project the diff references, in declaration order.
func (d Diff) ProjectIDs() []string {
	switch {
	case d.Constraint != nil:
		return []string{d.Constraint.ProjectID}
	case d.Dependency != nil:
		return []string{d.Dependency.FromProjectID, d.Dependency.ToProjectID}
	default:
		return nil
	}
}

// Reason returns the author-supplied rationale for the mutation.
func (d Diff) Reason() string {
	switch {
	case d.Constraint != nil:
		return d.Constraint.Reason
	case d.Dependency != nil:
		return d.Dependency.Reason
	default:
		return ""
	}
}

// CommitMessage derives the human-readable one-liner stored on the ledger
// entry.
func (d Diff) CommitMessage() string {
	switch {
	case d.Constraint != nil:
		c := d.Constraint
		return fmt.Sprintf("Set %s=%s on %s (%s)", c.Key, c.Value, c.ProjectID, c.Type)
	case d.Dependency != nil:
		dep := d.Dependency
		return fmt.Sprintf("Add dependency %s -> %s", dep.FromProjectID, dep.ToProjectID)
	default:
		return ""
	}
}

// MarshalSnapshot serializes the diff for storage on its commit record.
func (d Diff) MarshalSnapshot() (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal diff snapshot: %w", err)
	}
	return string(raw), nil
}
