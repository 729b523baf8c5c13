package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/store"
)

// ConstraintConflict describes a silent overwrite: the new value replaced
// one or more prior active values written by (possibly) other authors. The
// upsert itself always succeeds; the conflict exists for human attention.
type ConstraintConflict struct {
	ConflictType  graph.ConflictType `json:"conflict_type"`
	ProjectID     string             `json:"project_id"`
	ConstraintKey string             `json:"constraint_key"`
	NewValue      string             `json:"new_value"`
	PriorValues   []string           `json:"prior_values"`
	PriorAuthors  []string           `json:"prior_authors"`
}

// DependencyCycle describes a new edge that closes a directed cycle through
// active edges. CyclePath starts at the edge's source and returns to it.
type DependencyCycle struct {
	ConflictType  graph.ConflictType `json:"conflict_type"`
	FromProjectID string             `json:"from_project_id"`
	ToProjectID   string             `json:"to_project_id"`
	CyclePath     []string           `json:"cycle_path"`
	CommitID      string             `json:"commit_id"`
}

// Conflict is one detected conflict with its typed detail. Exactly one of
// Constraint or Cycle is set.
type Conflict struct {
	Type       graph.ConflictType  `json:"conflict_type"`
	Constraint *ConstraintConflict `json:"constraint,omitempty"`
	Cycle      *DependencyCycle    `json:"cycle,omitempty"`
}

// ProjectIDs returns every project the conflict references.
func (c Conflict) ProjectIDs() []string {
	switch {
	case c.Constraint != nil:
		return []string{c.Constraint.ProjectID}
	case c.Cycle != nil:
		// The cycle path already starts and ends at FromProjectID and
		// passes through ToProjectID.
		seen := map[string]bool{}
		var ids []string
		for _, id := range c.Cycle.CyclePath {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return ids
	default:
		return nil
	}
}

// detail serializes the conflict's detail blob for persistence.
func (c Conflict) detail() (string, error) {
	var v any
	switch {
	case c.Constraint != nil:
		v = c.Constraint
	case c.Cycle != nil:
		v = c.Cycle
	default:
		return "", fmt.Errorf("conflict has no detail")
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal conflict detail: %w", err)
	}
	return string(raw), nil
}

// Detector runs once per successful commit, outside the write transaction,
// and owns creation of ConflictReport records.
type Detector struct {
	store *store.Store
	now   func() time.Time
}

// NewDetector creates a detector over the given store.
func NewDetector(st *store.Store) *Detector {
	return &Detector{store: st, now: time.Now}
}

// Detect runs both conflict checks for a committed diff and persists one
// report per detected conflict. The checks are independent; a single commit
// can yield zero, one, or two conflicts.
func (d *Detector) Detect(ctx context.Context, diff graph.Diff, commit graph.Commit, prior []store.PriorConstraint) ([]Conflict, error) {
	var conflicts []Conflict

	if c := detectConstraintConflict(diff, prior); c != nil {
		conflicts = append(conflicts, Conflict{Type: graph.ConflictConstraint, Constraint: c})
	}

	cycle, err := d.detectDependencyCycle(ctx, diff, commit)
	if err != nil {
		return nil, err
	}
	if cycle != nil {
		conflicts = append(conflicts, Conflict{Type: graph.ConflictDependencyCycle, Cycle: cycle})
	}

	for _, c := range conflicts {
		detail, err := c.detail()
		if err != nil {
			return nil, err
		}
		report := graph.ConflictReport{
			ID:         uuid.NewString(),
			CommitID:   commit.CommitID,
			Type:       c.Type,
			DetailJSON: detail,
			CreatedAt:  d.now(),
		}
		if err := d.store.InsertConflictReport(ctx, report); err != nil {
			return nil, err
		}
		slog.Warn("conflict detected",
			"conflict_type", string(c.Type),
			"commit_id", commit.CommitID,
			"sequence_number", commit.SequenceNumber,
		)
	}

	return conflicts, nil
}

// detectConstraintConflict compares the new value against the prior active
// values captured by the commit transaction (the ones it just deactivated).
// Any differing prior value is a conflict; the report names the distinct
// differing values and their authors, both sorted.
func detectConstraintConflict(diff graph.Diff, prior []store.PriorConstraint) *ConstraintConflict {
	if diff.Constraint == nil {
		return nil
	}

	newValue := diff.Constraint.Value
	values := map[string]bool{}
	authors := map[string]bool{}
	for _, p := range prior {
		if p.Value != newValue {
			values[p.Value] = true
			authors[p.AuthorUserID] = true
		}
	}
	if len(values) == 0 {
		return nil
	}

	return &ConstraintConflict{
		ConflictType:  graph.ConflictConstraint,
		ProjectID:     diff.Constraint.ProjectID,
		ConstraintKey: diff.Constraint.Key,
		NewValue:      newValue,
		PriorValues:   sortedKeys(values),
		PriorAuthors:  sortedKeys(authors),
	}
}

// detectDependencyCycle searches for a directed path of active edges from
// the new edge's target back to its source. Existence of such a path means
// the edge closed a cycle; the report carries the shortest witness path,
// starting and ending at the source. When several shortest paths exist the
// choice between them is arbitrary.
func (d *Detector) detectDependencyCycle(ctx context.Context, diff graph.Diff, commit graph.Commit) (*DependencyCycle, error) {
	if diff.Dependency == nil {
		return nil, nil
	}

	from := diff.Dependency.FromProjectID
	to := diff.Dependency.ToProjectID

	edges, err := d.store.ActiveEdges(ctx)
	if err != nil {
		return nil, err
	}

	path := shortestPath(edges, to, from)
	if path == nil {
		return nil, nil
	}

	return &DependencyCycle{
		ConflictType:  graph.ConflictDependencyCycle,
		FromProjectID: from,
		ToProjectID:   to,
		CyclePath:     append([]string{from}, path...),
		CommitID:      commit.CommitID,
	}, nil
}

// shortestPath runs a BFS over the adjacency lists and returns the node
// sequence from start to target inclusive, or nil when target is
// unreachable. A start equal to target returns the one-node path.
func shortestPath(edges map[string][]string, start, target string) []string {
	if start == target {
		return []string{start}
	}

	parent := map[string]string{start: ""}
	queue := []string{start}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, next := range edges[node] {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = node
			if next == target {
				// Walk parents back to start.
				path := []string{target}
				for cur := node; cur != ""; cur = parent[cur] {
					path = append(path, cur)
				}
				reverse(path)
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
