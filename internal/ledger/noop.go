package ledger

import (
	"context"
	"fmt"

	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/store"
)

// No-op reasons stamped onto the originating message when a mutation is
// suppressed.
const (
	ReasonConstraintAlreadyActive = "constraint_already_active"
	ReasonDependencyAlreadyActive = "dependency_already_active"
)

// NoOpFilter checks whether an intended mutation already holds as current
// active graph state, so redundant Slack retries and human re-submissions
// never grow the ledger.
//
// The check is advisory, not transactional: it runs outside the commit
// lock, so two concurrent writers can both pass it for the same mutation
// and both commit. The ledger tolerates that race; the filter only absorbs
// the common retry/resubmit case.
type NoOpFilter struct {
	store *store.Store
}

// NewNoOpFilter creates a filter over the given store.
func NewNoOpFilter(st *store.Store) *NoOpFilter {
	return &NoOpFilter{store: st}
}

// CheckNoOp reports whether the diff's mutation is already true: an active
// constraint with the same (project, key, value), or an active edge with
// the same (from, to). When it is, the caller stamps the message
// no_op_duplicate with the returned reason and skips the sequencer.
func (f *NoOpFilter) CheckNoOp(ctx context.Context, diff graph.Diff) (reason string, noop bool, err error) {
	switch diff.Kind() {
	case graph.KindConstraintUpsert:
		c := diff.Constraint
		exists, err := f.store.ActiveConstraintExists(ctx, c.ProjectID, c.Key, c.Value)
		if err != nil {
			return "", false, fmt.Errorf("no-op check: %w", err)
		}
		if exists {
			return ReasonConstraintAlreadyActive, true, nil
		}
		return "", false, nil

	case graph.KindDependencyAdd:
		d := diff.Dependency
		exists, err := f.store.ActiveDependencyExists(ctx, d.FromProjectID, d.ToProjectID)
		if err != nil {
			return "", false, fmt.Errorf("no-op check: %w", err)
		}
		if exists {
			return ReasonDependencyAlreadyActive, true, nil
		}
		return "", false, nil

	default:
		return "", false, fmt.Errorf("no-op check: empty diff")
	}
}
