package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/dendrite/internal/graph"
)

// ActiveConstraintExists reports whether an active constraint with exactly
// this (project, key, value) is already in force. Used by the no-op filter.
func (s *Store) ActiveConstraintExists(ctx context.Context, projectID, key, value string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM constraints
		WHERE project_id = ? AND key = ? AND value = ? AND is_active = 1
	`, projectID, key, value).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check active constraint: %w", err)
	}
	return count > 0, nil
}

// ActiveDependencyExists reports whether an active edge with exactly this
// (from, to) already exists. Used by the no-op filter.
func (s *Store) ActiveDependencyExists(ctx context.Context, fromProjectID, toProjectID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dependencies
		WHERE from_project_id = ? AND to_project_id = ? AND is_active = 1
	`, fromProjectID, toProjectID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check active dependency: %w", err)
	}
	return count > 0, nil
}

// ActiveEdges returns the adjacency lists of the active-dependency subgraph,
// ordered deterministically. The conflict detector runs its cycle search
// over this snapshot.
func (s *Store) ActiveEdges(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_project_id, to_project_id
		FROM dependencies
		WHERE is_active = 1
		ORDER BY from_project_id ASC, to_project_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("active edges: %w", err)
	}
	defer rows.Close()

	edges := map[string][]string{}
	for rows.Next() {
		var from, to string
		if err := rows.Scan(&from, &to); err != nil {
			return nil, fmt.Errorf("active edges: scan: %w", err)
		}
		edges[from] = append(edges[from], to)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("active edges: iterate: %w", err)
	}
	return edges, nil
}

// ActiveConstraints returns every active constraint, ordered by project then
// key.
func (s *Store) ActiveConstraints(ctx context.Context) ([]graph.Constraint, error) {
	rows, err := s.db.QueryContext(ctx, constraintSelect+`
		WHERE is_active = 1
		ORDER BY project_id ASC, key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("active constraints: %w", err)
	}
	defer rows.Close()
	return scanConstraints(rows)
}

// ActiveConstraintsForProject returns a project's active constraints ordered
// by key.
func (s *Store) ActiveConstraintsForProject(ctx context.Context, projectID string) ([]graph.Constraint, error) {
	rows, err := s.db.QueryContext(ctx, constraintSelect+`
		WHERE project_id = ? AND is_active = 1
		ORDER BY key ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("active constraints for %s: %w", projectID, err)
	}
	defer rows.Close()
	return scanConstraints(rows)
}

// ActiveDependencies returns every active edge, ordered by (from, to).
func (s *Store) ActiveDependencies(ctx context.Context) ([]graph.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, dependencySelect+`
		WHERE is_active = 1
		ORDER BY from_project_id ASC, to_project_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("active dependencies: %w", err)
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// ActiveDependenciesFrom returns a project's outgoing active edges ordered
// by target.
func (s *Store) ActiveDependenciesFrom(ctx context.Context, projectID string) ([]graph.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, dependencySelect+`
		WHERE from_project_id = ? AND is_active = 1
		ORDER BY to_project_id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("active dependencies from %s: %w", projectID, err)
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// CommitsSince returns commits created at or after the given time, ordered
// by sequence number ascending.
func (s *Store) CommitsSince(ctx context.Context, since time.Time) ([]graph.Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_id, sequence_number, parent_commit_id, actor_user_id,
		       source, diff, why, commit_message, message_id, created_at
		FROM graph_commits
		WHERE created_at >= ?
		ORDER BY sequence_number ASC
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("commits since: %w", err)
	}
	defer rows.Close()

	commits := []graph.Commit{}
	for rows.Next() {
		var c graph.Commit
		var createdAt string
		if err := rows.Scan(
			&c.CommitID, &c.SequenceNumber, &c.ParentCommitID, &c.ActorUserID,
			&c.Source, &c.DiffJSON, &c.Why, &c.CommitMessage, &c.MessageID,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("commits since: scan: %w", err)
		}
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("commits since: iterate: %w", err)
	}
	return commits, nil
}

// GetCommit retrieves a single ledger entry.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetCommit(ctx context.Context, commitID string) (graph.Commit, error) {
	var c graph.Commit
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT commit_id, sequence_number, parent_commit_id, actor_user_id,
		       source, diff, why, commit_message, message_id, created_at
		FROM graph_commits
		WHERE commit_id = ?
	`, commitID).Scan(
		&c.CommitID, &c.SequenceNumber, &c.ParentCommitID, &c.ActorUserID,
		&c.Source, &c.DiffJSON, &c.Why, &c.CommitMessage, &c.MessageID,
		&createdAt,
	)
	if err != nil {
		return graph.Commit{}, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return graph.Commit{}, err
	}
	return c, nil
}

// Checklist is the per-project read view: active constraints grouped by
// type plus outgoing active dependencies.
type Checklist struct {
	Project      graph.Project                               `json:"project"`
	Constraints  map[graph.ConstraintType][]graph.Constraint `json:"constraints"`
	Dependencies []graph.Dependency                          `json:"dependencies"`
}

// GetChecklist assembles the checklist view for one project.
// Returns sql.ErrNoRows if the project does not exist.
func (s *Store) GetChecklist(ctx context.Context, projectID string) (Checklist, error) {
	project, err := s.GetProject(ctx, projectID)
	if err != nil {
		return Checklist{}, err
	}

	constraints, err := s.ActiveConstraintsForProject(ctx, projectID)
	if err != nil {
		return Checklist{}, err
	}
	grouped := map[graph.ConstraintType][]graph.Constraint{}
	for _, c := range constraints {
		grouped[c.Type] = append(grouped[c.Type], c)
	}

	deps, err := s.ActiveDependenciesFrom(ctx, projectID)
	if err != nil {
		return Checklist{}, err
	}

	return Checklist{
		Project:      project,
		Constraints:  grouped,
		Dependencies: deps,
	}, nil
}

const constraintSelect = `
	SELECT id, project_id, key, value, type, reason, is_active,
	       author_user_id, source_message_id, source_permalink, commit_id,
	       created_at, deactivated_at
	FROM constraints
`

func scanConstraints(rows *sql.Rows) ([]graph.Constraint, error) {
	constraints := []graph.Constraint{}
	for rows.Next() {
		var c graph.Constraint
		var active int
		var createdAt string
		var deactivatedAt *string
		if err := rows.Scan(
			&c.ID, &c.ProjectID, &c.Key, &c.Value, &c.Type, &c.Reason, &active,
			&c.AuthorUserID, &c.SourceMessageID, &c.SourcePermalink, &c.CommitID,
			&createdAt, &deactivatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		c.IsActive = active != 0

		var err error
		if c.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if deactivatedAt != nil {
			t, err := parseTime(*deactivatedAt)
			if err != nil {
				return nil, err
			}
			c.DeactivatedAt = &t
		}
		constraints = append(constraints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate constraints: %w", err)
	}
	return constraints, nil
}

const dependencySelect = `
	SELECT id, from_project_id, to_project_id, reason, is_active,
	       author_user_id, source_message_id, source_permalink, commit_id,
	       created_at, deactivated_at
	FROM dependencies
`

func scanDependencies(rows *sql.Rows) ([]graph.Dependency, error) {
	deps := []graph.Dependency{}
	for rows.Next() {
		var d graph.Dependency
		var active int
		var createdAt string
		var deactivatedAt *string
		if err := rows.Scan(
			&d.ID, &d.FromProjectID, &d.ToProjectID, &d.Reason, &active,
			&d.AuthorUserID, &d.SourceMessageID, &d.SourcePermalink, &d.CommitID,
			&createdAt, &deactivatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.IsActive = active != 0

		var err error
		if d.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		if deactivatedAt != nil {
			t, err := parseTime(*deactivatedAt)
			if err != nil {
				return nil, err
			}
			d.DeactivatedAt = &t
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependencies: %w", err)
	}
	return deps, nil
}
