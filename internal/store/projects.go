package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/dendrite/internal/graph"
)

// UpsertProject creates or refreshes a project row and its owner set from
// the static registry. Only the bootstrap path calls this; commits never
// create projects, they only touch updated_at.
func (s *Store) UpsertProject(ctx context.Context, p graph.Project, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert project: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO projects (project_id, name, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET name = excluded.name
	`, p.ProjectID, p.Name, formatTime(now))
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ProjectID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM project_owners WHERE project_id = ?`, p.ProjectID); err != nil {
		return fmt.Errorf("upsert project %s: clear owners: %w", p.ProjectID, err)
	}
	for _, owner := range p.OwnerUserIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_owners (project_id, user_id) VALUES (?, ?)
		`, p.ProjectID, owner)
		if err != nil {
			return fmt.Errorf("upsert project %s: owner %s: %w", p.ProjectID, owner, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert project %s: commit: %w", p.ProjectID, err)
	}
	return nil
}

// GetProject retrieves a project with its owner set.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetProject(ctx context.Context, projectID string) (graph.Project, error) {
	var p graph.Project
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, name, updated_at FROM projects WHERE project_id = ?
	`, projectID).Scan(&p.ProjectID, &p.Name, &updatedAt)
	if err != nil {
		return graph.Project{}, err
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return graph.Project{}, err
	}

	if p.OwnerUserIDs, err = s.projectOwners(ctx, projectID); err != nil {
		return graph.Project{}, err
	}
	return p, nil
}

// ListProjects returns all projects with owners, ordered by project id.
func (s *Store) ListProjects(ctx context.Context) ([]graph.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_id, name, updated_at FROM projects ORDER BY project_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []graph.Project{}
	for rows.Next() {
		var p graph.Project
		var updatedAt string
		if err := rows.Scan(&p.ProjectID, &p.Name, &updatedAt); err != nil {
			return nil, fmt.Errorf("list projects: scan: %w", err)
		}
		if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: iterate: %w", err)
	}

	for i := range projects {
		if projects[i].OwnerUserIDs, err = s.projectOwners(ctx, projects[i].ProjectID); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

func (s *Store) projectOwners(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM project_owners WHERE project_id = ? ORDER BY user_id ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("project owners %s: %w", projectID, err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("project owners %s: scan: %w", projectID, err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("project owners %s: iterate: %w", projectID, err)
	}
	return owners, nil
}

// projectExistsTx checks project existence inside a transaction.
func projectExistsTx(ctx context.Context, tx *sql.Tx, projectID string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE project_id = ?`, projectID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check project %s: %w", projectID, err)
	}
	return true, nil
}
