package store

import (
	"context"
	"fmt"

	"github.com/roach88/dendrite/internal/graph"
)

// InsertConflictReport persists a conflict report linked to its triggering
// commit. Reports are created once and never updated.
func (s *Store) InsertConflictReport(ctx context.Context, r graph.ConflictReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conflict_reports (id, commit_id, conflict_type, detail, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.CommitID, string(r.Type), r.DetailJSON, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert conflict report: %w", err)
	}
	return nil
}

// ConflictsForCommit returns the reports linked to a commit, oldest first.
func (s *Store) ConflictsForCommit(ctx context.Context, commitID string) ([]graph.ConflictReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, commit_id, conflict_type, detail, created_at
		FROM conflict_reports
		WHERE commit_id = ?
		ORDER BY created_at ASC, id ASC
	`, commitID)
	if err != nil {
		return nil, fmt.Errorf("conflicts for commit: %w", err)
	}
	defer rows.Close()

	reports := []graph.ConflictReport{}
	for rows.Next() {
		var r graph.ConflictReport
		var createdAt string
		if err := rows.Scan(&r.ID, &r.CommitID, &r.Type, &r.DetailJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("conflicts for commit: scan: %w", err)
		}
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conflicts for commit: iterate: %w", err)
	}
	return reports, nil
}
