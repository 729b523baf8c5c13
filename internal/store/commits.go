package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dendrite/internal/graph"
)

// TargetNotFoundError reports that a commit referenced a project that does
// not exist in the store. The surrounding transaction is rolled back, so
// the ledger is unaffected.
type TargetNotFoundError struct {
	ProjectID string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target project not found: %s", e.ProjectID)
}

// CommitInput carries everything the append transaction needs. The caller
// (the ledger sequencer) owns id generation and serialization so that the
// store stays a pure SQL layer.
type CommitInput struct {
	CommitID        string
	ActorUserID     string
	Source          string
	Why             string
	CommitMessage   string
	MessageID       string
	SourcePermalink string
	Diff            graph.Diff
	DiffJSON        string
	Now             time.Time
}

// PriorConstraint is the pre-mutation snapshot of one just-deactivated
// constraint, captured for the conflict detector.
type PriorConstraint struct {
	Value        string
	AuthorUserID string
}

// AppendCommit appends one entry to the ledger and applies its mutation in a
// single transaction:
//
//  1. Read the current head; the new sequence number is head+1 (1 for an
//     empty ledger) and the parent pointer is the head's commit id.
//  2. Insert the commit record, linked to the originating message if a
//     matching record exists.
//  3. Apply the diff: deactivate-and-insert for a constraint upsert, insert
//     for a dependency add. Touch updated_at on every affected project and
//     record the commit->project links.
//
// All steps commit together or not at all; sequence numbers are never
// skipped or reused because allocation happens inside the same transaction
// as the append. Callers must serialize invocations (the ledger sequencer
// holds a process-wide lock around this call).
//
// Returns the committed record plus the prior active constraint snapshot
// (empty for dependency adds).
func (s *Store) AppendCommit(ctx context.Context, in CommitInput) (graph.Commit, []PriorConstraint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return graph.Commit{}, nil, fmt.Errorf("append commit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Step 1: read head, allocate sequence.
	var parentID string
	var headSeq int64
	err = tx.QueryRowContext(ctx, `
		SELECT commit_id, sequence_number
		FROM graph_commits
		ORDER BY sequence_number DESC
		LIMIT 1
	`).Scan(&parentID, &headSeq)
	if err == sql.ErrNoRows {
		parentID, headSeq = "", 0
	} else if err != nil {
		return graph.Commit{}, nil, fmt.Errorf("append commit: read head: %w", err)
	}
	seq := headSeq + 1

	// Only link the originating message if its record actually exists.
	messageID := in.MessageID
	if messageID != "" {
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM slack_messages WHERE message_id = ?`, messageID).Scan(&one)
		if err == sql.ErrNoRows {
			messageID = ""
		} else if err != nil {
			return graph.Commit{}, nil, fmt.Errorf("append commit: check message: %w", err)
		}
	}

	commit := graph.Commit{
		CommitID:       in.CommitID,
		SequenceNumber: seq,
		ParentCommitID: parentID,
		ActorUserID:    in.ActorUserID,
		Source:         in.Source,
		DiffJSON:       in.DiffJSON,
		Why:            in.Why,
		CommitMessage:  in.CommitMessage,
		MessageID:      messageID,
		CreatedAt:      in.Now.UTC(),
	}

	// Step 2: insert the ledger entry.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO graph_commits
		(commit_id, sequence_number, parent_commit_id, actor_user_id, source,
		 diff, why, commit_message, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		commit.CommitID, commit.SequenceNumber, commit.ParentCommitID,
		commit.ActorUserID, commit.Source, commit.DiffJSON, commit.Why,
		commit.CommitMessage, commit.MessageID, formatTime(commit.CreatedAt),
	)
	if err != nil {
		return graph.Commit{}, nil, fmt.Errorf("append commit: insert commit: %w", err)
	}

	// Step 3: apply the mutation.
	var prior []PriorConstraint
	switch in.Diff.Kind() {
	case graph.KindConstraintUpsert:
		prior, err = applyConstraintUpsert(ctx, tx, in, commit)
	case graph.KindDependencyAdd:
		err = applyDependencyAdd(ctx, tx, in, commit)
	default:
		err = fmt.Errorf("append commit: empty diff")
	}
	if err != nil {
		return graph.Commit{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		return graph.Commit{}, nil, fmt.Errorf("append commit: commit tx: %w", err)
	}
	return commit, prior, nil
}

func applyConstraintUpsert(ctx context.Context, tx *sql.Tx, in CommitInput, commit graph.Commit) ([]PriorConstraint, error) {
	c := in.Diff.Constraint

	exists, err := projectExistsTx(ctx, tx, c.ProjectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &TargetNotFoundError{ProjectID: c.ProjectID}
	}

	// Capture the pre-mutation snapshot for the conflict detector.
	rows, err := tx.QueryContext(ctx, `
		SELECT value, author_user_id
		FROM constraints
		WHERE project_id = ? AND key = ? AND is_active = 1
	`, c.ProjectID, c.Key)
	if err != nil {
		return nil, fmt.Errorf("constraint upsert: query priors: %w", err)
	}
	prior := []PriorConstraint{}
	for rows.Next() {
		var p PriorConstraint
		if err := rows.Scan(&p.Value, &p.AuthorUserID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("constraint upsert: scan prior: %w", err)
		}
		prior = append(prior, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("constraint upsert: iterate priors: %w", err)
	}
	rows.Close()

	// Deactivate every prior active row for this (project, key).
	_, err = tx.ExecContext(ctx, `
		UPDATE constraints
		SET is_active = 0, deactivated_at = ?
		WHERE project_id = ? AND key = ? AND is_active = 1
	`, formatTime(commit.CreatedAt), c.ProjectID, c.Key)
	if err != nil {
		return nil, fmt.Errorf("constraint upsert: deactivate priors: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO constraints
		(id, project_id, key, value, type, reason, is_active, author_user_id,
		 source_message_id, source_permalink, commit_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(), c.ProjectID, c.Key, c.Value, string(c.Type), c.Reason,
		commit.ActorUserID, commit.MessageID, in.SourcePermalink,
		commit.CommitID, formatTime(commit.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("constraint upsert: insert constraint: %w", err)
	}

	if err := linkAndTouch(ctx, tx, commit, c.ProjectID); err != nil {
		return nil, err
	}
	return prior, nil
}

func applyDependencyAdd(ctx context.Context, tx *sql.Tx, in CommitInput, commit graph.Commit) error {
	d := in.Diff.Dependency

	for _, projectID := range []string{d.FromProjectID, d.ToProjectID} {
		exists, err := projectExistsTx(ctx, tx, projectID)
		if err != nil {
			return err
		}
		if !exists {
			return &TargetNotFoundError{ProjectID: projectID}
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO dependencies
		(id, from_project_id, to_project_id, reason, is_active, author_user_id,
		 source_message_id, source_permalink, commit_id, created_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(), d.FromProjectID, d.ToProjectID, d.Reason,
		commit.ActorUserID, commit.MessageID, in.SourcePermalink,
		commit.CommitID, formatTime(commit.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("dependency add: insert edge: %w", err)
	}

	for _, projectID := range []string{d.FromProjectID, d.ToProjectID} {
		if err := linkAndTouch(ctx, tx, commit, projectID); err != nil {
			return err
		}
	}
	return nil
}

// linkAndTouch records the commit->project link and touches the project's
// updated_at.
func linkAndTouch(ctx context.Context, tx *sql.Tx, commit graph.Commit, projectID string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commit_projects (commit_id, project_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, commit.CommitID, projectID)
	if err != nil {
		return fmt.Errorf("link commit to %s: %w", projectID, err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE projects SET updated_at = ? WHERE project_id = ?
	`, formatTime(commit.CreatedAt), projectID)
	if err != nil {
		return fmt.Errorf("touch project %s: %w", projectID, err)
	}
	return nil
}

// HeadSequence returns the highest committed sequence number, 0 when the
// ledger is empty. Read-only; used by status reporting and tests.
func (s *Store) HeadSequence(ctx context.Context) (int64, error) {
	var head sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sequence_number) FROM graph_commits`).Scan(&head)
	if err != nil {
		return 0, fmt.Errorf("head sequence: %w", err)
	}
	if !head.Valid {
		return 0, nil
	}
	return head.Int64, nil
}
