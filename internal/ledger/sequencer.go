package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/store"
)

// CommitRequest carries one validated diff plus its provenance into the
// sequencer.
type CommitRequest struct {
	Diff            graph.Diff
	ActorUserID     string
	Source          string
	MessageID       string
	SourcePermalink string
}

// CommitResult is the committed ledger entry plus the pre-mutation snapshot
// the conflict detector needs: the just-deactivated constraint versions on
// the constraint path, nothing extra on the dependency path.
type CommitResult struct {
	Commit graph.Commit
	Prior  []store.PriorConstraint
}

// Sequencer appends commits to the ledger. A single process-wide mutex
// serializes the read-head / allocate-sequence / append critical section so
// that sequence numbers stay dense and parent pointers chain correctly, no
// matter how many requests are in flight. Everything outside that critical
// section (serialization, id generation) runs unlocked.
type Sequencer struct {
	mu    sync.Mutex
	store *store.Store
	now   func() time.Time
}

// NewSequencer creates a sequencer over the given store.
func NewSequencer(st *store.Store) *Sequencer {
	return &Sequencer{store: st, now: time.Now}
}

// Commit appends one entry to the ledger and applies its mutation
// atomically. Fails without touching the ledger when the diff is empty or
// references a project that does not exist (see IsTargetNotFound).
func (s *Sequencer) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if req.Diff.Kind() == "" {
		return CommitResult{}, fmt.Errorf("commit: empty diff")
	}

	diffJSON, err := req.Diff.MarshalSnapshot()
	if err != nil {
		return CommitResult{}, fmt.Errorf("commit: %w", err)
	}

	in := store.CommitInput{
		CommitID:        uuid.NewString(),
		ActorUserID:     req.ActorUserID,
		Source:          req.Source,
		Why:             req.Diff.Reason(),
		CommitMessage:   req.Diff.CommitMessage(),
		MessageID:       req.MessageID,
		SourcePermalink: req.SourcePermalink,
		Diff:            req.Diff,
		DiffJSON:        diffJSON,
		Now:             s.now(),
	}

	s.mu.Lock()
	commit, prior, err := s.store.AppendCommit(ctx, in)
	s.mu.Unlock()
	if err != nil {
		return CommitResult{}, err
	}

	slog.Info("commit appended",
		"commit_id", commit.CommitID,
		"sequence_number", commit.SequenceNumber,
		"kind", string(req.Diff.Kind()),
		"actor", commit.ActorUserID,
	)

	return CommitResult{Commit: commit, Prior: prior}, nil
}

// IsTargetNotFound reports whether the error means a referenced project
// vanished between validation and commit. Uses errors.As to handle wrapped
// errors.
func IsTargetNotFound(err error) bool {
	var tnf *store.TargetNotFoundError
	return errors.As(err, &tnf)
}
