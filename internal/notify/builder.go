// Package notify computes the outbound payloads produced after a commit:
// a conflict notification when the conflict detector found something, or a
// plain acknowledgement otherwise. Construction only; delivery is someone
// else's problem.
package notify

import (
	"sort"

	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/ledger"
)

// ConflictNotification is the flat payload built for a detected-conflict
// event. Recipients are deduplicated and sorted; the conflict list is
// carried verbatim.
type ConflictNotification struct {
	Type             string            `json:"type"`
	CommitID         string            `json:"commit_id"`
	SequenceNumber   int64             `json:"sequence_number"`
	ActorUserID      string            `json:"actor_user_id"`
	RecipientUserIDs []string          `json:"recipient_user_ids"`
	Conflicts        []ledger.Conflict `json:"conflicts"`
}

// Acknowledgement is the payload for a conflict-free commit.
type Acknowledgement struct {
	CommitID      string `json:"commit_id"`
	ProjectID     string `json:"project_id"`
	CommitMessage string `json:"commit_message"`
}

// NotificationTypeConflict names the conflict notification payload type.
const NotificationTypeConflict = "graph_conflict"

// OwnerDirectory resolves a project id to its owner user ids. The static
// registry implements this.
type OwnerDirectory interface {
	Owners(projectID string) []string
}

// BuildConflict computes the recipient set and payload for a commit that
// produced conflicts: the acting user, the owner sets of every project
// referenced by any conflict, and every author named in a constraint
// conflict's differing-prior-authors list.
func BuildConflict(commit graph.Commit, conflicts []ledger.Conflict, owners OwnerDirectory) ConflictNotification {
	recipients := map[string]bool{}
	if commit.ActorUserID != "" {
		recipients[commit.ActorUserID] = true
	}

	for _, c := range conflicts {
		for _, projectID := range c.ProjectIDs() {
			for _, owner := range owners.Owners(projectID) {
				recipients[owner] = true
			}
		}
		if c.Constraint != nil {
			for _, author := range c.Constraint.PriorAuthors {
				recipients[author] = true
			}
		}
	}

	ids := make([]string, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ConflictNotification{
		Type:             NotificationTypeConflict,
		CommitID:         commit.CommitID,
		SequenceNumber:   commit.SequenceNumber,
		ActorUserID:      commit.ActorUserID,
		RecipientUserIDs: ids,
		Conflicts:        conflicts,
	}
}

// BuildAck produces the plain acknowledgement for a conflict-free commit.
// The project named is the diff's first referenced project (the edge source
// for dependency adds).
func BuildAck(diff graph.Diff, commit graph.Commit) Acknowledgement {
	projectID := ""
	if ids := diff.ProjectIDs(); len(ids) > 0 {
		projectID = ids[0]
	}
	return Acknowledgement{
		CommitID:      commit.CommitID,
		ProjectID:     projectID,
		CommitMessage: commit.CommitMessage,
	}
}
