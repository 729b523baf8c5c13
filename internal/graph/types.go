package graph

import "time"

// ConstraintType classifies a constraint as a deliberate design decision or
// an externally imposed requirement.
type ConstraintType string

const (
	TypeDesignChoice ConstraintType = "DesignChoice"
	TypeRequirement  ConstraintType = "Requirement"
)

// ValidConstraintTypes defines the allowed constraint type values.
var ValidConstraintTypes = map[ConstraintType]bool{
	TypeDesignChoice: true,
	TypeRequirement:  true,
}

// Project is a registered unit of work in the knowledge graph. Identity and
// membership come from the static registry; this service never creates
// projects outside of bootstrap, it only touches UpdatedAt when a commit
// mutates the project.
type Project struct {
	ProjectID    string    `json:"project_id"`
	Name         string    `json:"name"`
	OwnerUserIDs []string  `json:"owner_user_ids"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Constraint is one versioned value cell on a project. Constraints are never
// edited in place: an upsert deactivates the prior active row(s) for the
// same (project_id, key) and inserts a fresh active row, so the full history
// stays queryable. At most one row per (project_id, key) is active at a time.
type Constraint struct {
	ID              string         `json:"id"`
	ProjectID       string         `json:"project_id"`
	Key             string         `json:"key"`
	Value           string         `json:"value"`
	Type            ConstraintType `json:"type"`
	Reason          string         `json:"reason"`
	IsActive        bool           `json:"is_active"`
	AuthorUserID    string         `json:"author_user_id"`
	SourceMessageID string         `json:"source_message_id,omitempty"`
	SourcePermalink string         `json:"source_permalink,omitempty"`
	CommitID        string         `json:"commit_id"`
	CreatedAt       time.Time      `json:"created_at"`
	DeactivatedAt   *time.Time     `json:"deactivated_at,omitempty"`
}

// Dependency is a directed, attributed edge between two projects. Edges are
// never deleted; deactivation is the only mutation path.
type Dependency struct {
	ID              string     `json:"id"`
	FromProjectID   string     `json:"from_project_id"`
	ToProjectID     string     `json:"to_project_id"`
	Reason          string     `json:"reason"`
	IsActive        bool       `json:"is_active"`
	AuthorUserID    string     `json:"author_user_id"`
	SourceMessageID string     `json:"source_message_id,omitempty"`
	SourcePermalink string     `json:"source_permalink,omitempty"`
	CommitID        string     `json:"commit_id"`
	CreatedAt       time.Time  `json:"created_at"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty"`
}

// Commit is one entry in the append-only ledger. SequenceNumber is dense and
// strictly increasing; ParentCommitID chains each entry to the previous head
// (empty for the first commit). DiffJSON is a serialized snapshot of the
// originating diff.
type Commit struct {
	CommitID       string    `json:"commit_id"`
	SequenceNumber int64     `json:"sequence_number"`
	ParentCommitID string    `json:"parent_commit_id,omitempty"`
	ActorUserID    string    `json:"actor_user_id"`
	Source         string    `json:"source"`
	DiffJSON       string    `json:"diff"`
	Why            string    `json:"why"`
	CommitMessage  string    `json:"commit_message"`
	MessageID      string    `json:"message_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ConflictType categorizes a post-commit conflict report.
type ConflictType string

const (
	ConflictConstraint      ConflictType = "constraint_conflict"
	ConflictDependencyCycle ConflictType = "dependency_cycle"
)

// ConflictReport records a conflict detected after a commit succeeded.
// Conflicts never block the commit itself; they exist to surface silent
// overwrites and cycle introductions for human attention.
type ConflictReport struct {
	ID         string       `json:"id"`
	CommitID   string       `json:"commit_id"`
	Type       ConflictType `json:"conflict_type"`
	DetailJSON string       `json:"detail"`
	CreatedAt  time.Time    `json:"created_at"`
}

// IngestionStatus is the terminal classification of an inbound message.
type IngestionStatus string

const (
	StatusProcessed             IngestionStatus = "processed"
	StatusIgnored               IngestionStatus = "ignored"
	StatusNoOpDuplicate         IngestionStatus = "no_op_duplicate"
	StatusInvalidUnknownProject IngestionStatus = "invalid_unknown_project"
	StatusError                 IngestionStatus = "error"
)

// Message is the idempotency anchor for inbound Slack events. One row per
// message id, created on first sight and afterwards only status-updated.
// Plain (non-mutating) messages additionally get their extracted summary and
// hashtag entities recorded.
type Message struct {
	MessageID     string          `json:"message_id"`
	EventID       string          `json:"event_id,omitempty"`
	TS            string          `json:"ts"`
	Channel       string          `json:"channel"`
	UserID        string          `json:"user_id"`
	Text          string          `json:"text"`
	Permalink     string          `json:"permalink,omitempty"`
	Status        IngestionStatus `json:"ingestion_status"`
	ErrorReason   string          `json:"error_reason,omitempty"`
	PlainSummary  string          `json:"plain_summary,omitempty"`
	PlainEntities []string        `json:"plain_entities,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
