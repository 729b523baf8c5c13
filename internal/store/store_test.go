package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/dendrite/internal/graph"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProjects(t *testing.T, s *Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		p := graph.Project{
			ProjectID:    id,
			Name:         "Project " + id,
			OwnerUserIDs: []string{"U_owner_" + id},
		}
		if err := s.UpsertProject(ctx, p, time.Now()); err != nil {
			t.Fatalf("UpsertProject(%s) error = %v", id, err)
		}
	}
}

func constraintInput(id, projectID, key, value string, now time.Time) CommitInput {
	diff := graph.Diff{Constraint: &graph.ConstraintUpsert{
		ProjectID: projectID,
		Key:       key,
		Value:     value,
		Type:      graph.TypeDesignChoice,
		Reason:    "because",
	}}
	diffJSON, _ := diff.MarshalSnapshot()
	return CommitInput{
		CommitID:      id,
		ActorUserID:   "U_actor",
		Source:        "slack",
		Why:           "because",
		CommitMessage: diff.CommitMessage(),
		Diff:          diff,
		DiffJSON:      diffJSON,
		Now:           now,
	}
}

func dependencyInput(id, from, to string, now time.Time) CommitInput {
	diff := graph.Diff{Dependency: &graph.DependencyAdd{
		FromProjectID: from,
		ToProjectID:   to,
		Reason:        "because",
	}}
	diffJSON, _ := diff.MarshalSnapshot()
	return CommitInput{
		CommitID:      id,
		ActorUserID:   "U_actor",
		Source:        "slack",
		Why:           "because",
		CommitMessage: diff.CommitMessage(),
		Diff:          diff,
		DiffJSON:      diffJSON,
		Now:           now,
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Errorf("pragma check failed: %v", err)
	}
	if err := s.verifyPragma("foreign_keys", "1"); err != nil {
		t.Errorf("pragma check failed: %v", err)
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s2.Close()

	var version int
	if err := s2.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestAppendCommit_SequenceAndParentChain(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha")

	now := time.Now()
	var parent string
	for i := 1; i <= 3; i++ {
		in := constraintInput(
			"c"+string(rune('0'+i)), "alpha", "db", "postgres", now)
		commit, _, err := s.AppendCommit(ctx, in)
		if err != nil {
			t.Fatalf("AppendCommit #%d error = %v", i, err)
		}
		if commit.SequenceNumber != int64(i) {
			t.Errorf("commit #%d sequence = %d, want %d", i, commit.SequenceNumber, i)
		}
		if commit.ParentCommitID != parent {
			t.Errorf("commit #%d parent = %q, want %q", i, commit.ParentCommitID, parent)
		}
		parent = commit.CommitID
	}

	head, err := s.HeadSequence(ctx)
	if err != nil {
		t.Fatalf("HeadSequence() error = %v", err)
	}
	if head != 3 {
		t.Errorf("HeadSequence() = %d, want 3", head)
	}
}

func TestAppendCommit_ConstraintUpsertKeepsOneActive(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha")
	now := time.Now()

	if _, _, err := s.AppendCommit(ctx, constraintInput("c1", "alpha", "db", "postgres", now)); err != nil {
		t.Fatalf("first AppendCommit error = %v", err)
	}
	_, prior, err := s.AppendCommit(ctx, constraintInput("c2", "alpha", "db", "mysql", now))
	if err != nil {
		t.Fatalf("second AppendCommit error = %v", err)
	}

	if len(prior) != 1 {
		t.Fatalf("prior snapshot has %d entries, want 1", len(prior))
	}
	if prior[0].Value != "postgres" || prior[0].AuthorUserID != "U_actor" {
		t.Errorf("prior = %+v, want value=postgres author=U_actor", prior[0])
	}

	active, err := s.ActiveConstraintsForProject(ctx, "alpha")
	if err != nil {
		t.Fatalf("ActiveConstraintsForProject error = %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("%d active constraints, want 1", len(active))
	}
	if active[0].Value != "mysql" {
		t.Errorf("active value = %q, want mysql", active[0].Value)
	}

	// Both versions remain in history.
	var total int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM constraints WHERE project_id = 'alpha' AND key = 'db'`).Scan(&total)
	if err != nil {
		t.Fatalf("count constraints: %v", err)
	}
	if total != 2 {
		t.Errorf("%d constraint rows, want 2", total)
	}

	// The superseded row carries a deactivation timestamp.
	var deactivated int
	err = s.db.QueryRow(`SELECT COUNT(*) FROM constraints WHERE is_active = 0 AND deactivated_at IS NOT NULL`).Scan(&deactivated)
	if err != nil {
		t.Fatalf("count deactivated: %v", err)
	}
	if deactivated != 1 {
		t.Errorf("%d deactivated rows with timestamp, want 1", deactivated)
	}
}

func TestAppendCommit_DependencyAdd(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha", "beta")
	now := time.Now()

	commit, prior, err := s.AppendCommit(ctx, dependencyInput("d1", "alpha", "beta", now))
	if err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}
	if len(prior) != 0 {
		t.Errorf("dependency add returned %d priors, want 0", len(prior))
	}

	ok, err := s.ActiveDependencyExists(ctx, "alpha", "beta")
	if err != nil {
		t.Fatalf("ActiveDependencyExists error = %v", err)
	}
	if !ok {
		t.Error("edge alpha->beta not active after commit")
	}

	// Both endpoints are linked to the commit.
	rows, err := s.Query(ctx, `SELECT project_id FROM commit_projects WHERE commit_id = ? ORDER BY project_id`, commit.CommitID)
	if err != nil {
		t.Fatalf("query links: %v", err)
	}
	defer rows.Close()
	var linked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan link: %v", err)
		}
		linked = append(linked, id)
	}
	if len(linked) != 2 || linked[0] != "alpha" || linked[1] != "beta" {
		t.Errorf("linked projects = %v, want [alpha beta]", linked)
	}
}

func TestAppendCommit_UnknownProjectRollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha")
	now := time.Now()

	_, _, err := s.AppendCommit(ctx, dependencyInput("d1", "alpha", "ghost", now))
	var notFound *TargetNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want TargetNotFoundError", err)
	}
	if notFound.ProjectID != "ghost" {
		t.Errorf("ProjectID = %q, want ghost", notFound.ProjectID)
	}

	// Nothing must remain of the rolled-back attempt.
	head, err := s.HeadSequence(ctx)
	if err != nil {
		t.Fatalf("HeadSequence() error = %v", err)
	}
	if head != 0 {
		t.Errorf("HeadSequence() = %d after rollback, want 0", head)
	}
}

func TestAppendCommit_LinksExistingMessageOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha")
	now := time.Now()

	in := constraintInput("c1", "alpha", "db", "postgres", now)
	in.MessageID = "C1:1.000"
	commit, _, err := s.AppendCommit(ctx, in)
	if err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}
	if commit.MessageID != "" {
		t.Errorf("MessageID = %q for unrecorded message, want empty", commit.MessageID)
	}

	msg := graph.Message{
		MessageID: "C1:2.000",
		TS:        "2.000",
		Channel:   "C1",
		UserID:    "U1",
		Text:      "text",
		Status:    graph.StatusProcessed,
	}
	if err := s.InsertMessage(ctx, msg, now); err != nil {
		t.Fatalf("InsertMessage error = %v", err)
	}
	in2 := constraintInput("c2", "alpha", "db", "mysql", now)
	in2.MessageID = "C1:2.000"
	commit2, _, err := s.AppendCommit(ctx, in2)
	if err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}
	if commit2.MessageID != "C1:2.000" {
		t.Errorf("MessageID = %q, want C1:2.000", commit2.MessageID)
	}
}

func TestMessageLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	msg := graph.Message{
		MessageID: "C9:1.23",
		EventID:   "Ev123",
		TS:        "1.23",
		Channel:   "C9",
		UserID:    "U9",
		Text:      "hello",
		Status:    graph.StatusProcessed,
	}
	if err := s.InsertMessage(ctx, msg, now); err != nil {
		t.Fatalf("InsertMessage error = %v", err)
	}

	got, err := s.GetMessage(ctx, "C9:1.23")
	if err != nil {
		t.Fatalf("GetMessage error = %v", err)
	}
	if got.EventID != "Ev123" || got.Status != graph.StatusProcessed {
		t.Errorf("GetMessage = %+v", got)
	}

	if err := s.UpdateMessageStatus(ctx, "C9:1.23", graph.StatusNoOpDuplicate, "", now); err != nil {
		t.Fatalf("UpdateMessageStatus error = %v", err)
	}
	got, err = s.GetMessage(ctx, "C9:1.23")
	if err != nil {
		t.Fatalf("GetMessage error = %v", err)
	}
	if got.Status != graph.StatusNoOpDuplicate {
		t.Errorf("status = %q, want no_op_duplicate", got.Status)
	}

	if err := s.UpdateMessageStatus(ctx, "missing", graph.StatusError, "x", now); err == nil {
		t.Error("UpdateMessageStatus on missing record succeeded, want error")
	}
}

func TestUpdateMessagePlain(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	msg := graph.Message{
		MessageID: "C1:1.0",
		TS:        "1.0",
		Channel:   "C1",
		UserID:    "U1",
		Text:      "shipping #launch",
		Status:    graph.StatusProcessed,
	}
	if err := s.InsertMessage(ctx, msg, now); err != nil {
		t.Fatalf("InsertMessage error = %v", err)
	}

	if err := s.UpdateMessagePlain(ctx, "C1:1.0", "shipping #launch", []string{"#launch"}, now); err != nil {
		t.Fatalf("UpdateMessagePlain error = %v", err)
	}

	got, err := s.GetMessage(ctx, "C1:1.0")
	if err != nil {
		t.Fatalf("GetMessage error = %v", err)
	}
	if got.PlainSummary != "shipping #launch" {
		t.Errorf("summary = %q", got.PlainSummary)
	}
	if len(got.PlainEntities) != 1 || got.PlainEntities[0] != "#launch" {
		t.Errorf("entities = %v, want [#launch]", got.PlainEntities)
	}

	if err := s.UpdateMessagePlain(ctx, "missing", "x", nil, now); err == nil {
		t.Error("UpdateMessagePlain on missing record succeeded, want error")
	}
}

func TestInsertMessage_EmptyEventIDsDoNotCollide(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"C1:1.0", "C1:2.0"} {
		msg := graph.Message{MessageID: id, TS: id, Channel: "C1", UserID: "U1", Status: graph.StatusIgnored}
		if err := s.InsertMessage(ctx, msg, now); err != nil {
			t.Fatalf("InsertMessage(%s) error = %v", id, err)
		}
	}
}

func TestUpsertProject_ReplacesOwners(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Now()

	p := graph.Project{ProjectID: "alpha", Name: "Alpha", OwnerUserIDs: []string{"U1", "U2"}}
	if err := s.UpsertProject(ctx, p, now); err != nil {
		t.Fatalf("UpsertProject error = %v", err)
	}
	p.OwnerUserIDs = []string{"U3"}
	if err := s.UpsertProject(ctx, p, now); err != nil {
		t.Fatalf("second UpsertProject error = %v", err)
	}

	got, err := s.GetProject(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetProject error = %v", err)
	}
	if len(got.OwnerUserIDs) != 1 || got.OwnerUserIDs[0] != "U3" {
		t.Errorf("owners = %v, want [U3]", got.OwnerUserIDs)
	}
}

func TestGetProject_NotFound(t *testing.T) {
	s := testStore(t)
	_, err := s.GetProject(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("error = %v, want sql.ErrNoRows", err)
	}
}

func TestActiveEdges_SnapshotsActiveOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha", "beta", "gamma")
	now := time.Now()

	if _, _, err := s.AppendCommit(ctx, dependencyInput("d1", "alpha", "beta", now)); err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}
	if _, _, err := s.AppendCommit(ctx, dependencyInput("d2", "beta", "gamma", now)); err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}
	// Deactivated edges must not appear in the snapshot.
	if _, err := s.db.Exec(`UPDATE dependencies SET is_active = 0 WHERE from_project_id = 'beta'`); err != nil {
		t.Fatalf("deactivate edge: %v", err)
	}

	edges, err := s.ActiveEdges(ctx)
	if err != nil {
		t.Fatalf("ActiveEdges error = %v", err)
	}
	if len(edges) != 1 || len(edges["alpha"]) != 1 || edges["alpha"][0] != "beta" {
		t.Errorf("edges = %v, want alpha->[beta] only", edges)
	}
}

func TestCommitsSince(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		in := constraintInput("c"+string(rune('0'+i)), "alpha", "k", "v"+string(rune('0'+i)), base.Add(time.Duration(i)*time.Hour))
		if _, _, err := s.AppendCommit(ctx, in); err != nil {
			t.Fatalf("AppendCommit #%d error = %v", i, err)
		}
	}

	commits, err := s.CommitsSince(ctx, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("CommitsSince error = %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("%d commits since cutoff, want 2", len(commits))
	}
	if commits[0].SequenceNumber != 2 || commits[1].SequenceNumber != 3 {
		t.Errorf("sequences = %d, %d, want 2, 3", commits[0].SequenceNumber, commits[1].SequenceNumber)
	}
}

func TestFormatTime_FixedWidthOrdering(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(500 * time.Millisecond),
		base.Add(510 * time.Millisecond),
		base.Add(time.Second),
		base.Add(time.Second + time.Nanosecond),
	}
	for i := 1; i < len(times); i++ {
		before, after := formatTime(times[i-1]), formatTime(times[i])
		if !(before < after) {
			t.Errorf("formatTime(%v) = %q not < formatTime(%v) = %q",
				times[i-1], before, times[i], after)
		}
	}
}

func TestCommitsSince_MixedFractionPrecision(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha")

	// .510 vs .500: the fractions differ in width, so a variable-width
	// rendering would order these wrongly as text.
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	in := constraintInput("c1", "alpha", "k", "v", base.Add(510*time.Millisecond))
	if _, _, err := s.AppendCommit(ctx, in); err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}

	commits, err := s.CommitsSince(ctx, base.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("CommitsSince error = %v", err)
	}
	if len(commits) != 1 {
		t.Fatalf("commit at .510 missing from changes since .500: got %d commits", len(commits))
	}

	commits, err = s.CommitsSince(ctx, base.Add(520*time.Millisecond))
	if err != nil {
		t.Fatalf("CommitsSince error = %v", err)
	}
	if len(commits) != 0 {
		t.Errorf("changes since .520 returned %d commits, want 0", len(commits))
	}
}

func TestGetChecklist(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	seedProjects(t, s, "alpha", "beta")
	now := time.Now()

	in := constraintInput("c1", "alpha", "db", "postgres", now)
	in.Diff.Constraint.Type = graph.TypeRequirement
	if _, _, err := s.AppendCommit(ctx, in); err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}
	if _, _, err := s.AppendCommit(ctx, dependencyInput("d1", "alpha", "beta", now)); err != nil {
		t.Fatalf("AppendCommit error = %v", err)
	}

	checklist, err := s.GetChecklist(ctx, "alpha")
	if err != nil {
		t.Fatalf("GetChecklist error = %v", err)
	}
	if checklist.Project.ProjectID != "alpha" {
		t.Errorf("project = %q, want alpha", checklist.Project.ProjectID)
	}
	if len(checklist.Constraints[graph.TypeRequirement]) != 1 {
		t.Errorf("requirement constraints = %d, want 1", len(checklist.Constraints[graph.TypeRequirement]))
	}
	if len(checklist.Dependencies) != 1 || checklist.Dependencies[0].ToProjectID != "beta" {
		t.Errorf("dependencies = %+v, want one edge to beta", checklist.Dependencies)
	}

	if _, err := s.GetChecklist(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetChecklist(missing) error = %v, want sql.ErrNoRows", err)
	}
}
