package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/dendrite/internal/config"
	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/ledger"
	"github.com/roach88/dendrite/internal/metrics"
	"github.com/roach88/dendrite/internal/notify"
	"github.com/roach88/dendrite/internal/parser"
)

// Source label recorded on commits produced by this pipeline.
const sourceSlack = "slack"

// Result is the pipeline's answer for one inbound event. Exactly one of the
// optional payloads is set for terminal outcomes that carry one.
type Result struct {
	MessageID string                       `json:"message_id,omitempty"`
	Status    graph.IngestionStatus        `json:"ingestion_status"`
	Reason    string                       `json:"reason,omitempty"`
	Plain     *parser.Plain                `json:"parsed,omitempty"`
	Template  string                       `json:"expected_format,omitempty"`
	ValidIDs  []string                     `json:"valid_project_ids,omitempty"`
	Commit    *graph.Commit                `json:"commit,omitempty"`
	Conflicts *notify.ConflictNotification `json:"conflict_notification,omitempty"`
	Ack       *notify.Acknowledgement      `json:"ack,omitempty"`
}

// Pipeline wires the ingestion gate, parser, registry validation, no-op
// filter, sequencer, conflict detector, and notification builder into the
// end-to-end commit path for inbound events.
type Pipeline struct {
	gate      *Gate
	registry  *config.Registry
	sequencer *ledger.Sequencer
	detector  *ledger.Detector
	noop      *ledger.NoOpFilter
}

// NewPipeline assembles the pipeline.
func NewPipeline(gate *Gate, registry *config.Registry, sequencer *ledger.Sequencer, detector *ledger.Detector, noop *ledger.NoOpFilter) *Pipeline {
	return &Pipeline{
		gate:      gate,
		registry:  registry,
		sequencer: sequencer,
		detector:  detector,
		noop:      noop,
	}
}

// HandleEvent runs one envelope through the whole pipeline. Classification
// outcomes, parse failures, unknown projects, and no-ops are terminal
// successes (the request is answered with the recorded status); only
// infrastructure failures and commit races return an error.
func (p *Pipeline) HandleEvent(ctx context.Context, env Envelope) (Result, error) {
	outcome, err := p.gate.Classify(ctx, env)
	if err != nil {
		return Result{}, err
	}
	if !outcome.Proceed {
		metrics.IngestionOutcomes.WithLabelValues(string(outcome.Status)).Inc()
		return Result{
			MessageID: outcome.MessageID,
			Status:    outcome.Status,
			Reason:    outcome.Reason,
		}, nil
	}

	msg := outcome.Message

	// Plain messages are processed without mutating the graph; the
	// extracted summary and entities are kept on the message record.
	if !parser.IsStructuredAttempt(msg.Text) {
		plain := parser.ParsePlain(msg.Text)
		if err := p.gate.StampPlain(ctx, msg.MessageID, plain); err != nil {
			return Result{}, err
		}
		metrics.IngestionOutcomes.WithLabelValues(string(graph.StatusProcessed)).Inc()
		return Result{
			MessageID: msg.MessageID,
			Status:    graph.StatusProcessed,
			Plain:     &plain,
		}, nil
	}

	diff, err := parser.Parse(msg.Text)
	if err != nil {
		var perr *parser.ParseError
		if !errors.As(err, &perr) {
			return Result{}, err
		}
		reason := fmt.Sprintf("parse_error: %s", perr.Message)
		if err := p.gate.StampStatus(ctx, msg.MessageID, graph.StatusError, reason); err != nil {
			return Result{}, err
		}
		metrics.IngestionOutcomes.WithLabelValues(string(graph.StatusError)).Inc()
		return Result{
			MessageID: msg.MessageID,
			Status:    graph.StatusError,
			Reason:    reason,
			Template:  perr.Template,
		}, nil
	}

	// Unknown-project references never reach the sequencer; the rejection
	// surfaces the full set of configured ids.
	for _, projectID := range diff.ProjectIDs() {
		if _, ok := p.registry.Project(projectID); !ok {
			reason := fmt.Sprintf("unknown_project: %s", projectID)
			if err := p.gate.StampStatus(ctx, msg.MessageID, graph.StatusInvalidUnknownProject, reason); err != nil {
				return Result{}, err
			}
			metrics.IngestionOutcomes.WithLabelValues(string(graph.StatusInvalidUnknownProject)).Inc()
			return Result{
				MessageID: msg.MessageID,
				Status:    graph.StatusInvalidUnknownProject,
				Reason:    reason,
				ValidIDs:  p.registry.ProjectIDs(),
			}, nil
		}
	}

	// Advisory no-op suppression, outside the commit lock.
	reason, noop, err := p.noop.CheckNoOp(ctx, diff)
	if err != nil {
		return Result{}, err
	}
	if noop {
		if err := p.gate.StampStatus(ctx, msg.MessageID, graph.StatusNoOpDuplicate, reason); err != nil {
			return Result{}, err
		}
		metrics.IngestionOutcomes.WithLabelValues(string(graph.StatusNoOpDuplicate)).Inc()
		return Result{
			MessageID: msg.MessageID,
			Status:    graph.StatusNoOpDuplicate,
			Reason:    reason,
		}, nil
	}

	res, err := p.sequencer.Commit(ctx, ledger.CommitRequest{
		Diff:            diff,
		ActorUserID:     msg.UserID,
		Source:          sourceSlack,
		MessageID:       msg.MessageID,
		SourcePermalink: msg.Permalink,
	})
	if err != nil {
		if ledger.IsTargetNotFound(err) {
			// Project vanished between validation and commit; the
			// transaction rolled back, the ledger is unaffected.
			stampErr := p.gate.StampStatus(ctx, msg.MessageID, graph.StatusError, fmt.Sprintf("commit_failed: %v", err))
			if stampErr != nil {
				slog.Error("failed to stamp commit failure", "message_id", msg.MessageID, "error", stampErr)
			}
			metrics.IngestionOutcomes.WithLabelValues(string(graph.StatusError)).Inc()
		}
		return Result{}, err
	}
	metrics.CommitsTotal.Inc()
	metrics.IngestionOutcomes.WithLabelValues(string(graph.StatusProcessed)).Inc()

	conflicts, err := p.detector.Detect(ctx, diff, res.Commit, res.Prior)
	if err != nil {
		return Result{}, err
	}
	for _, c := range conflicts {
		metrics.ConflictsTotal.WithLabelValues(string(c.Type)).Inc()
	}

	result := Result{
		MessageID: msg.MessageID,
		Status:    graph.StatusProcessed,
		Commit:    &res.Commit,
	}
	if len(conflicts) > 0 {
		notification := notify.BuildConflict(res.Commit, conflicts, p.registry)
		result.Conflicts = &notification
	} else {
		ack := notify.BuildAck(diff, res.Commit)
		result.Ack = &ack
	}
	return result, nil
}
