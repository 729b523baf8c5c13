package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/dendrite/internal/graph"
	"github.com/roach88/dendrite/internal/parser"
	"github.com/roach88/dendrite/internal/store"
)

// Classification reasons stamped onto message records by the gate.
const (
	ReasonUnsupportedEventType    = "unsupported_event_type"
	ReasonMessageAlreadyProcessed = "message_already_processed"
	ReasonBotOrSubtypeMessage     = "bot_or_subtype_message"
	ReasonUnexpectedChannel       = "unexpected_channel"
)

// Outcome is the gate's decision for one inbound event.
type Outcome struct {
	MessageID string
	Status    graph.IngestionStatus
	Reason    string

	// Message is the persisted (or re-read) record; zero when nothing was
	// persisted (unsupported event types).
	Message graph.Message

	// Proceed is true only when the message is fresh and processable: it
	// was persisted as processed and should continue into parsing.
	Proceed bool
}

// Gate owns the SlackMessage lifecycle: the ordered decision list that
// classifies every inbound event, and the idempotency re-stamp for retried
// deliveries. Decisions are evaluated in order and short-circuit at the
// first match; the duplicate check deliberately precedes the bot and
// channel filters so that a retry of an already-accepted message is never
// reclassified as a fresh rejection.
type Gate struct {
	store     *store.Store
	channelID string
	resolver  *PermalinkResolver
	validate  *validator.Validate
	now       func() time.Time
}

// NewGate creates a gate for the configured source channel.
func NewGate(st *store.Store, channelID string, resolver *PermalinkResolver) *Gate {
	return &Gate{
		store:     st,
		channelID: channelID,
		resolver:  resolver,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// Classify runs the ordered decision list for one envelope.
func (g *Gate) Classify(ctx context.Context, env Envelope) (Outcome, error) {
	// 1. Not a user message event: nothing to persist.
	if env.Event == nil || env.Event.Type != "message" {
		return Outcome{
			Status: graph.StatusIgnored,
			Reason: ReasonUnsupportedEventType,
		}, nil
	}

	event := env.Event
	messageID := env.MessageID()

	// 2. Duplicate delivery of an already-accepted message.
	existing, err := g.store.GetMessage(ctx, messageID)
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Outcome{}, fmt.Errorf("gate: lookup message %s: %w", messageID, err)
	}
	if found && (existing.Status == graph.StatusProcessed || existing.Status == graph.StatusNoOpDuplicate) {
		if err := g.store.UpdateMessageStatus(ctx, messageID, graph.StatusNoOpDuplicate, ReasonMessageAlreadyProcessed, g.now()); err != nil {
			return Outcome{}, err
		}
		existing.Status = graph.StatusNoOpDuplicate
		existing.ErrorReason = ReasonMessageAlreadyProcessed
		slog.Debug("duplicate message re-stamped", "message_id", messageID)
		return Outcome{
			MessageID: messageID,
			Status:    graph.StatusNoOpDuplicate,
			Reason:    ReasonMessageAlreadyProcessed,
			Message:   existing,
		}, nil
	}

	// 3. Bot echoes and message subtypes (edits, joins, ...).
	if event.BotID != "" || event.Subtype != "" {
		return g.persist(ctx, env, found, "", graph.StatusIgnored, ReasonBotOrSubtypeMessage)
	}

	// 4. Wrong channel.
	if event.Channel != g.channelID {
		return g.persist(ctx, env, found, "", graph.StatusIgnored, ReasonUnexpectedChannel)
	}

	// 5. Event-shape validation.
	if err := g.validate.Struct(event); err != nil {
		reason := fmt.Sprintf("invalid_event_payload: %v", err)
		return g.persist(ctx, env, found, "", graph.StatusError, reason)
	}

	// 6. Accept: resolve a permalink and persist as processed.
	permalink := g.resolver.Resolve(ctx, event.Channel, event.TS)
	outcome, err := g.persist(ctx, env, found, permalink, graph.StatusProcessed, "")
	if err != nil {
		return Outcome{}, err
	}
	outcome.Proceed = true
	return outcome, nil
}

// persist creates the message record on first sight or re-stamps the status
// of a record that previously terminated in a non-accepting state.
func (g *Gate) persist(ctx context.Context, env Envelope, found bool, permalink string, status graph.IngestionStatus, reason string) (Outcome, error) {
	event := env.Event
	messageID := env.MessageID()
	now := g.now()

	m := graph.Message{
		MessageID:   messageID,
		EventID:     env.EventID,
		TS:          event.TS,
		Channel:     event.Channel,
		UserID:      event.User,
		Text:        event.Text,
		Permalink:   permalink,
		Status:      status,
		ErrorReason: reason,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}

	if found {
		if err := g.store.UpdateMessageStatus(ctx, messageID, status, reason, now); err != nil {
			return Outcome{}, err
		}
	} else {
		if err := g.store.InsertMessage(ctx, m, now); err != nil {
			return Outcome{}, err
		}
	}

	return Outcome{
		MessageID: messageID,
		Status:    status,
		Reason:    reason,
		Message:   m,
	}, nil
}

// StampStatus re-stamps a message's terminal status. Used by the pipeline
// for post-gate outcomes (parse failures, unknown projects, no-ops, commit
// errors).
func (g *Gate) StampStatus(ctx context.Context, messageID string, status graph.IngestionStatus, reason string) error {
	return g.store.UpdateMessageStatus(ctx, messageID, status, reason, g.now())
}

// StampPlain records a plain message's extracted summary and entities.
func (g *Gate) StampPlain(ctx context.Context, messageID string, plain parser.Plain) error {
	return g.store.UpdateMessagePlain(ctx, messageID, plain.Summary, plain.Entities, g.now())
}
