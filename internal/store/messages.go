package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/dendrite/internal/graph"
)

// GetMessage retrieves an ingested-message record by message id.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetMessage(ctx context.Context, messageID string) (graph.Message, error) {
	var m graph.Message
	var eventID *string
	var entities string
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, event_id, ts, channel, user_id, text, permalink,
		       ingestion_status, error_reason, plain_summary, plain_entities,
		       created_at, updated_at
		FROM slack_messages
		WHERE message_id = ?
	`, messageID).Scan(
		&m.MessageID, &eventID, &m.TS, &m.Channel, &m.UserID, &m.Text,
		&m.Permalink, &m.Status, &m.ErrorReason, &m.PlainSummary, &entities,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return graph.Message{}, err
	}
	if eventID != nil {
		m.EventID = *eventID
	}
	if entities != "" && entities != "[]" {
		if err := json.Unmarshal([]byte(entities), &m.PlainEntities); err != nil {
			return graph.Message{}, fmt.Errorf("get message %s: decode entities: %w", messageID, err)
		}
	}
	if m.CreatedAt, err = parseTime(createdAt); err != nil {
		return graph.Message{}, err
	}
	if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return graph.Message{}, err
	}
	return m, nil
}

// InsertMessage persists a message record on first sight of its message id.
// The event_id column is nullable so that events without an external id do
// not collide on the UNIQUE constraint.
func (s *Store) InsertMessage(ctx context.Context, m graph.Message, now time.Time) error {
	var eventID any
	if m.EventID != "" {
		eventID = m.EventID
	}
	entities, err := encodeEntities(m.PlainEntities)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.MessageID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slack_messages
		(message_id, event_id, ts, channel, user_id, text, permalink,
		 ingestion_status, error_reason, plain_summary, plain_entities,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.MessageID, eventID, m.TS, m.Channel, m.UserID, m.Text, m.Permalink,
		string(m.Status), m.ErrorReason, m.PlainSummary, entities,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.MessageID, err)
	}
	return nil
}

// UpdateMessageStatus re-stamps the ingestion status of an existing record.
func (s *Store) UpdateMessageStatus(ctx context.Context, messageID string, status graph.IngestionStatus, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE slack_messages
		SET ingestion_status = ?, error_reason = ?, updated_at = ?
		WHERE message_id = ?
	`, string(status), reason, formatTime(now), messageID)
	if err != nil {
		return fmt.Errorf("update message %s status: %w", messageID, err)
	}
	return requireRow(res, messageID)
}

// UpdateMessagePlain records the extracted summary and hashtag entities of a
// plain (non-mutating) message.
func (s *Store) UpdateMessagePlain(ctx context.Context, messageID, summary string, plainEntities []string, now time.Time) error {
	entities, err := encodeEntities(plainEntities)
	if err != nil {
		return fmt.Errorf("update message %s plain: %w", messageID, err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE slack_messages
		SET plain_summary = ?, plain_entities = ?, updated_at = ?
		WHERE message_id = ?
	`, summary, entities, formatTime(now), messageID)
	if err != nil {
		return fmt.Errorf("update message %s plain: %w", messageID, err)
	}
	return requireRow(res, messageID)
}

func encodeEntities(entities []string) (string, error) {
	if len(entities) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal(entities)
	if err != nil {
		return "", fmt.Errorf("encode entities: %w", err)
	}
	return string(raw), nil
}

func requireRow(res sql.Result, messageID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update message %s: rows affected: %w", messageID, err)
	}
	if n == 0 {
		return fmt.Errorf("update message %s: no such message", messageID)
	}
	return nil
}
