// Package ingest classifies inbound Slack events, resolves permalinks, and
// drives the full commit pipeline: gate, parser, registry validation, no-op
// filter, sequencer, conflict detector, notification builder.
package ingest

import "fmt"

// Envelope is the JSON body of a Slack events-API POST. url_verification
// envelopes carry a challenge to echo; event_callback envelopes carry the
// inner event.
type Envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge,omitempty"`
	EventID   string `json:"event_id,omitempty"`
	Event     *Event `json:"event,omitempty"`
}

// Event is the inner message event. The validate tags define the minimum
// shape a message must have to be processable; the gate persists an error
// status when they fail.
type Event struct {
	Type    string `json:"type" validate:"required"`
	Channel string `json:"channel" validate:"required"`
	User    string `json:"user" validate:"required"`
	TS      string `json:"ts" validate:"required"`
	Text    string `json:"text"`
	Subtype string `json:"subtype,omitempty"`
	BotID   string `json:"bot_id,omitempty"`
}

// MessageID derives the idempotency key for an event: the external event id
// when present, otherwise channel:timestamp.
func (e Envelope) MessageID() string {
	if e.EventID != "" {
		return e.EventID
	}
	if e.Event == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s", e.Event.Channel, e.Event.TS)
}
