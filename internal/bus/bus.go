// Package bus announces evaluation lifecycle events (a run finished, a run
// failed) to whoever listens: dashboards, training schedulers, the journal.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/scenegraph/sgeval/internal/pkg/errors"
)

// Topics published by the evaluator.
const (
	TopicEvalCompleted = "sgeval.eval.completed"
	TopicEvalFailed    = "sgeval.eval.failed"
)

// Handler consumes one event. A returned error is logged; it never stops
// delivery to other handlers.
type Handler func(ctx context.Context, event Event) error

// Bus delivers events to the handlers subscribed to their topic.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(topic string, handler Handler) error
	Close() error
}

// Event is one lifecycle notification. Payload stays encoded so an event
// reads the same whether it came from memory, Kafka or the journal.
type Event struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Source  string          `json:"source"`
	RunID   string          `json:"run_id,omitempty"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event for runID with payload encoded as JSON.
func NewEvent(topic, source, runID string, payload any) (Event, error) {
	e := Event{
		ID:     uuid.NewString(),
		Topic:  topic,
		Source: source,
		RunID:  runID,
		Time:   time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, errors.Wrap(errors.CodeInternal, "encode event payload", err)
		}
		e.Payload = data
	}
	return e, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if len(e.Payload) == 0 {
		return errors.New(errors.CodeValidation, "event "+e.ID+" has no payload")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrap(errors.CodeValidation, "decode event payload", err)
	}
	return nil
}

func validateEvent(e Event) error {
	if e.Topic == "" {
		return errors.New(errors.CodeValidation, "event topic is required")
	}
	return nil
}
