package metrics

import (
	"context"

	"github.com/scenegraph/sgeval/internal/bus"
	"github.com/scenegraph/sgeval/internal/persistence"
)

// EventSubscriber updates metrics from run events on the bus. With the Kafka
// bus this includes runs finished by other processes.
type EventSubscriber struct {
	metrics *Metrics
	bus     bus.Bus
}

// NewEventSubscriber creates a subscriber feeding m from b.
func NewEventSubscriber(m *Metrics, b bus.Bus) *EventSubscriber {
	return &EventSubscriber{metrics: m, bus: b}
}

// Subscribe registers handlers for the completion and failure topics.
func (es *EventSubscriber) Subscribe() error {
	if err := es.bus.Subscribe(bus.TopicEvalCompleted, es.handleCompleted); err != nil {
		return err
	}
	return es.bus.Subscribe(bus.TopicEvalFailed, es.handleFailed)
}

// handleCompleted sets the primary metric gauge. Gauges are last-write-wins,
// so a run this process already observed is not counted twice.
func (es *EventSubscriber) handleCompleted(ctx context.Context, event bus.Event) error {
	var p persistence.CompletedPayload
	if err := event.Decode(&p); err != nil {
		return err
	}
	es.metrics.BusEvents.WithLabels(event.Topic, OutcomeCompleted).Inc()
	if p.Primary != nil && p.PrimaryKey != "" {
		es.metrics.ReportValue.WithLabels(p.Dataset, p.Split, p.PrimaryKey).Set(*p.Primary)
	}
	return nil
}

func (es *EventSubscriber) handleFailed(ctx context.Context, event bus.Event) error {
	var p struct {
		Outcome string `json:"outcome"`
	}
	if err := event.Decode(&p); err != nil {
		return err
	}
	if p.Outcome == "" {
		p.Outcome = OutcomeOther
	}
	es.metrics.BusEvents.WithLabels(event.Topic, p.Outcome).Inc()
	return nil
}
