package metrics

import (
	"context"
	"testing"

	"github.com/scenegraph/sgeval/internal/bus"
	"github.com/scenegraph/sgeval/internal/persistence"
)

func publishEvent(t *testing.T, b bus.Bus, topic string, payload any) {
	t.Helper()
	e, err := bus.NewEvent(topic, "other-host", "run-7", payload)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if err := b.Publish(context.Background(), e); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
}

func TestEventSubscriber(t *testing.T) {
	m := New()
	b := bus.NewMemoryBus(nil)
	if err := NewEventSubscriber(m, b).Subscribe(); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	primary := 41.5
	publishEvent(t, b, bus.TopicEvalCompleted, persistence.CompletedPayload{
		RunID:      "run-7",
		Dataset:    "scannet",
		Split:      "test_scans",
		PrimaryKey: "mean_recall@50",
		Primary:    &primary,
	})
	publishEvent(t, b, bus.TopicEvalCompleted, persistence.CompletedPayload{
		Dataset:    "ws",
		Split:      "validation_scans",
		PrimaryKey: "mean_recall@50",
	})
	publishEvent(t, b, bus.TopicEvalFailed, map[string]string{"outcome": OutcomeInference})
	publishEvent(t, b, bus.TopicEvalFailed, map[string]string{})
	publishEvent(t, b, bus.TopicEvalFailed, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if got := m.ReportValue.WithLabels("scannet", "test_scans", "mean_recall@50").Value(); got != 41.5 {
		t.Errorf("report value = %v, want 41.5", got)
	}
	if got := len(m.ReportValue.all()); got != 1 {
		t.Errorf("report series = %d, want 1 (undefined primary is not exported)", got)
	}

	tests := []struct {
		topic, outcome string
		want           int64
	}{
		{bus.TopicEvalCompleted, OutcomeCompleted, 2},
		{bus.TopicEvalFailed, OutcomeInference, 1},
		{bus.TopicEvalFailed, OutcomeOther, 1},
	}
	for _, tt := range tests {
		if got := m.BusEvents.WithLabels(tt.topic, tt.outcome).Value(); got != tt.want {
			t.Errorf("bus events{%s,%s} = %d, want %d", tt.topic, tt.outcome, got, tt.want)
		}
	}
}
