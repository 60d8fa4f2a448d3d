package persistence

import (
	"context"
	"math"

	"github.com/scenegraph/sgeval/internal/bus"
	"github.com/scenegraph/sgeval/internal/evaluation"
)

// CompletedPayload is the body of an eval.completed event.
type CompletedPayload struct {
	RunID       string   `json:"run_id"`
	Dataset     string   `json:"dataset"`
	Split       string   `json:"split"`
	SampleCount int      `json:"sample_count"`
	EdgeCount   int      `json:"edge_count"`
	PrimaryKey  string   `json:"primary_key"`
	Primary     *float64 `json:"primary"`
	Fingerprint string   `json:"fingerprint"`
}

// NewCompletedPayload summarizes a report. An undefined primary metric is
// sent as null.
func NewCompletedPayload(r *evaluation.Report) CompletedPayload {
	p := CompletedPayload{
		RunID:       r.RunID,
		Dataset:     r.Dataset,
		Split:       r.Split,
		SampleCount: r.SampleCount,
		EdgeCount:   r.EdgeCount,
		PrimaryKey:  evaluation.PrimaryKey,
		Fingerprint: r.Fingerprint(),
	}
	if v := r.Primary(); !math.IsNaN(v) {
		p.Primary = &v
	}
	return p
}

// BusSink announces finished reports on the event bus.
type BusSink struct {
	bus    bus.Bus
	source string
}

// NewBusSink publishes on b. The bus is owned by the caller.
func NewBusSink(b bus.Bus, source string) *BusSink {
	if source == "" {
		source = "sgeval"
	}
	return &BusSink{bus: b, source: source}
}

func (s *BusSink) Write(ctx context.Context, report *evaluation.Report) error {
	event, err := bus.NewEvent(bus.TopicEvalCompleted, s.source, report.RunID, NewCompletedPayload(report))
	if err != nil {
		return err
	}
	return s.bus.Publish(ctx, event)
}

func (s *BusSink) Close() error {
	return nil
}
