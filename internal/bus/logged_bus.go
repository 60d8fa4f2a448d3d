package bus

import (
	"context"

	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// JournaledBus records every event in a Journal before handing it to the
// wrapped bus, so the history of runs survives a restart of the listeners.
type JournaledBus struct {
	inner   Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus wraps inner. It owns journal and closes it on Close.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Discard()
	}
	return &JournaledBus{inner: inner, journal: journal, log: log}
}

// Publish appends the event to the journal, then delivers it. A journal
// failure is logged and delivery still happens.
func (b *JournaledBus) Publish(ctx context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}
	if err := b.journal.Append(event); err != nil {
		b.log.WithRun(event.RunID).Warn("Failed to journal event",
			"topic", event.Topic,
			"event_id", event.ID,
			"error", err.Error(),
		)
	}
	return b.inner.Publish(ctx, event)
}

func (b *JournaledBus) Subscribe(topic string, handler Handler) error {
	return b.inner.Subscribe(topic, handler)
}

// Journal returns the underlying journal.
func (b *JournaledBus) Journal() *Journal {
	return b.journal
}

func (b *JournaledBus) Close() error {
	if err := b.journal.Close(); err != nil {
		b.log.Warn("Failed to close journal", "error", err.Error())
	}
	return b.inner.Close()
}
