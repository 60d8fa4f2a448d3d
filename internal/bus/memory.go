package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scenegraph/sgeval/internal/pkg/errors"
	"github.com/scenegraph/sgeval/internal/pkg/logger"
)

// DefaultQueueSize is the per-subscriber buffer of a MemoryBus.
const DefaultQueueSize = 64

const closeTimeout = 10 * time.Second

// subscription owns one handler and the goroutine feeding it. Events reach a
// handler in publish order.
type subscription struct {
	handler Handler
	queue   chan Event
	stop    chan struct{}
}

// MemoryBus delivers events in process.
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	closed bool
	log    *logger.Logger

	workers sync.WaitGroup
	pending atomic.Int64
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Discard()
	}
	return &MemoryBus{
		subs: make(map[string][]*subscription),
		log:  log,
	}
}

// Publish queues event for every subscriber of its topic. It blocks while a
// subscriber's queue is full, until ctx is done.
func (b *MemoryBus) Publish(ctx context.Context, event Event) error {
	if err := validateEvent(event); err != nil {
		return err
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	subs := b.subs[event.Topic]
	b.mu.RUnlock()

	for _, s := range subs {
		b.pending.Add(1)
		select {
		case s.queue <- event:
		case <-s.stop:
			b.pending.Add(-1)
			return errors.New(errors.CodeUnavailable, "bus is closed")
		case <-ctx.Done():
			b.pending.Add(-1)
			return errors.Wrap(errors.CodeTimeout, "publish "+event.Topic, ctx.Err())
		}
	}
	return nil
}

// Subscribe starts delivering events on topic to handler.
func (b *MemoryBus) Subscribe(topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	s := &subscription{
		handler: handler,
		queue:   make(chan Event, DefaultQueueSize),
		stop:    make(chan struct{}),
	}
	b.subs[topic] = append(b.subs[topic], s)

	b.workers.Add(1)
	go b.deliver(s)
	return nil
}

func (b *MemoryBus) deliver(s *subscription) {
	defer b.workers.Done()
	for {
		select {
		case e := <-s.queue:
			b.handle(s, e)
		case <-s.stop:
			for {
				select {
				case e := <-s.queue:
					b.handle(s, e)
				default:
					return
				}
			}
		}
	}
}

func (b *MemoryBus) handle(s *subscription, e Event) {
	defer b.pending.Add(-1)
	if err := s.handler(context.Background(), e); err != nil {
		b.log.Warn("Event handler failed",
			"topic", e.Topic,
			"event_id", e.ID,
			"run_id", e.RunID,
			"error", err.Error(),
		)
	}
}

// Flush waits until every queued event has been handled. It reports false
// if timeout elapsed first.
func (b *MemoryBus) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for b.pending.Load() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(2 * time.Millisecond)
	}
	return true
}

// Close stops accepting events, delivers what is already queued and waits
// for the subscriber goroutines to exit.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, s := range subs {
			close(s.stop)
		}
	}
	b.subs = nil
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(closeTimeout):
		b.log.Warn("Event drain timeout reached, some handlers may not have completed")
	}
	return nil
}
