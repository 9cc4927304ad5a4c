package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"carecal/pkg/logger"
	"carecal/pkg/middleware"
)

const publishTimeout = 10 * time.Second

// Dispatcher decouples state transitions from event delivery: Emit enqueues
// on a bounded buffer and one goroutine drains it into the Publisher. When
// the buffer is full the event is dropped and logged.
type Dispatcher struct {
	publisher Publisher
	log       *logger.Logger
	queue     chan Event
	done      chan struct{}
	dropped   atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(publisher Publisher, log *logger.Logger, size int) *Dispatcher {
	d := &Dispatcher{
		publisher: publisher,
		log:       log,
		queue:     make(chan Event, size),
		done:      make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) Emit(ctx context.Context, e Event) {
	if e.CorrelationID == "" {
		e.CorrelationID = middleware.RequestID(ctx)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("Event emitted after dispatcher closed", "event_type", e.Type, "event_id", e.ID)
		return
	}

	select {
	case d.queue <- e:
	default:
		d.dropped.Add(1)
		d.log.Error("Event queue full, dropping event",
			"event_type", e.Type,
			"event_id", e.ID,
			"slot_id", e.SlotID,
			"rule_id", e.RuleID,
		)
	}
}

// Dropped is the number of events discarded because the queue was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, e); err != nil {
			d.log.Error("Failed to publish event",
				"event_type", e.Type,
				"event_id", e.ID,
				"provider_id", e.ProviderID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue until ctx expires and then
// closes the publisher.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.log.Warn("Event queue not drained before shutdown", "pending", len(d.queue))
	}
	return d.publisher.Close()
}
