// Package messaging implements the event bus for PMCraft Hub. Progress
// events are published here strictly after a successful storage commit,
// so every subscriber observes only durable state.
//
// Two implementations are provided: an in-memory bus for single-instance
// deployments and a Redis Pub/Sub bus for fan-out across instances.
package messaging

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

var (
	// ErrEventBusClosed is returned when publishing or subscribing on a
	// closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// EventBus delivers domain events to subscribed handlers. Publish never
// returns handler errors: by the time an event is published the state
// change is already committed, so a failing subscriber is logged and
// retried by its own means, never propagated back to the caller.
type EventBus interface {
	shared.EventPublisher

	Subscribe(eventType shared.EventType, handler shared.EventHandler) error
	SubscribeAll(handler shared.EventHandler) error
	Close() error
}

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBusConfig tunes the in-process bus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on the worker pool instead of the
	// publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize caps concurrent handler executions in async mode.
	WorkerPoolSize int

	// Logger for structured logging.
	Logger *slog.Logger

	// EnableMetrics enables execution counters.
	EnableMetrics bool
}

// DefaultInMemoryEventBusConfig returns the defaults both binaries start from.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		EnableMetrics:  true,
	}
}

// InMemoryEventBus routes events to handlers within a single process.
type InMemoryEventBus struct {
	logger  *slog.Logger
	async   bool
	slots   chan struct{}
	metrics *EventBusMetrics

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	global   []shared.EventHandler
	closed   bool
	draining chan struct{}
	wg       sync.WaitGroup
}

// NewInMemoryEventBus builds a ready-to-use bus; Close drains async handlers.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	bus := &InMemoryEventBus{
		logger:   config.Logger,
		async:    config.AsyncMode,
		slots:    make(chan struct{}, config.WorkerPoolSize),
		byType:   make(map[shared.EventType][]shared.EventHandler),
		draining: make(chan struct{}),
	}
	if config.EnableMetrics {
		bus.metrics = NewEventBusMetrics()
	}

	return bus
}

// Subscribe registers a handler for one event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.byType[eventType] = append(b.byType[eventType], handler)

	return nil
}

// SubscribeAll registers a handler that receives every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.global = append(b.global, handler)

	return nil
}

// Publish fans the event out to every matching handler.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	targets := make([]shared.EventHandler, 0, len(b.byType[event.EventType()])+len(b.global))
	targets = append(targets, b.byType[event.EventType()]...)
	targets = append(targets, b.global...)
	b.mu.RUnlock()

	if len(targets) == 0 {
		return nil
	}

	if b.metrics != nil {
		b.metrics.RecordPublish(event.EventType())
	}

	for _, h := range targets {
		if b.async {
			b.wg.Add(1)
			go b.dispatchAsync(event, h)
		} else if err := b.dispatch(event, h); err != nil {
			b.logger.Error("event handler failed",
				"event_type", event.EventType(),
				"aggregate_id", event.AggregateID(),
				"error", err,
			)
		}
	}

	return nil
}

// dispatchAsync waits for a worker slot and runs the handler.
func (b *InMemoryEventBus) dispatchAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.slots <- struct{}{}:
		defer func() { <-b.slots }()
	case <-b.draining:
		return
	}

	if err := b.dispatch(event, handler); err != nil {
		b.logger.Error("async event handler failed",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"error", err,
		)
	}
}

// dispatch runs one handler with panic containment and records metrics.
// A panicking subscriber must not take down the publisher.
func (b *InMemoryEventBus) dispatch(event shared.Event, handler shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic on %s: %v", event.EventType(), r)
		}
	}()

	start := time.Now()
	err = handler(event)

	if b.metrics != nil {
		b.metrics.RecordHandlerExecution(event.EventType(), time.Since(start), err == nil)
	}

	return err
}

// Close stops accepting events and waits for in-flight handlers.
// Safe to call more than once.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.draining)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}

// Metrics returns the bus counters, or nil if metrics are disabled.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}
