package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmcraft/pmcraft-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// RedisClient is the minimal Redis Pub/Sub surface the bus needs.
// Narrowed to an interface so tests can run without a Redis server.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage is one message received from a Redis channel.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBusConfig wires the bus to a Redis client and a local fan-out.
type RedisEventBusConfig struct {
	// Client is the Redis Pub/Sub client.
	Client RedisClient

	// ChannelName is the shared event channel (default "pmcraft-hub:events").
	ChannelName string

	// InstanceID identifies this process. Events carry the publisher's
	// instance ID so a process can skip its own messages; default is a
	// random UUID per process.
	InstanceID string

	// LocalBusConfig configures the embedded in-memory bus.
	LocalBusConfig InMemoryEventBusConfig

	// Logger for structured logging.
	Logger *slog.Logger
}

// RedisEventBus fans events out across service instances via Redis Pub/Sub.
// Local handlers are always invoked directly; Redis only carries the event
// to the other instances, each of which replays it on its own local bus.
type RedisEventBus struct {
	client  RedisClient
	local   *InMemoryEventBus
	channel string
	self    string
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRedisEventBus creates the bus and starts its subscription loop.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = "pmcraft-hub:events"
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &RedisEventBus{
		client:  config.Client,
		local:   NewInMemoryEventBus(config.LocalBusConfig),
		channel: config.ChannelName,
		self:    config.InstanceID,
		logger:  config.Logger,
		cancel:  cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", bus.channel, err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.receive(ctx, messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for one event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Publish delivers the event locally and broadcasts it to other instances.
// A Redis outage degrades to local-only delivery rather than failing the
// publish: the caller's state change is already committed.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrEventBusClosed
	}
	b.mu.Unlock()

	data, err := json.Marshal(wireEvent{
		Origin:      b.self,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := b.client.Publish(context.Background(), b.channel, string(data)); err != nil {
		b.logger.Error("redis publish failed, delivering locally only",
			"event_type", event.EventType(),
			"error", err,
		)
	}

	return b.local.Publish(event)
}

// receive replays remote events onto the local bus.
func (b *RedisEventBus) receive(ctx context.Context, messages <-chan RedisMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}

			var we wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &we); err != nil {
				b.logger.Error("malformed event on bus channel", "error", err)
				continue
			}

			// Own events were already delivered locally at publish time.
			if we.Origin == b.self {
				continue
			}

			if err := b.local.Publish(remoteEvent{we}); err != nil {
				b.logger.Error("remote event delivery failed",
					"event_type", we.EventType,
					"error", err,
				)
			}
		}
	}
}

// Close stops the subscription loop and drains local handlers.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	return b.local.Close()
}

// Metrics returns the counters of the embedded local bus.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.local.Metrics()
}

// wireEvent is the JSON envelope carried over Redis.
type wireEvent struct {
	Origin      string                 `json:"origin"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

// remoteEvent presents a received envelope as a shared.Event.
type remoteEvent struct {
	we wireEvent
}

func (e remoteEvent) EventType() shared.EventType       { return e.we.EventType }
func (e remoteEvent) AggregateID() string               { return e.we.AggregateID }
func (e remoteEvent) OccurredAt() time.Time             { return e.we.OccurredAt }
func (e remoteEvent) Payload() map[string]interface{}   { return e.we.Payload }
