package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// JobEventsTopic is the topic every job event is published on
const JobEventsTopic = "job_events"

// BusConfig tunes delivery to asynchronous subscribers
type BusConfig struct {
	// BufferSize is the per-subscriber channel buffer
	BufferSize int64

	// MaxRetries bounds redelivery attempts of a failing handler before the
	// event is dropped
	MaxRetries int

	// RetryInterval is the initial backoff between attempts
	RetryInterval time.Duration
}

// DefaultBusConfig returns a BusConfig with reasonable defaults
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize:    256,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
	}
}

// Bus is an EventHandler that republishes events on an in-process watermill
// pub/sub, so slow consumers such as the archive never run on the goroutine
// that emitted the event. Subscribers receive events asynchronously, each on
// its own goroutine, and are not guaranteed to see them in emission order.
type Bus struct {
	pubsub *gochannel.GoChannel
	router *message.Router
	logger *slog.Logger
}

var _ EventHandler = (*Bus)(nil)

// NewBus creates a Bus. Subscribe every handler before calling Run.
func NewBus(config BusConfig, logger *slog.Logger) (*Bus, error) {
	defaults := DefaultBusConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}

	logger = logger.With("component", "event_bus")
	wmLogger := watermill.NewSlogLogger(logger)

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            config.BufferSize,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, wmLogger)

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event router: %w", err)
	}

	b := &Bus{pubsub: pubsub, router: router, logger: logger}
	router.AddMiddleware(
		b.dropFailed,
		middleware.Retry{
			MaxRetries:      config.MaxRetries,
			InitialInterval: config.RetryInterval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
		middleware.Recoverer,
	)
	return b, nil
}

// HandleEvent publishes event on JobEventsTopic
func (b *Bus) HandleEvent(_ context.Context, event *JobEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	msg := message.NewMessage(event.ID.String(), payload)
	msg.Metadata.Set("event_type", event.Type)
	msg.Metadata.Set("tag", event.Tag)

	if err := b.pubsub.Publish(JobEventsTopic, msg); err != nil {
		return fmt.Errorf("failed to publish job event: %w", err)
	}
	return nil
}

// Subscribe delivers every published event to h under the handler name.
func (b *Bus) Subscribe(name string, h EventHandler) {
	b.router.AddNoPublisherHandler(name, JobEventsTopic, b.pubsub, func(msg *message.Message) error {
		var event JobEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// Retrying cannot fix a malformed payload
			b.logger.Error("dropping undecodable job event", "message_uuid", msg.UUID, "error", err)
			return nil
		}
		return h.HandleEvent(msg.Context(), &event)
	})
}

// Run delivers events to subscribers until ctx is cancelled or Close is
// called. It blocks.
func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once Run has started every subscriber
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

// Close stops the router, waiting for in-flight handlers, then the pub/sub
func (b *Bus) Close() error {
	if err := b.router.Close(); err != nil {
		return fmt.Errorf("failed to close event router: %w", err)
	}
	return b.pubsub.Close()
}

// dropFailed acks events whose handler still fails after retries, so a
// persistent failure cannot redeliver the same event forever.
func (b *Bus) dropFailed(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		msgs, err := h(msg)
		if err != nil {
			b.logger.Error("dropping job event after failed delivery",
				"handler", message.HandlerNameFromCtx(msg.Context()),
				"event_type", msg.Metadata.Get("event_type"),
				"tag", msg.Metadata.Get("tag"),
				"error", err)
			return nil, nil
		}
		return msgs, nil
	}
}
