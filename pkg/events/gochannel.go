package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxRetries: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 5 * time.Second}
}

// GoChannelBus is the single-process bus: a watermill gochannel pub/sub driven by a
// router with retry and poison-queue middleware.
type GoChannelBus struct {
	pubSub *gochannel.GoChannel
	logger watermill.LoggerAdapter
	router *message.Router
}

var _ Bus = (*GoChannelBus)(nil)

func NewGoChannelBus(logger watermill.LoggerAdapter, retry RetryConfig) (*GoChannelBus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	poison, err := middleware.PoisonQueue(pubSub, PoisonTopic)
	if err != nil {
		return nil, fmt.Errorf("create poison queue: %w", err)
	}

	router.AddMiddleware(
		poison,
		middleware.Retry{
			MaxRetries:      retry.MaxRetries,
			InitialInterval: retry.InitialInterval,
			MaxInterval:     retry.MaxInterval,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
		middleware.Recoverer,
	)

	return &GoChannelBus{pubSub: pubSub, logger: logger, router: router}, nil
}

func (b *GoChannelBus) Publish(ctx context.Context, ev StageEvent) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode stage event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubSub.Publish(StageTopic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.ObjectKey, err)
	}
	return nil
}

// Poison exposes the dead-letter topic for inspection.
func (b *GoChannelBus) Poison(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, PoisonTopic)
}

// Run may be called once.
func (b *GoChannelBus) Run(ctx context.Context, h Handler) error {
	b.router.AddNoPublisherHandler("stage-dispatcher", StageTopic, b.pubSub, func(msg *message.Message) error {
		ev, err := Decode(msg.Payload)
		if err != nil {
			b.logger.Error("dropping stage event", err, watermill.LogFields{"message_uuid": msg.UUID})
			return nil
		}
		return h(msg.Context(), ev)
	})
	return b.router.Run(ctx)
}

// Running is closed once Run has subscribed its handler.
func (b *GoChannelBus) Running() chan struct{} {
	return b.router.Running()
}

func (b *GoChannelBus) Close() error {
	return errors.Join(b.router.Close(), b.pubSub.Close())
}
