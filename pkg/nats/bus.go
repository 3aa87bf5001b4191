package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice2note-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	streamName   = "EVENTS"
	stageSubject = "events." + events.StageTopic
)

type Config struct {
	URL        string
	Durable    string
	MaxDeliver int
}

// Bus carries stage events over a JetStream work-queue stream so that every event is
// handled by exactly one worker of the durable consumer group.
type Bus struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	cfg     Config
	backoff []time.Duration
	logger  watermill.LoggerAdapter
}

var _ events.Bus = (*Bus)(nil)

func NewBus(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.Durable == "" {
		cfg.Durable = "pipeline-workers"
	}
	if cfg.MaxDeliver <= 0 {
		cfg.MaxDeliver = 5
	}

	nc, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(streamCtx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream %s: %w", streamName, err)
	}

	return &Bus{
		nc:      nc,
		js:      js,
		cfg:     cfg,
		backoff: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second, 2 * time.Minute},
		logger:  logger,
	}, nil
}

func (b *Bus) Publish(ctx context.Context, ev events.StageEvent) error {
	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if _, err := b.js.Publish(ctx, stageSubject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject %s: %w", stageSubject, err)
	}
	return nil
}

// redeliveryDelay grows with the delivery count and saturates at the last step.
func (b *Bus) redeliveryDelay(numDelivered uint64) time.Duration {
	i := int(numDelivered) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(b.backoff) {
		i = len(b.backoff) - 1
	}
	return b.backoff[i]
}

func (b *Bus) Run(ctx context.Context, h events.Handler) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       b.cfg.Durable,
		FilterSubject: stageSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    b.cfg.MaxDeliver,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		ev, err := events.Decode(msg.Data())
		if err != nil {
			b.logger.Error("terminating malformed stage event", err, watermill.LogFields{"subject": msg.Subject()})
			_ = msg.Term()
			return
		}

		if err := h(ctx, ev); err != nil {
			var delivered uint64 = 1
			if md, mdErr := msg.Metadata(); mdErr == nil {
				delivered = md.NumDelivered
			}
			b.logger.Error("stage handler failed, scheduling redelivery", err, watermill.LogFields{
				"object_key": ev.ObjectKey,
				"delivered":  delivered,
			})
			_ = msg.NakWithDelay(b.redeliveryDelay(delivered))
			return
		}

		_ = msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	b.logger.Info("consuming stage events", watermill.LogFields{"subject": stageSubject, "durable": b.cfg.Durable})
	<-ctx.Done()
	cc.Stop()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

func (b *Bus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	return nil
}
