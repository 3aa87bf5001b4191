package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"voice2note-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Bus carries stage events over a durable queue with manual acknowledgements. A failed
// first delivery is requeued once; a failed redelivery is dropped.
type Bus struct {
	conn      *amqp.Connection
	queueName string
	logger    watermill.LoggerAdapter

	mu sync.Mutex
	ch *amqp.Channel
}

var _ events.Bus = (*Bus)(nil)

// Dial connects and proves the broker accepts channels before returning.
func Dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(timeout)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	_ = ch.Close()
	return conn, nil
}

func NewBus(conn *amqp.Connection, queueName string, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if queueName == "" {
		queueName = events.StageTopic
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	if err := declare(ch, queueName); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Bus{conn: conn, queueName: queueName, logger: logger, ch: ch}, nil
}

func declare(ch *amqp.Channel, queueName string) error {
	_, err := ch.QueueDeclare(
		queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	return nil
}

func (b *Bus) Publish(ctx context.Context, ev events.StageEvent) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("marshal stage event failed: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ch == nil {
		return fmt.Errorf("publish on closed rabbitmq bus")
	}

	if err := b.ch.PublishWithContext(
		ctx,
		"",
		b.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish stage event failed: %w", err)
	}
	return nil
}

func (b *Bus) Run(ctx context.Context, h events.Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, b.queueName); err != nil {
		return err
	}
	if err := ch.Qos(4, 0, false); err != nil {
		return fmt.Errorf("set qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		b.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume queue failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			b.handle(ctx, d, h)
		}
	}
}

func (b *Bus) handle(ctx context.Context, d amqp.Delivery, h events.Handler) {
	ev, err := events.Decode(d.Body)
	if err != nil {
		b.logger.Error("dropping malformed stage event", err, nil)
		_ = d.Nack(false, false)
		return
	}

	if err := h(ctx, ev); err != nil {
		requeue := !d.Redelivered
		b.logger.Error("stage handler failed", err, watermill.LogFields{
			"object_key": ev.ObjectKey,
			"requeue":    requeue,
		})
		_ = d.Nack(false, requeue)
		return
	}

	_ = d.Ack(false)
}

// Close releases the channel and the connection it was opened on.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var err error
	if b.ch != nil {
		err = b.ch.Close()
		b.ch = nil
	}
	if cerr := b.conn.Close(); cerr != nil && !errors.Is(cerr, amqp.ErrClosed) && err == nil {
		err = cerr
	}
	return err
}
