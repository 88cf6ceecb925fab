package mailq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Declare sets up the full mail topology on the channel: the dead-letter
// exchange and queue first, then the main exchange and a quorum queue whose
// dead-letter arguments point at them. Declaration is idempotent, so both
// producer and consumer call it on startup.
func Declare(ch *amqp.Channel, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(cfg.DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(cfg.DeadLetterQueue, cfg.RoutingKey, cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("binding dead-letter queue: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declaring exchange: %w", err)
	}
	_, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-queue-type":              "quorum",
		"x-delivery-limit":          int32(cfg.MaxAttempts),
		"x-dead-letter-exchange":    cfg.DeadLetterExchange,
		"x-dead-letter-routing-key": cfg.RoutingKey,
	})
	if err != nil {
		return fmt.Errorf("declaring queue: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("binding queue: %w", err)
	}

	return nil
}

// Producer publishes mail messages. Enqueue guarantees only that the broker
// has durably accepted the message, never that delivery happened.
type Producer struct {
	ch  *amqp.Channel
	cfg Config
}

// NewProducer declares the topology and returns a producer bound to the
// channel. The channel is put into confirm mode so Enqueue can report
// broker acceptance.
func NewProducer(ch *amqp.Channel, cfg Config) (*Producer, error) {
	if err := Declare(ch, cfg); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enabling publisher confirms: %w", err)
	}
	return &Producer{ch: ch, cfg: cfg}, nil
}

// Enqueue describes the enqueue operation and its observable behavior.
//
// Enqueue may return an error when input validation, dependency calls, or security checks fail.
// Enqueue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (p *Producer) Enqueue(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding mail message: %w", err)
	}

	if p.cfg.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.PublishTimeout)
		defer cancel()
	}

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(
		ctx,
		p.cfg.Exchange,
		p.cfg.RoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	if !acked {
		return fmt.Errorf("%w: publish nacked by broker", ErrBrokerUnavailable)
	}

	return nil
}
