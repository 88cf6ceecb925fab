package mailq

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"text/template"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Mailer is the outbound transport the consumer delivers through.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Consumer drains the mail queue: render the template with the message
// model, deliver through the transport, ack. A failed delivery is requeued
// while attempts remain and rejected to the dead-letter queue once they run
// out. A message that cannot even be decoded or rendered is poison and goes
// straight to the dead-letter queue.
type Consumer struct {
	ch        *amqp.Channel
	cfg       Config
	mailer    Mailer
	templates *template.Template
	logger    *slog.Logger
}

// NewConsumer declares the topology and returns a consumer bound to the
// channel. A nil template set falls back to [DefaultTemplates].
func NewConsumer(ch *amqp.Channel, cfg Config, mailer Mailer, tmpl *template.Template, logger *slog.Logger) (*Consumer, error) {
	if mailer == nil {
		return nil, errors.New("mailer required")
	}
	if err := Declare(ch, cfg); err != nil {
		return nil, err
	}
	if tmpl == nil {
		tmpl = DefaultTemplates()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		ch:        ch,
		cfg:       cfg,
		mailer:    mailer,
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Run consumes deliveries until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(8, 0, false); err != nil {
		return err
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	c.logger.Info("mail consumer started", "queue", c.cfg.Queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle decides the fate of one delivery. It never panics the consumer
// loop: every outcome is an ack, a requeue, or a dead-letter reject.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("undecodable mail message", "message_id", d.MessageId, "err", err)
		_ = d.Reject(false)
		return
	}

	body, err := c.render(msg)
	if err != nil {
		c.logger.Error("rendering mail template", "message_id", msg.ID, "template", msg.Template, "err", err)
		_ = d.Reject(false)
		return
	}

	if err := c.mailer.Send(ctx, msg.To, msg.Subject, body); err != nil {
		attempt := deliveryAttempt(d)
		if attempt >= c.cfg.MaxAttempts {
			c.logger.Error("mail delivery exhausted, dead-lettering",
				"message_id", msg.ID, "to", msg.To, "attempt", attempt, "err", err)
			_ = d.Reject(false)
			return
		}
		c.logger.Warn("mail delivery failed, requeueing",
			"message_id", msg.ID, "to", msg.To, "attempt", attempt, "err", err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (c *Consumer) render(msg Message) (string, error) {
	var buf bytes.Buffer
	if err := c.templates.ExecuteTemplate(&buf, msg.Template, msg.Model); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// deliveryAttempt returns the 1-based attempt number of a delivery, read
// from the quorum queue's x-delivery-count header. The first delivery of a
// message carries no header.
func deliveryAttempt(d amqp.Delivery) int {
	if d.Headers == nil {
		return 1
	}
	switch v := d.Headers["x-delivery-count"].(type) {
	case int32:
		return int(v) + 1
	case int64:
		return int(v) + 1
	case int:
		return v + 1
	default:
		return 1
	}
}
