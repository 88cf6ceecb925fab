// Package mailq decouples deciding to notify a user from delivering the
// notification. Producers publish durable JSON messages to a RabbitMQ
// exchange and return as soon as the broker has accepted them; a consumer
// renders the message template and hands it to the mail transport. Delivery
// failures are retried a bounded number of times, after which the broker
// routes the message to a dead-letter queue for out-of-band inspection and
// replay instead of requeuing forever.
package mailq

import (
	"errors"
	"time"
)

// Template names known to the default template set.
const (
	TemplateVerification      = "verification_code"
	TemplateMagicLink         = "magic_link"
	TemplateReactivation      = "reactivation_code"
	TemplatePasswordReset     = "password_reset_code"
	TemplatePasswordChanged   = "password_changed"
	TemplateSuspensionNotice  = "suspension_notice"
	TemplateSuspensionWarning = "suspension_warning"
)

// ErrBrokerUnavailable is an exported constant or variable used by the mail queue.
var ErrBrokerUnavailable = errors.New("mail broker unavailable")

// Message is one durable queue entry: a recipient, a subject, a template
// identifier, and an opaque key/value model the template is rendered with.
type Message struct {
	ID       string            `json:"id"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	Template string            `json:"template"`
	Model    map[string]string `json:"model,omitempty"`
}

// Config describes the broker topology and retry bound shared by producer
// and consumer. Both sides declare the same topology so either can start
// first.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Exchange   string
	Queue      string
	RoutingKey string

	DeadLetterExchange string
	DeadLetterQueue    string

	// MaxAttempts bounds deliveries per message. Once a delivery fails with
	// no attempts left, the consumer rejects without requeue and the broker
	// dead-letters the message.
	MaxAttempts int

	PublishTimeout time.Duration
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return Config{
		Exchange:           "sgp.mail",
		Queue:              "sgp.mail.outbound",
		RoutingKey:         "outbound",
		DeadLetterExchange: "sgp.mail.dlx",
		DeadLetterQueue:    "sgp.mail.dead",
		MaxAttempts:        3,
		PublishTimeout:     5 * time.Second,
	}
}

func (c Config) validate() error {
	if c.Exchange == "" || c.Queue == "" || c.RoutingKey == "" {
		return errors.New("exchange, queue, and routing key are required")
	}
	if c.DeadLetterExchange == "" || c.DeadLetterQueue == "" {
		return errors.New("dead-letter exchange and queue are required")
	}
	if c.MaxAttempts <= 0 {
		return errors.New("MaxAttempts must be positive")
	}
	return nil
}
