package sgpauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pepe1603/sgpauth/mailq"
	"github.com/redis/go-redis/v9"
)

// inactivityMarker manages the one expiring Redis key per user whose
// expiration is the suspension trigger. The marker is never read by
// application code, only refreshed and subscribed to.
type inactivityMarker struct {
	redis  *redis.Client
	config InactivityConfig
}

func newInactivityMarker(redisClient *redis.Client, cfg InactivityConfig) *inactivityMarker {
	return &inactivityMarker{
		redis:  redisClient,
		config: cfg,
	}
}

func (m *inactivityMarker) key(email string) string {
	return m.config.MarkerPrefix + email
}

// Refresh unconditionally recreates the marker with the full threshold TTL.
// Delete and set run pipelined so a concurrent expiration cannot observe a
// half-applied refresh.
func (m *inactivityMarker) Refresh(ctx context.Context, email string) error {
	key := m.key(email)
	_, err := m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.Set(ctx, key, "1", m.config.Threshold)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMarkerUnavailable, err)
	}
	return nil
}

func (m *inactivityMarker) emailFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, m.config.MarkerPrefix) {
		return "", false
	}
	email := key[len(m.config.MarkerPrefix):]
	return email, email != ""
}

// RunInactivityListener subscribes to Redis key-expiration events and
// suspends the owning account whenever an inactivity marker expires. It
// blocks until ctx is done. The server must run Redis with keyspace
// notifications enabled for expired events (notify-keyspace-events Ex).
//
// Delivery is at-most-once-ish but may replay; the handler is idempotent,
// so running more than one listener is safe if wasteful.
func (e *Engine) RunInactivityListener(ctx context.Context) error {
	if e.redis == nil || e.users == nil {
		return ErrEngineNotReady
	}

	pubsub := e.redis.PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	ch := pubsub.Channel()
	e.log().Info("inactivity listener started", "prefix", e.config.Inactivity.MarkerPrefix)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("expiration subscription closed")
			}
			e.handleExpiredKey(ctx, msg.Payload)
		}
	}
}

// handleExpiredKey is the expiration event handler. It must stay bounded
// and fast: one conditional UPDATE plus one enqueue, with the mail itself
// delivered asynchronously by the queue consumer. Events for keys outside
// the marker namespace, unknown users, and already suspended accounts are
// all ignored without error.
func (e *Engine) handleExpiredKey(ctx context.Context, key string) {
	email, ok := e.marker.emailFromKey(key)
	if !ok {
		return
	}

	suspended, err := e.users.Suspend(ctx, email)
	if err != nil {
		e.log().Error("suspending dormant account", "email", email, "err", err)
		return
	}
	if !suspended {
		// Replayed event or account already suspended by an admin.
		e.log().Debug("expiration event ignored", "email", email)
		return
	}

	e.log().Info("account suspended for inactivity", "email", email)

	if e.mail == nil {
		return
	}
	err = e.mail.Enqueue(ctx, mailq.Message{
		To:       email,
		Subject:  "Your account was suspended",
		Template: mailq.TemplateSuspensionNotice,
		Model: map[string]string{
			"email":        email,
			"suspended_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		// The suspension itself stands; the notice is lost only if the
		// broker is down, which is logged for operators.
		e.log().Error("enqueueing suspension notice", "email", email, "err", err)
	}
}
