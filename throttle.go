package sgpauth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Throttle contexts. Login failures and one-time-code failures use
// different lockout windows; the context name picks the window.
const (
	ThrottleLogin     = "login"
	ThrottleOTPPrefix = "otp"
)

// OTPContext builds the throttle context for one-time-code failures of a
// given purpose, e.g. "otp:reset".
func OTPContext(purpose string) string {
	return ThrottleOTPPrefix + ":" + purpose
}

// attemptThrottle is the generic brute-force counter. One Redis key per
// (context, identifier) with a TTL equal to the lockout window. A failure
// that reaches the threshold re-arms the TTL so the lockout always runs a
// full window from the last failure.
type attemptThrottle struct {
	redis  *redis.Client
	config ThrottleConfig
}

func newAttemptThrottle(redisClient *redis.Client, cfg ThrottleConfig) *attemptThrottle {
	return &attemptThrottle{
		redis:  redisClient,
		config: cfg,
	}
}

func (t *attemptThrottle) key(context, identifier string) string {
	return t.config.KeyPrefix + ":" + context + ":" + identifier
}

func (t *attemptThrottle) window(context string) time.Duration {
	if strings.HasPrefix(context, ThrottleOTPPrefix) {
		return t.config.OTPLockout
	}
	return t.config.LoginLockout
}

// RecordFailure describes the recordfailure operation and its observable behavior.
//
// RecordFailure may return an error when input validation, dependency calls, or security checks fail.
// RecordFailure does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (t *attemptThrottle) RecordFailure(ctx context.Context, thrCtx, identifier string) error {
	key := t.key(thrCtx, identifier)
	window := t.window(thrCtx)

	count, err := t.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}

	// First failure arms the window; reaching the threshold re-arms it so a
	// burst near window-end still yields a full lockout.
	if count == 1 || count >= int64(t.config.MaxAttempts) {
		if err := t.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
		}
	}

	return nil
}

// RecordSuccess describes the recordsuccess operation and its observable behavior.
//
// RecordSuccess may return an error when input validation, dependency calls, or security checks fail.
// RecordSuccess does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (t *attemptThrottle) RecordSuccess(ctx context.Context, thrCtx, identifier string) error {
	if err := t.redis.Del(ctx, t.key(thrCtx, identifier)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

// IsBlocked describes the isblocked operation and its observable behavior.
//
// IsBlocked may return an error when input validation, dependency calls, or security checks fail.
// IsBlocked does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (t *attemptThrottle) IsBlocked(ctx context.Context, thrCtx, identifier string) (bool, error) {
	val, err := t.redis.Get(ctx, t.key(thrCtx, identifier)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("%w: corrupt counter %q", ErrThrottleUnavailable, val)
	}

	return count >= int64(t.config.MaxAttempts), nil
}

// RemainingBlock describes the remainingblock operation and its observable behavior.
//
// RemainingBlock may return an error when input validation, dependency calls, or security checks fail.
// RemainingBlock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (t *attemptThrottle) RemainingBlock(ctx context.Context, thrCtx, identifier string) (time.Duration, error) {
	ttl, err := t.redis.PTTL(ctx, t.key(thrCtx, identifier)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Guard returns a *LockedError carrying the remaining lockout time when the
// identifier is blocked, nil when it is not. Counter-store failures
// propagate; the throttle never fails open.
func (t *attemptThrottle) Guard(ctx context.Context, thrCtx, identifier string) error {
	blocked, err := t.IsBlocked(ctx, thrCtx, identifier)
	if err != nil {
		return err
	}
	if !blocked {
		return nil
	}

	remaining, err := t.RemainingBlock(ctx, thrCtx, identifier)
	if err != nil {
		return err
	}

	return &LockedError{RetryAfter: remaining}
}
