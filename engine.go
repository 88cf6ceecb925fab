package sgpauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/pepe1603/sgpauth/jwt"
	"github.com/pepe1603/sgpauth/mailq"
	"github.com/pepe1603/sgpauth/password"
	"github.com/redis/go-redis/v9"
)

// MailQueue is the producer side of the notification dispatcher. Enqueue
// returns once the broker has durably accepted the message; it never waits
// for delivery.
type MailQueue interface {
	Enqueue(ctx context.Context, msg mailq.Message) error
}

// Engine defines a public type used by sgpauth APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config     Config
	logger     *slog.Logger
	redis      *redis.Client
	users      UserStore
	tokens     TokenStore
	throttle   *attemptThrottle
	marker     *inactivityMarker
	mail       MailQueue
	hasher     *password.Argon2
	jwtManager *jwt.Manager
}

// Login validates email/password credentials and returns a signed bearer
// token. The attempt throttle is consulted first: a blocked identifier gets
// a *LockedError before credentials are even looked at, and a blocked
// identifier with the correct password stays blocked until the window
// elapses. On success the login counter is cleared, the inactivity marker
// is refreshed with its full TTL, and last_login_at is recorded.
func (e *Engine) Login(ctx context.Context, email, pass string) (string, *UserRecord, error) {
	if e.users == nil || e.throttle == nil || e.jwtManager == nil {
		return "", nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" || pass == "" {
		return "", nil, ErrInvalidCredentials
	}

	if err := e.throttle.Guard(ctx, ThrottleLogin, email); err != nil {
		return "", nil, err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if !user.Enabled {
		return "", nil, ErrAccountNotVerified
	}
	if !user.Active {
		return "", nil, ErrAccountSuspended
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		if err := e.throttle.RecordFailure(ctx, ThrottleLogin, email); err != nil {
			return "", nil, err
		}
		return "", nil, ErrInvalidCredentials
	}

	if err := e.throttle.RecordSuccess(ctx, ThrottleLogin, email); err != nil {
		return "", nil, err
	}
	if err := e.marker.Refresh(ctx, email); err != nil {
		return "", nil, err
	}

	now := time.Now().UTC()
	if err := e.users.MarkLogin(ctx, user.ID, now); err != nil {
		return "", nil, err
	}
	user.LastLoginAt = &now

	token, err := e.jwtManager.Create(user.Email, user.ID, user.Roles)
	if err != nil {
		return "", nil, err
	}

	return token, user, nil
}

// ValidateToken checks signature, expiry, and subject of a bearer token.
// It is pure: no store or counter round-trips.
func (e *Engine) ValidateToken(token, expectedSubject string) (*jwt.Claims, error) {
	if e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	return e.jwtManager.Validate(token, expectedSubject)
}

func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.Default()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
