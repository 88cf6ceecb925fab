package sgpauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials is an exported constant or variable used by the account engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is an exported constant or variable used by the account engine.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountNotVerified is an exported constant or variable used by the account engine.
	ErrAccountNotVerified = errors.New("account not verified")
	// ErrAccountSuspended is an exported constant or variable used by the account engine.
	ErrAccountSuspended = errors.New("account suspended")
	// ErrAccountLocked is an exported constant or variable used by the account engine.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAlreadyVerified is an exported constant or variable used by the account engine.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrEmailExists is an exported constant or variable used by the account engine.
	ErrEmailExists = errors.New("email already registered")
	// ErrVerificationCodeInvalid is an exported constant or variable used by the account engine.
	ErrVerificationCodeInvalid = errors.New("verification code invalid")
	// ErrVerificationCodeExpired is an exported constant or variable used by the account engine.
	ErrVerificationCodeExpired = errors.New("verification code expired")
	// ErrResetCodeNotRequested is an exported constant or variable used by the account engine.
	ErrResetCodeNotRequested = errors.New("password reset not requested")
	// ErrPasswordPolicy is an exported constant or variable used by the account engine.
	ErrPasswordPolicy = errors.New("password below minimum length")
	// ErrEngineNotReady is an exported constant or variable used by the account engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrThrottleUnavailable is an exported constant or variable used by the account engine.
	ErrThrottleUnavailable = errors.New("attempt counter backend unavailable")
	// ErrStoreUnavailable is an exported constant or variable used by the account engine.
	ErrStoreUnavailable = errors.New("account store unavailable")
	// ErrMailUnavailable is an exported constant or variable used by the account engine.
	ErrMailUnavailable = errors.New("mail broker unavailable")
	// ErrMarkerUnavailable is an exported constant or variable used by the account engine.
	ErrMarkerUnavailable = errors.New("activity marker backend unavailable")
)

// LockedError is returned when the attempt throttle has blocked an
// identifier. It unwraps to [ErrAccountLocked] so callers can match with
// errors.Is, and carries the time left on the lockout window.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account temporarily locked, retry in %ds", int(e.RetryAfter.Seconds()))
}

func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// IsBusinessError reports whether err belongs to the user-facing taxonomy,
// as opposed to an infrastructure failure that callers may retry.
func IsBusinessError(err error) bool {
	for _, target := range []error{
		ErrInvalidCredentials,
		ErrUserNotFound,
		ErrAccountNotVerified,
		ErrAccountSuspended,
		ErrAccountLocked,
		ErrAlreadyVerified,
		ErrEmailExists,
		ErrVerificationCodeInvalid,
		ErrVerificationCodeExpired,
		ErrResetCodeNotRequested,
		ErrPasswordPolicy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
