package sgpauth

import (
	"errors"
	"time"
)

// ThrottleConfig controls the brute-force attempt counters.
//
// ThrottleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ThrottleConfig struct {
	// MaxAttempts is the number of recorded failures after which an
	// identifier is blocked.
	MaxAttempts int
	// LoginLockout is the counter TTL and lockout window for the login
	// context.
	LoginLockout time.Duration
	// OTPLockout is the counter TTL and lockout window for one-time-code
	// contexts.
	OTPLockout time.Duration
	// KeyPrefix namespaces counter keys in Redis.
	KeyPrefix string
}

// VerificationConfig controls single-use verification tokens.
//
// VerificationConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type VerificationConfig struct {
	CodeTTL    time.Duration
	CodeLength int
}

// PasswordResetConfig controls the short-code password reset flow.
//
// PasswordResetConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PasswordResetConfig struct {
	CodeTTL           time.Duration
	CodeLength        int
	MinPasswordLength int
}

// JWTConfig controls bearer token issuance.
//
// JWTConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type JWTConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// InactivityConfig controls the per-user expiring marker whose expiration
// triggers suspension.
//
// InactivityConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type InactivityConfig struct {
	// Threshold is the dormancy window after the last successful login.
	Threshold time.Duration
	// MarkerPrefix namespaces marker keys in Redis. The expiration listener
	// only reacts to keys under this prefix.
	MarkerPrefix string
}

// WarningConfig controls the pre-suspension warning sweep.
//
// WarningConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type WarningConfig struct {
	// Window is how long before the inactivity threshold the warning sweep
	// starts matching an account.
	Window time.Duration
	// SweepInterval is the pause between sweeps.
	SweepInterval time.Duration
	// SweepHour is the UTC hour of day the first sweep is aligned to.
	// Subsequent sweeps run every SweepInterval from there.
	SweepHour int
}

// Config is the root engine configuration consumed by [Builder.Build].
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Throttle      ThrottleConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	JWT           JWTConfig
	Inactivity    InactivityConfig
	Warning       WarningConfig
	DefaultRole   string
}

func defaultConfig() Config {
	return Config{
		Throttle: ThrottleConfig{
			MaxAttempts:  5,
			LoginLockout: 30 * time.Minute,
			OTPLockout:   15 * time.Minute,
			KeyPrefix:    "att",
		},
		Verification: VerificationConfig{
			CodeTTL:    15 * time.Minute,
			CodeLength: 8,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:           15 * time.Minute,
			CodeLength:        6,
			MinPasswordLength: 10,
		},
		JWT: JWTConfig{
			TTL:    24 * time.Hour,
			Issuer: "sgpauth",
		},
		Inactivity: InactivityConfig{
			Threshold:    365 * 24 * time.Hour,
			MarkerPrefix: "inactive:",
		},
		Warning: WarningConfig{
			Window:        30 * 24 * time.Hour,
			SweepInterval: 24 * time.Hour,
			SweepHour:     3,
		},
		DefaultRole: "member",
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.Throttle.MaxAttempts <= 0 {
		return errors.New("Throttle.MaxAttempts must be positive")
	}
	if c.Throttle.LoginLockout <= 0 || c.Throttle.OTPLockout <= 0 {
		return errors.New("Throttle lockout windows must be positive")
	}
	if c.Throttle.KeyPrefix == "" {
		return errors.New("Throttle.KeyPrefix must not be empty")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification.CodeTTL must be positive")
	}
	if c.Verification.CodeLength < 6 {
		return errors.New("Verification.CodeLength must be at least 6")
	}
	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("PasswordReset.CodeTTL must be positive")
	}
	if c.PasswordReset.CodeLength < 4 {
		return errors.New("PasswordReset.CodeLength must be at least 4")
	}
	if c.PasswordReset.MinPasswordLength < 8 {
		return errors.New("PasswordReset.MinPasswordLength must be at least 8")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT.Secret must be at least 32 bytes")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("JWT.TTL must be positive")
	}
	if c.Inactivity.Threshold <= 0 {
		return errors.New("Inactivity.Threshold must be positive")
	}
	if c.Inactivity.MarkerPrefix == "" {
		return errors.New("Inactivity.MarkerPrefix must not be empty")
	}
	if c.Warning.Window <= 0 || c.Warning.Window >= c.Inactivity.Threshold {
		return errors.New("Warning.Window must be positive and shorter than Inactivity.Threshold")
	}
	if c.Warning.SweepInterval <= 0 {
		return errors.New("Warning.SweepInterval must be positive")
	}
	if c.Warning.SweepHour < 0 || c.Warning.SweepHour > 23 {
		return errors.New("Warning.SweepHour must be an hour of day")
	}
	if c.DefaultRole == "" {
		return errors.New("DefaultRole must not be empty")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
