package sgpauth

import (
	"context"
	"time"
)

// TokenPurpose tags a verification token with the flow it belongs to.
// At most one live token exists per (user, purpose).
type TokenPurpose string

const (
	// PurposeVerifyAccount is an exported constant or variable used by the account engine.
	PurposeVerifyAccount TokenPurpose = "verify"
	// PurposeMagicLink is an exported constant or variable used by the account engine.
	PurposeMagicLink TokenPurpose = "magic-link"
	// PurposeReactivate is an exported constant or variable used by the account engine.
	PurposeReactivate TokenPurpose = "reactivate"
)

// UserRecord is the full account record returned by [UserStore].
// Enabled is false until the account-verification token is redeemed;
// Active is false once the account has been suspended, either by an
// administrator or by the inactivity monitor. Version advances on every
// lifecycle mutation so concurrent admin action and inactivity suspension
// reconcile deterministically.
type UserRecord struct {
	ID            int64
	Email         string
	PasswordHash  string
	Enabled       bool
	Active        bool
	Roles         []string
	LastLoginAt   *time.Time
	LastWarningAt *time.Time
	CreatedAt     time.Time
	Version       uint32
}

// CreateUserInput carries the fields needed to persist a new, not yet
// verified account.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Roles        []string
}

// VerificationToken is a single-use, time-limited code bound to one user
// and one purpose.
type VerificationToken struct {
	Code      string
	Purpose   TokenPurpose
	UserID    int64
	ExpiresAt time.Time
}

// ResetCode is the short code of the password-reset flow. One-to-one with
// a user; replaced wholesale on re-request.
type ResetCode struct {
	UserID    int64
	Code      string
	ExpiresAt time.Time
}

// UserStore is the relational contract for account rows. Implementations
// must return [ErrUserNotFound] for absent rows and [ErrEmailExists] for
// unique-email violations; any other failure wraps [ErrStoreUnavailable].
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*UserRecord, error)
	GetUserByID(ctx context.Context, id int64) (*UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (*UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
	MarkLogin(ctx context.Context, userID int64, at time.Time) error
	SetEnabled(ctx context.Context, userID int64, enabled bool) error

	// Suspend sets active=false for the account owning email and reports
	// whether a row actually transitioned. Re-applying to an already
	// suspended or unknown account is a no-op, which keeps the expiration
	// handler idempotent under replayed events.
	Suspend(ctx context.Context, email string) (bool, error)
	Reactivate(ctx context.Context, userID int64) error

	// DueForWarning returns enabled, active accounts whose last login falls
	// in (after, until] and that have not been warned since warnedBefore.
	DueForWarning(ctx context.Context, after, until, warnedBefore time.Time) ([]UserRecord, error)
	MarkWarned(ctx context.Context, userID int64, at time.Time) error
}

// TokenStore is the relational contract for verification tokens and
// password-reset codes. Replace operations commit the delete before the
// insert so a rapid second request cannot trip the uniqueness constraint.
type TokenStore interface {
	ReplaceToken(ctx context.Context, userID int64, purpose TokenPurpose, code string, expiresAt time.Time) error
	GetToken(ctx context.Context, code string) (*VerificationToken, error)
	DeleteToken(ctx context.Context, code string) error

	ReplaceResetCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error
	GetResetCode(ctx context.Context, userID int64) (*ResetCode, error)
	DeleteResetCode(ctx context.Context, userID int64) error
}

// Store is the combined persistence contract the engine is built against.
type Store interface {
	UserStore
	TokenStore
}
