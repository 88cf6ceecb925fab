package sgpauth

import (
	"context"
	"errors"
	"strings"
)

const verifyThrottlePurpose = "verify"

// Register creates a disabled account and issues its account-verification
// code. The account cannot log in until the code is redeemed. The
// notification enqueue is the last step; a broker failure surfaces as an
// infrastructure error but the created account and token remain valid for
// a resend.
func (e *Engine) Register(ctx context.Context, email, pass string) (*UserRecord, error) {
	if e.users == nil || e.tokens == nil || e.mail == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidCredentials
	}
	if len(pass) < e.config.PasswordReset.MinPasswordLength {
		return nil, ErrPasswordPolicy
	}

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		return nil, err
	}

	user, err := e.users.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{e.config.DefaultRole},
	})
	if err != nil {
		return nil, err
	}

	if err := e.issueToken(ctx, user, PurposeVerifyAccount); err != nil {
		return nil, err
	}

	return user, nil
}

// ResendVerification re-issues the account-verification code for a not yet
// verified account. Issuing replaces any live token for the purpose, so the
// previous code stops working. Each issuance counts against the
// one-time-code throttle for the email, so the flow cannot be used to flood
// a mailbox: once the window fills, resends get a *LockedError until it
// elapses.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	if e.users == nil || e.tokens == nil || e.mail == nil || e.throttle == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	thrCtx := OTPContext(verifyThrottlePurpose)
	if err := e.throttle.Guard(ctx, thrCtx, email); err != nil {
		return err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Enabled {
		return ErrAlreadyVerified
	}

	if err := e.throttle.RecordFailure(ctx, thrCtx, email); err != nil {
		return err
	}

	return e.issueToken(ctx, user, PurposeVerifyAccount)
}

// RequestMagicLink issues a passwordless login code for an enabled, active
// account and mails it. The code is redeemed with [Engine.RedeemMagicLink].
func (e *Engine) RequestMagicLink(ctx context.Context, email string) error {
	if e.users == nil || e.tokens == nil || e.mail == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if !user.Enabled {
		return ErrAccountNotVerified
	}
	if !user.Active {
		return ErrAccountSuspended
	}

	return e.issueToken(ctx, user, PurposeMagicLink)
}

// RequestReactivation issues a reactivation code for a suspended account.
// Suspension is terminal otherwise: nothing reactivates an account except
// redeeming this code.
func (e *Engine) RequestReactivation(ctx context.Context, email string) error {
	if e.users == nil || e.tokens == nil || e.mail == nil {
		return ErrEngineNotReady
	}

	user, err := e.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return err
	}
	if user.Active {
		return errors.New("account is not suspended")
	}

	return e.issueToken(ctx, user, PurposeReactivate)
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}
