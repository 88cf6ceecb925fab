package sgpauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/pepe1603/sgpauth/mailq"
)

const resetThrottlePurpose = "reset"

// RequestPasswordReset mails a short single-use code to the account owner.
// Re-requesting replaces the previous code; at most one is live per user.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if e.users == nil || e.tokens == nil || e.mail == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := randomCode(e.config.PasswordReset.CodeLength)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(e.config.PasswordReset.CodeTTL)
	if err := e.tokens.ReplaceResetCode(ctx, user.ID, code, expiresAt); err != nil {
		return err
	}

	return e.mail.Enqueue(ctx, mailq.Message{
		To:       user.Email,
		Subject:  "Your password reset code",
		Template: mailq.TemplatePasswordReset,
		Model: map[string]string{
			"code":       code,
			"email":      user.Email,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})
}

// VerifyResetCode checks a reset code without consuming it. Failures count
// against the one-time-code throttle for the email; five wrong codes lock
// the flow for the OTP window.
func (e *Engine) VerifyResetCode(ctx context.Context, email, code string) error {
	if e.users == nil || e.tokens == nil || e.throttle == nil {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	thrCtx := OTPContext(resetThrottlePurpose)

	if err := e.throttle.Guard(ctx, thrCtx, email); err != nil {
		return err
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	stored, err := e.tokens.GetResetCode(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrResetCodeNotRequested) {
			return ErrResetCodeNotRequested
		}
		return err
	}

	if time.Now().After(stored.ExpiresAt) {
		if err := e.tokens.DeleteResetCode(ctx, user.ID); err != nil {
			return err
		}
		return ErrVerificationCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(stored.Code), []byte(code)) != 1 {
		if err := e.throttle.RecordFailure(ctx, thrCtx, email); err != nil {
			return err
		}
		return ErrVerificationCodeInvalid
	}

	return nil
}

// ResetPassword re-validates the code, installs the new credential hash,
// and consumes the code so it cannot be replayed. The confirmation mail is
// enqueued last and never blocks the password change.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := e.VerifyResetCode(ctx, email, code); err != nil {
		return err
	}

	if len(newPassword) < e.config.PasswordReset.MinPasswordLength {
		return ErrPasswordPolicy
	}

	email = normalizeEmail(email)
	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := e.tokens.DeleteResetCode(ctx, user.ID); err != nil {
		return err
	}
	if err := e.throttle.RecordSuccess(ctx, OTPContext(resetThrottlePurpose), email); err != nil {
		return err
	}

	return e.mail.Enqueue(ctx, mailq.Message{
		To:       user.Email,
		Subject:  "Your password was changed",
		Template: mailq.TemplatePasswordChanged,
		Model: map[string]string{
			"email": user.Email,
		},
	})
}
