package sgpauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/pepe1603/sgpauth/mailq"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// issueToken replaces any live token for (user, purpose), persists a fresh
// code with the configured TTL, and enqueues the notification carrying it.
// The store commits the delete before the insert, so two rapid requests for
// the same user cannot collide on the unique (user, purpose) constraint.
func (e *Engine) issueToken(ctx context.Context, user *UserRecord, purpose TokenPurpose) error {
	code, err := randomCode(e.config.Verification.CodeLength)
	if err != nil {
		return err
	}

	expiresAt := time.Now().UTC().Add(e.config.Verification.CodeTTL)
	if err := e.tokens.ReplaceToken(ctx, user.ID, purpose, code, expiresAt); err != nil {
		return err
	}

	subject, template := purposeMail(purpose)
	return e.mail.Enqueue(ctx, mailq.Message{
		To:       user.Email,
		Subject:  subject,
		Template: template,
		Model: map[string]string{
			"code":       code,
			"email":      user.Email,
			"expires_at": expiresAt.Format(time.RFC3339),
		},
	})
}

// redeemToken looks up a code, enforces purpose and expiry, and consumes it.
// An expired token is deleted as a side effect of the rejection, so expiry
// detection is also the cleanup path.
func (e *Engine) redeemToken(ctx context.Context, code string, purpose TokenPurpose) (*UserRecord, error) {
	if code == "" {
		return nil, ErrVerificationCodeInvalid
	}

	token, err := e.tokens.GetToken(ctx, code)
	if err != nil {
		if errors.Is(err, ErrVerificationCodeInvalid) {
			return nil, ErrVerificationCodeInvalid
		}
		return nil, err
	}
	if token.Purpose != purpose {
		return nil, ErrVerificationCodeInvalid
	}
	if time.Now().After(token.ExpiresAt) {
		if err := e.tokens.DeleteToken(ctx, code); err != nil {
			return nil, err
		}
		return nil, ErrVerificationCodeExpired
	}

	return e.users.GetUserByID(ctx, token.UserID)
}

// ConfirmVerification redeems an account-verification code and flips the
// account to enabled. Redeeming against an already enabled account is an
// error, not a no-op, so duplicate submissions surface to the caller.
func (e *Engine) ConfirmVerification(ctx context.Context, code string) (*UserRecord, error) {
	if e.users == nil || e.tokens == nil || e.throttle == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.redeemToken(ctx, code, PurposeVerifyAccount)
	if err != nil {
		return nil, err
	}
	if user.Enabled {
		return nil, ErrAlreadyVerified
	}

	if err := e.users.SetEnabled(ctx, user.ID, true); err != nil {
		return nil, err
	}
	if err := e.tokens.DeleteToken(ctx, code); err != nil {
		return nil, err
	}
	if err := e.throttle.RecordSuccess(ctx, OTPContext(verifyThrottlePurpose), user.Email); err != nil {
		return nil, err
	}

	user.Enabled = true
	return user, nil
}

// RedeemMagicLink redeems a passwordless login code and returns a bearer
// token. The success path behaves like a password login: the throttle
// counter clears, the inactivity marker refreshes, and last_login_at is
// recorded.
func (e *Engine) RedeemMagicLink(ctx context.Context, code string) (string, *UserRecord, error) {
	if e.users == nil || e.tokens == nil || e.jwtManager == nil {
		return "", nil, ErrEngineNotReady
	}

	user, err := e.redeemToken(ctx, code, PurposeMagicLink)
	if err != nil {
		return "", nil, err
	}
	if !user.Enabled {
		return "", nil, ErrAccountNotVerified
	}
	if !user.Active {
		return "", nil, ErrAccountSuspended
	}

	if err := e.tokens.DeleteToken(ctx, code); err != nil {
		return "", nil, err
	}
	if err := e.throttle.RecordSuccess(ctx, ThrottleLogin, user.Email); err != nil {
		return "", nil, err
	}
	if err := e.marker.Refresh(ctx, user.Email); err != nil {
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

// Reactivate redeems a reactivation code for a suspended account, restores
// active=true, and refreshes the inactivity marker so the account does not
// immediately re-suspend.
func (e *Engine) Reactivate(ctx context.Context, code string) (*UserRecord, error) {
	if e.users == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.redeemToken(ctx, code, PurposeReactivate)
	if err != nil {
		return nil, err
	}

	if err := e.users.Reactivate(ctx, user.ID); err != nil {
		return nil, err
	}
	if err := e.tokens.DeleteToken(ctx, code); err != nil {
		return nil, err
	}
	if err := e.marker.Refresh(ctx, user.Email); err != nil {
		return nil, err
	}

	user.Active = true
	return user, nil
}

func purposeMail(purpose TokenPurpose) (subject, template string) {
	switch purpose {
	case PurposeMagicLink:
		return "Your login code", mailq.TemplateMagicLink
	case PurposeReactivate:
		return "Reactivate your account", mailq.TemplateReactivation
	default:
		return "Verify your account", mailq.TemplateVerification
	}
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		out[i] = codeAlphabet[n.Int64()]
	}
	return string(out), nil
}
