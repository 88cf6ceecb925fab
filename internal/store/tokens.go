package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pepe1603/sgpauth"
)

type tokenRow struct {
	Code      string    `db:"code"`
	Purpose   string    `db:"purpose"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type resetRow struct {
	UserID    int64     `db:"user_id"`
	Code      string    `db:"code"`
	ExpiresAt time.Time `db:"expires_at"`
}

// ReplaceToken removes any live token for (user, purpose) and inserts the
// new one. The delete is committed before the insert runs so a concurrent
// re-request cannot race the unique (user_id, purpose) constraint.
func (s *Store) ReplaceToken(ctx context.Context, userID int64, purpose sgpauth.TokenPurpose, code string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`delete from verification_tokens where user_id = ? and purpose = ?`,
		userID, string(purpose)); err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`insert into verification_tokens(code, purpose, user_id, expires_at) values (?, ?, ?, ?)`,
		code, string(purpose), userID, expiresAt.UTC()); err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	return nil
}

// GetToken describes the gettoken operation and its observable behavior.
//
// GetToken may return an error when input validation, dependency calls, or security checks fail.
// GetToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetToken(ctx context.Context, code string) (*sgpauth.VerificationToken, error) {
	row := tokenRow{}
	err := s.db.GetContext(ctx, &row, `select * from verification_tokens where code = ?`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sgpauth.ErrVerificationCodeInvalid
		}
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	return &sgpauth.VerificationToken{
		Code:      row.Code,
		Purpose:   sgpauth.TokenPurpose(row.Purpose),
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// DeleteToken describes the deletetoken operation and its observable behavior.
//
// DeleteToken may return an error when input validation, dependency calls, or security checks fail.
// DeleteToken does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) DeleteToken(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx,
		`delete from verification_tokens where code = ?`, code); err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	return nil
}

// ReplaceResetCode describes the replaceresetcode operation and its observable behavior.
//
// ReplaceResetCode may return an error when input validation, dependency calls, or security checks fail.
// ReplaceResetCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) ReplaceResetCode(ctx context.Context, userID int64, code string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`delete from password_reset_codes where user_id = ?`, userID); err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`insert into password_reset_codes(user_id, code, expires_at) values (?, ?, ?)`,
		userID, code, expiresAt.UTC()); err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	return nil
}

// GetResetCode describes the getresetcode operation and its observable behavior.
//
// GetResetCode may return an error when input validation, dependency calls, or security checks fail.
// GetResetCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetResetCode(ctx context.Context, userID int64) (*sgpauth.ResetCode, error) {
	row := resetRow{}
	err := s.db.GetContext(ctx, &row, `select * from password_reset_codes where user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sgpauth.ErrResetCodeNotRequested
		}
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	return &sgpauth.ResetCode{
		UserID:    row.UserID,
		Code:      row.Code,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// DeleteResetCode describes the deleteresetcode operation and its observable behavior.
//
// DeleteResetCode may return an error when input validation, dependency calls, or security checks fail.
// DeleteResetCode does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) DeleteResetCode(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`delete from password_reset_codes where user_id = ?`, userID); err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	return nil
}
