// Package store is the relational half of the account engine: user rows,
// verification tokens, and password-reset codes over sqlite. The schema is
// bootstrapped by the constructor so a fresh database file is usable
// immediately.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pepe1603/sgpauth"
)

// Store implements sgpauth.Store over a single sqlx handle.
type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path and ensures the schema
// exists.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", "file:"+path+"?_loc=UTC&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return s, nil
}

// Close describes the close operation and its observable behavior.
//
// Close may return an error when input validation, dependency calls, or security checks fail.
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`create table if not exists users(
		id                   integer primary key autoincrement,
		email                text not null unique,
		password_hash        text not null,
		enabled              integer not null default 0,
		active               integer not null default 1,
		roles                text not null default '',
		last_login_at        datetime null,
		last_warning_sent_at datetime null,
		created_at           datetime not null,
		version              integer not null default 0
	)`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = s.db.Exec(`create table if not exists verification_tokens(
		code       text not null primary key,
		purpose    text not null,
		user_id    integer not null references users(id),
		expires_at datetime not null,
		unique(user_id, purpose)
	)`)
	if err != nil {
		return fmt.Errorf("creating verification_tokens table: %w", err)
	}

	_, err = s.db.Exec(`create table if not exists password_reset_codes(
		user_id    integer not null primary key references users(id),
		code       text not null,
		expires_at datetime not null
	)`)
	if err != nil {
		return fmt.Errorf("creating password_reset_codes table: %w", err)
	}

	return nil
}

type userRow struct {
	ID            int64        `db:"id"`
	Email         string       `db:"email"`
	PasswordHash  string       `db:"password_hash"`
	Enabled       bool         `db:"enabled"`
	Active        bool         `db:"active"`
	Roles         string       `db:"roles"`
	LastLoginAt   sql.NullTime `db:"last_login_at"`
	LastWarningAt sql.NullTime `db:"last_warning_sent_at"`
	CreatedAt     time.Time    `db:"created_at"`
	Version       uint32       `db:"version"`
}

func (r *userRow) toRecord() *sgpauth.UserRecord {
	rec := &sgpauth.UserRecord{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Enabled:      r.Enabled,
		Active:       r.Active,
		CreatedAt:    r.CreatedAt,
		Version:      r.Version,
	}
	if r.Roles != "" {
		rec.Roles = strings.Split(r.Roles, ",")
	}
	if r.LastLoginAt.Valid {
		t := r.LastLoginAt.Time
		rec.LastLoginAt = &t
	}
	if r.LastWarningAt.Valid {
		t := r.LastWarningAt.Time
		rec.LastWarningAt = &t
	}
	return rec
}

// GetUserByEmail describes the getuserbyemail operation and its observable behavior.
//
// GetUserByEmail may return an error when input validation, dependency calls, or security checks fail.
// GetUserByEmail does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*sgpauth.UserRecord, error) {
	row := userRow{}
	err := s.db.GetContext(ctx, &row, `select * from users where email = ?`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sgpauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	return row.toRecord(), nil
}

// GetUserByID describes the getuserbyid operation and its observable behavior.
//
// GetUserByID may return an error when input validation, dependency calls, or security checks fail.
// GetUserByID does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*sgpauth.UserRecord, error) {
	row := userRow{}
	err := s.db.GetContext(ctx, &row, `select * from users where id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sgpauth.ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	return row.toRecord(), nil
}

// CreateUser describes the createuser operation and its observable behavior.
//
// CreateUser may return an error when input validation, dependency calls, or security checks fail.
// CreateUser does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) CreateUser(ctx context.Context, input sgpauth.CreateUserInput) (*sgpauth.UserRecord, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`insert into users(email, password_hash, enabled, active, roles, created_at, version)
		 values (?, ?, 0, 1, ?, ?, 0)`,
		input.Email, input.PasswordHash, strings.Join(input.Roles, ","), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, sgpauth.ErrEmailExists
		}
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	return &sgpauth.UserRecord{
		ID:           id,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Enabled:      false,
		Active:       true,
		Roles:        input.Roles,
		CreatedAt:    now,
	}, nil
}

// UpdatePasswordHash describes the updatepasswordhash operation and its observable behavior.
//
// UpdatePasswordHash may return an error when input validation, dependency calls, or security checks fail.
// UpdatePasswordHash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	return s.execOnUser(ctx,
		`update users set password_hash = ?, version = version + 1 where id = ?`,
		hash, userID)
}

// MarkLogin describes the marklogin operation and its observable behavior.
//
// MarkLogin may return an error when input validation, dependency calls, or security checks fail.
// MarkLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) MarkLogin(ctx context.Context, userID int64, at time.Time) error {
	return s.execOnUser(ctx,
		`update users set last_login_at = ? where id = ?`,
		at.UTC(), userID)
}

// SetEnabled describes the setenabled operation and its observable behavior.
//
// SetEnabled may return an error when input validation, dependency calls, or security checks fail.
// SetEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) SetEnabled(ctx context.Context, userID int64, enabled bool) error {
	return s.execOnUser(ctx,
		`update users set enabled = ?, version = version + 1 where id = ?`,
		enabled, userID)
}

// Suspend flips active to false for the account owning email. The WHERE
// clause only matches still-active rows, so replayed expiration events and
// admin races resolve to a no-op instead of a double suspension.
func (s *Store) Suspend(ctx context.Context, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update users set active = 0, version = version + 1 where email = ? and active = 1`,
		email)
	if err != nil {
		return false, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// Reactivate describes the reactivate operation and its observable behavior.
//
// Reactivate may return an error when input validation, dependency calls, or security checks fail.
// Reactivate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) Reactivate(ctx context.Context, userID int64) error {
	return s.execOnUser(ctx,
		`update users set active = 1, version = version + 1 where id = ?`,
		userID)
}

// DueForWarning describes the dueforwarning operation and its observable behavior.
//
// DueForWarning may return an error when input validation, dependency calls, or security checks fail.
// DueForWarning does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) DueForWarning(ctx context.Context, after, until, warnedBefore time.Time) ([]sgpauth.UserRecord, error) {
	rows := []userRow{}
	err := s.db.SelectContext(ctx, &rows,
		`select * from users
		 where enabled = 1 and active = 1
		   and last_login_at is not null
		   and last_login_at > ? and last_login_at <= ?
		   and (last_warning_sent_at is null or last_warning_sent_at <= ?)
		 order by last_login_at`,
		after.UTC(), until.UTC(), warnedBefore.UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}

	out := make([]sgpauth.UserRecord, 0, len(rows))
	for i := range rows {
		out = append(out, *rows[i].toRecord())
	}
	return out, nil
}

// MarkWarned describes the markwarned operation and its observable behavior.
//
// MarkWarned may return an error when input validation, dependency calls, or security checks fail.
// MarkWarned does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (s *Store) MarkWarned(ctx context.Context, userID int64, at time.Time) error {
	return s.execOnUser(ctx,
		`update users set last_warning_sent_at = ? where id = ?`,
		at.UTC(), userID)
}

func (s *Store) execOnUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", sgpauth.ErrStoreUnavailable, err)
	}
	if n == 0 {
		return sgpauth.ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}
