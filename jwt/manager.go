package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrTokenInvalid is an exported constant or variable used by the token manager.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the token manager.
	ErrTokenExpired = errors.New("token expired")
	// ErrSubjectMismatch is an exported constant or variable used by the token manager.
	ErrSubjectMismatch = errors.New("token subject mismatch")
)

// Config defines a public type used by sgpauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// Manager defines a public type used by sgpauth APIs.
//
// Manager instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Manager struct {
	config Config
}

// Claims carries the account identity inside a bearer token: the email as
// subject, the numeric user id, and the role labels.
type Claims struct {
	UID   int64    `json:"uid"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// NewManager describes the newmanager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks fail.
// NewManager does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("hs256 secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// Create describes the create operation and its observable behavior.
//
// Create may return an error when input validation, dependency calls, or security checks fail.
// Create does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Create(subject string, uid int64, roles []string) (string, error) {
	now := time.Now()

	claims := Claims{
		UID:   uid,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (m *Manager) Validate(tokenString, expectedSubject string) (*Claims, error) {
	claims := &Claims{}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return m.config.Secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	if expectedSubject != "" && claims.Subject != expectedSubject {
		return nil, ErrSubjectMismatch
	}

	return claims, nil
}
