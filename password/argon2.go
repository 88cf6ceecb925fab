package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"
)

var (
	// ErrMalformedHash is an exported constant or variable used by the password hasher.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config defines a public type used by sgpauth APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig describes the defaultconfig operation and its observable behavior.
//
// DefaultConfig may return an error when input validation, dependency calls, or security checks fail.
// DefaultConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        2,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Argon2 defines a public type used by sgpauth APIs.
//
// Argon2 instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Argon2 struct {
	config Config
}

// NewArgon2 describes the newargon2 operation and its observable behavior.
//
// NewArgon2 may return an error when input validation, dependency calls, or security checks fail.
// NewArgon2 does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.Memory < minMemoryKB {
		return nil, errors.New("argon2 memory below minimum")
	}
	if cfg.Time < minTimeCost {
		return nil, errors.New("argon2 time cost below minimum")
	}
	if cfg.Parallelism < minParallelism {
		return nil, errors.New("argon2 parallelism below minimum")
	}
	if cfg.SaltLength < minSaltLength {
		return nil, errors.New("argon2 salt length below minimum")
	}
	if cfg.KeyLength < minKeyLength {
		return nil, errors.New("argon2 key length below minimum")
	}
	return &Argon2{config: cfg}, nil
}

// Hash describes the hash operation and its observable behavior.
//
// Hash may return an error when input validation, dependency calls, or security checks fail.
// Hash does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (a *Argon2) Hash(pass string) (string, error) {
	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(pass),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		a.config.Memory,
		a.config.Time,
		a.config.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify describes the verify operation and its observable behavior.
//
// Verify may return an error when input validation, dependency calls, or security checks fail.
// Verify does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (a *Argon2) Verify(pass, encoded string) (bool, error) {
	memory, timeCost, parallelism, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey(
		[]byte(pass),
		salt,
		timeCost,
		memory,
		parallelism,
		uint32(len(key)),
	)

	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func decode(encoded string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		err = ErrMalformedHash
		return
	}

	var version int
	if _, serr := fmt.Sscanf(parts[2], "v=%d", &version); serr != nil || version != argon2.Version {
		err = ErrMalformedHash
		return
	}

	var p uint32
	if _, serr := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &p); serr != nil || p == 0 || p > 255 {
		err = ErrMalformedHash
		return
	}
	parallelism = uint8(p)

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		err = ErrMalformedHash
		return
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		err = ErrMalformedHash
		return
	}
	if len(salt) == 0 || len(key) == 0 {
		err = ErrMalformedHash
	}
	return
}
