package sgpauth

import (
	"errors"
	"log/slog"

	"github.com/pepe1603/sgpauth/jwt"
	"github.com/pepe1603/sgpauth/password"
	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by sgpauth APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  *redis.Client
	store  Store
	mail   MailQueue
	logger *slog.Logger

	built bool
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig may return an error when input validation, dependency calls, or security checks fail.
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithJWTSecret sets the bearer-token signing secret without replacing the
// rest of the configuration.
func (b *Builder) WithJWTSecret(secret []byte) *Builder {
	b.config.JWT.Secret = cloneBytes(secret)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis may return an error when input validation, dependency calls, or security checks fail.
// WithRedis does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore describes the withstore operation and its observable behavior.
//
// WithStore may return an error when input validation, dependency calls, or security checks fail.
// WithStore does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithStore(s Store) *Builder {
	b.store = s
	return b
}

// WithMailQueue describes the withmailqueue operation and its observable behavior.
//
// WithMailQueue may return an error when input validation, dependency calls, or security checks fail.
// WithMailQueue does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailQueue(q MailQueue) *Builder {
	b.mail = q
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger may return an error when input validation, dependency calls, or security checks fail.
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
// Build does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}
	if b.mail == nil {
		return nil, errors.New("mail queue required")
	}

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret: cloneBytes(cfg.JWT.Secret),
		TTL:    cfg.JWT.TTL,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cfg,
		logger:     b.logger,
		redis:      b.redis,
		users:      b.store,
		tokens:     b.store,
		throttle:   newAttemptThrottle(b.redis, cfg.Throttle),
		marker:     newInactivityMarker(b.redis, cfg.Inactivity),
		mail:       b.mail,
		hasher:     hasher,
		jwtManager: jm,
	}

	b.built = true

	return engine, nil
}
