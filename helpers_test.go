package sgpauth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pepe1603/sgpauth/jwt"
	"github.com/pepe1603/sgpauth/mailq"
	"github.com/pepe1603/sgpauth/password"
	"github.com/redis/go-redis/v9"
)

// memStore is an in-memory Store used by engine tests. The sqlite-backed
// implementation has its own tests under internal/store.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*UserRecord
	byMail map[string]int64
	tokens map[string]*VerificationToken
	resets map[int64]*ResetCode

	markWarnedErr error
}

func newMemStore() *memStore {
	return &memStore{
		nextID: 1,
		users:  map[int64]*UserRecord{},
		byMail: map[string]int64{},
		tokens: map[string]*VerificationToken{},
		resets: map[int64]*ResetCode{},
	}
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byMail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *m.users[id]
	return &u, nil
}

func (m *memStore) GetUserByID(_ context.Context, id int64) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *memStore) CreateUser(_ context.Context, input CreateUserInput) (*UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byMail[input.Email]; ok {
		return nil, ErrEmailExists
	}
	u := &UserRecord{
		ID:           m.nextID,
		Email:        input.Email,
		PasswordHash: input.PasswordHash,
		Enabled:      false,
		Active:       true,
		Roles:        input.Roles,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.ID] = u
	m.byMail[u.Email] = u.ID
	m.nextID++
	out := *u
	return &out, nil
}

func (m *memStore) UpdatePasswordHash(_ context.Context, userID int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	u.Version++
	return nil
}

func (m *memStore) MarkLogin(_ context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

func (m *memStore) SetEnabled(_ context.Context, userID int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Enabled = enabled
	u.Version++
	return nil
}

func (m *memStore) Suspend(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byMail[email]
	if !ok {
		return false, nil
	}
	u := m.users[id]
	if !u.Active {
		return false, nil
	}
	u.Active = false
	u.Version++
	return true, nil
}

func (m *memStore) Reactivate(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = true
	u.Version++
	return nil
}

func (m *memStore) DueForWarning(_ context.Context, after, until, warnedBefore time.Time) ([]UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []UserRecord{}
	for _, u := range m.users {
		if !u.Enabled || !u.Active || u.LastLoginAt == nil {
			continue
		}
		if !u.LastLoginAt.After(after) || u.LastLoginAt.After(until) {
			continue
		}
		if u.LastWarningAt != nil && u.LastWarningAt.After(warnedBefore) {
			continue
		}
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) MarkWarned(_ context.Context, userID int64, at time.Time) error {
	if m.markWarnedErr != nil {
		return m.markWarnedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	t := at
	u.LastWarningAt = &t
	return nil
}

func (m *memStore) ReplaceToken(_ context.Context, userID int64, purpose TokenPurpose, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c, tok := range m.tokens {
		if tok.UserID == userID && tok.Purpose == purpose {
			delete(m.tokens, c)
		}
	}
	m.tokens[code] = &VerificationToken{
		Code:      code,
		Purpose:   purpose,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	return nil
}

func (m *memStore) GetToken(_ context.Context, code string) (*VerificationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[code]
	if !ok {
		return nil, ErrVerificationCodeInvalid
	}
	out := *tok
	return &out, nil
}

func (m *memStore) DeleteToken(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, code)
	return nil
}

func (m *memStore) ReplaceResetCode(_ context.Context, userID int64, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[userID] = &ResetCode{UserID: userID, Code: code, ExpiresAt: expiresAt}
	return nil
}

func (m *memStore) GetResetCode(_ context.Context, userID int64) (*ResetCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rc, ok := m.resets[userID]
	if !ok {
		return nil, ErrResetCodeNotRequested
	}
	out := *rc
	return &out, nil
}

func (m *memStore) DeleteResetCode(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resets, userID)
	return nil
}

// expireToken backdates a stored token so expiry paths can be exercised
// without sleeping.
func (m *memStore) expireToken(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.tokens[code]; ok {
		tok.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

func (m *memStore) expireResetCode(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rc, ok := m.resets[userID]; ok {
		rc.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// captureQueue records enqueued messages instead of talking to a broker.
type captureQueue struct {
	mu         sync.Mutex
	messages   []mailq.Message
	enqueueErr error
	failFor    string
}

func (q *captureQueue) Enqueue(_ context.Context, msg mailq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	if q.failFor != "" && msg.To == q.failFor {
		return ErrMailUnavailable
	}
	q.messages = append(q.messages, msg)
	return nil
}

func (q *captureQueue) sent() []mailq.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]mailq.Message, len(q.messages))
	copy(out, q.messages)
	return out
}

func (q *captureQueue) lastCode(t *testing.T) string {
	t.Helper()
	msgs := q.sent()
	if len(msgs) == 0 {
		t.Fatal("no mail enqueued")
	}
	code, ok := msgs[len(msgs)-1].Model["code"]
	if !ok {
		t.Fatal("last mail has no code in model")
	}
	return code
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	return cfg
}

func newTestEngine(t *testing.T, rdb *redis.Client, st Store, mail MailQueue, cfg Config) *Engine {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("password.NewArgon2 failed: %v", err)
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret: cfg.JWT.Secret,
		TTL:    cfg.JWT.TTL,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		t.Fatalf("jwt.NewManager failed: %v", err)
	}

	return &Engine{
		config:     cfg,
		redis:      rdb,
		users:      st,
		tokens:     st,
		throttle:   newAttemptThrottle(rdb, cfg.Throttle),
		marker:     newInactivityMarker(rdb, cfg.Inactivity),
		mail:       mail,
		hasher:     hasher,
		jwtManager: jm,
	}
}

// seedUser registers and verifies an account directly through the stores.
func seedUser(t *testing.T, e *Engine, st *memStore, email, pass string) *UserRecord {
	t.Helper()

	hash, err := e.hasher.Hash(pass)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user, err := st.CreateUser(context.Background(), CreateUserInput{
		Email:        email,
		PasswordHash: hash,
		Roles:        []string{"member"},
	})
	if err != nil {
		t.Fatalf("creating user: %v", err)
	}
	if err := st.SetEnabled(context.Background(), user.ID, true); err != nil {
		t.Fatalf("enabling user: %v", err)
	}
	user.Enabled = true
	return user
}
