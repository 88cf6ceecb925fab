package password

import (
	"errors"
	"strings"
	"testing"
)

func newTestHasher(t *testing.T) *Argon2 {
	t.Helper()
	h, err := NewArgon2(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func TestArgon2_RoundTrip(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("correct password rejected")
	}

	ok, err = h.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if ok {
		t.Fatal("wrong password accepted")
	}
}

func TestArgon2_HashesAreSalted(t *testing.T) {
	h := newTestHasher(t)

	a, err := h.Hash("same password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash("same password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ")
	}
}

func TestArgon2_VerifyAcrossParameterChange(t *testing.T) {
	// A hash produced under old parameters keeps verifying after the
	// configured cost is raised, because parameters travel in the encoding.
	old := newTestHasher(t)
	encoded, err := old.Hash("secret password")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	upgraded, err := NewArgon2(DefaultConfig())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	ok, err := upgraded.Verify("secret password", encoded)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("hash with embedded parameters should still verify")
	}
}

func TestArgon2_MalformedHash(t *testing.T) {
	h := newTestHasher(t)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$a2V5a2V5a2V5a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5",
		"$argon2id$v=19$m=8192,t=1,p=0$c2FsdHNhbHRzYWx0c2FsdA$a2V5a2V5a2V5a2V5",
	} {
		if _, err := h.Verify("whatever", encoded); !errors.Is(err, ErrMalformedHash) {
			t.Errorf("encoded %q: expected ErrMalformedHash, got %v", encoded, err)
		}
	}
}

func TestNewArgon2_RejectsWeakParameters(t *testing.T) {
	weak := []Config{
		{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 0, Parallelism: 1, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 0, SaltLength: 16, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16},
		{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 8},
	}
	for i, cfg := range weak {
		if _, err := NewArgon2(cfg); err == nil {
			t.Errorf("config %d: expected error", i)
		}
	}
}
