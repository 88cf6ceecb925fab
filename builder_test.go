package sgpauth

import (
	"context"
	"testing"
)

func TestBuilder_BuildsWorkingEngine(t *testing.T) {
	_, rdb := newTestRedis(t)

	engine, err := New().
		WithJWTSecret([]byte("0123456789abcdef0123456789abcdef")).
		WithRedis(rdb).
		WithStore(newMemStore()).
		WithMailQueue(&captureQueue{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if _, err := engine.Register(context.Background(), "alice@sgp.test", "long-enough-pass"); err != nil {
		t.Fatalf("engine not functional after build: %v", err)
	}
}

func TestBuilder_MissingDependencies(t *testing.T) {
	_, rdb := newTestRedis(t)
	secret := []byte("0123456789abcdef0123456789abcdef")

	if _, err := New().WithJWTSecret(secret).Build(); err == nil {
		t.Fatal("expected error without redis")
	}
	if _, err := New().WithJWTSecret(secret).WithRedis(rdb).Build(); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New().WithJWTSecret(secret).WithRedis(rdb).WithStore(newMemStore()).Build(); err == nil {
		t.Fatal("expected error without mail queue")
	}
}

func TestBuilder_RejectsInvalidConfig(t *testing.T) {
	_, rdb := newTestRedis(t)

	// No JWT secret set.
	_, err := New().
		WithRedis(rdb).
		WithStore(newMemStore()).
		WithMailQueue(&captureQueue{}).
		Build()
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestBuilder_SingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)

	b := New().
		WithJWTSecret([]byte("0123456789abcdef0123456789abcdef")).
		WithRedis(rdb).
		WithStore(newMemStore()).
		WithMailQueue(&captureQueue{})

	if _, err := b.Build(); err != nil {
		t.Fatalf("first Build failed: %v", err)
	}
	if _, err := b.Build(); err == nil {
		t.Fatal("second Build should be rejected")
	}
}
