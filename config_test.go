package sgpauth

import (
	"strings"
	"testing"
	"time"
)

func TestConfigValidate_DefaultsWithSecret(t *testing.T) {
	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing secret", func(c *Config) { c.JWT.Secret = nil }, "JWT.Secret"},
		{"short secret", func(c *Config) { c.JWT.Secret = []byte("short") }, "JWT.Secret"},
		{"zero attempts", func(c *Config) { c.Throttle.MaxAttempts = 0 }, "Throttle.MaxAttempts"},
		{"zero login lockout", func(c *Config) { c.Throttle.LoginLockout = 0 }, "Throttle lockout"},
		{"tiny code", func(c *Config) { c.Verification.CodeLength = 3 }, "Verification.CodeLength"},
		{"weak password floor", func(c *Config) { c.PasswordReset.MinPasswordLength = 4 }, "MinPasswordLength"},
		{"zero threshold", func(c *Config) { c.Inactivity.Threshold = 0 }, "Inactivity.Threshold"},
		{"empty marker prefix", func(c *Config) { c.Inactivity.MarkerPrefix = "" }, "MarkerPrefix"},
		{"sweep hour out of range", func(c *Config) { c.Warning.SweepHour = 24 }, "Warning.SweepHour"},
		{"window exceeds threshold", func(c *Config) {
			c.Inactivity.Threshold = time.Hour
			c.Warning.Window = 2 * time.Hour
		}, "Warning.Window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCloneConfig_IsolatesSecret(t *testing.T) {
	cfg := testConfig()
	clone := cloneConfig(cfg)

	clone.JWT.Secret[0] = 'X'
	if cfg.JWT.Secret[0] == 'X' {
		t.Fatal("clone must not share the secret slice")
	}
}
