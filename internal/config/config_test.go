package config

import (
	"os"
	"testing"
)

// unsetenv removes a variable for the test's duration. t.Setenv alone is
// not enough: a present-but-empty value is still "set" to cleanenv and
// fails integer parsing instead of falling back to the default.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoad_Defaults(t *testing.T) {
	unsetenv(t, "ENV")
	unsetenv(t, "HTTP_ADDR")
	unsetenv(t, "SESSION_TTL_HOURS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.Env != "dev" {
		t.Fatalf("env=%q", cfg.Env)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("addr=%q", cfg.HTTPAddr)
	}
	if cfg.SessionTTLHours != 336 {
		t.Fatalf("ttl=%d", cfg.SessionTTLHours)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:9090")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("AUTH_SERVICE_ROLE_KEY", "sk-test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:9090" || !cfg.TrustProxy || cfg.AuthServiceRoleKey != "sk-test" {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestLoad_RejectsNonPositiveTTL(t *testing.T) {
	t.Setenv("SESSION_TTL_HOURS", "-1")
	if _, err := Load(); err == nil {
		t.Fatal("expected error")
	}
}
