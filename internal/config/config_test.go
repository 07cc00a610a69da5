package config

import (
	"testing"
	"time"
)

type mapEnv map[string]string

func (m mapEnv) Getenv(key string) string { return m[key] }

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "x"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Port != 5000 {
		t.Fatalf("expected default port 5000, got %d", cfg.Port)
	}
	if cfg.GinMode != "release" {
		t.Fatalf("expected default gin mode release, got %q", cfg.GinMode)
	}
	if cfg.TokenExpiry != time.Hour {
		t.Fatalf("expected default token expiry 1h, got %v", cfg.TokenExpiry)
	}
}

func TestLoadConfigFromEnv_MissingSecret(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{})
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfigFromEnv_TokenExpiryOverride(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "x", "TOKEN_EXPIRY_SECONDS": "120"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.TokenExpiry != 2*time.Minute {
		t.Fatalf("expected 2m, got %v", cfg.TokenExpiry)
	}
}

func TestLoadConfigFromEnv_InvalidPort(t *testing.T) {
	_, err := LoadConfigFromEnv(mapEnv{"JWT_SECRET": "x", "PORT": "-1"})
	if err == nil {
		t.Fatalf("expected error")
	}
}
