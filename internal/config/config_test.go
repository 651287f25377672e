package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
logLevel: info
databaseURL: postgres://localhost/bookworm
redisAddr: localhost:6379
cronSecret: topsecret
sessionTTL: 12h
defaultProvider: DAILY
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.DefaultProvider != "DAILY" {
		t.Fatalf("defaultProvider = %q", cfg.DefaultProvider)
	}
	ttl, err := ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		t.Fatalf("ParseSessionTTL: %v", err)
	}
	if ttl != 12*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestLoadMissingDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
port: "8080"
redisAddr: localhost:6379
cronSecret: x
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://override/db")
	t.Setenv("DAILY_WEBHOOK_SECRET", "whsec")
	path := writeConfig(t, `
port: "8080"
databaseURL: postgres://file/db
redisAddr: localhost:6379
cronSecret: x
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://override/db" {
		t.Fatalf("databaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.Providers.DailyWebhookSecret != "whsec" {
		t.Fatalf("daily webhook secret = %q", cfg.Providers.DailyWebhookSecret)
	}
}

func TestParseSessionTTLDefault(t *testing.T) {
	ttl, err := ParseSessionTTL("")
	if err != nil {
		t.Fatalf("ParseSessionTTL: %v", err)
	}
	if ttl != 24*time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}
