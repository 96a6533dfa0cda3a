package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("VERIFY_API_URL", "https://verify.example.com/v1/check")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.RateLimitPerSec != 10 {
		t.Errorf("RateLimitPerSec = %d, want 10", cfg.RateLimitPerSec)
	}
	if cfg.MaxVerifyAttempts != 3 {
		t.Errorf("MaxVerifyAttempts = %d, want 3", cfg.MaxVerifyAttempts)
	}
	if cfg.InterCallDelay() != 150*time.Millisecond {
		t.Errorf("InterCallDelay() = %s, want 150ms", cfg.InterCallDelay())
	}
	if cfg.CacheTTL() != 24*time.Hour {
		t.Errorf("CacheTTL() = %s, want 24h", cfg.CacheTTL())
	}
	if cfg.ShutdownGrace() != 30*time.Second {
		t.Errorf("ShutdownGrace() = %s, want 30s", cfg.ShutdownGrace())
	}
	if cfg.ResumeConcurrency != 4 {
		t.Errorf("ResumeConcurrency = %d, want 4", cfg.ResumeConcurrency)
	}
	if cfg.RabbitMQURL != "" {
		t.Errorf("RabbitMQURL = %q, want empty when unset", cfg.RabbitMQURL)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_PER_SEC", "25")
	t.Setenv("INTER_CALL_DELAY_MS", "50")
	t.Setenv("CACHE_TTL_HOURS", "6")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.RateLimitPerSec != 25 {
		t.Errorf("RateLimitPerSec = %d, want 25", cfg.RateLimitPerSec)
	}
	if cfg.InterCallDelay() != 50*time.Millisecond {
		t.Errorf("InterCallDelay() = %s, want 50ms", cfg.InterCallDelay())
	}
	if cfg.CacheTTL() != 6*time.Hour {
		t.Errorf("CacheTTL() = %s, want 6h", cfg.CacheTTL())
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_RequiredFields(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseDSN == "" {
		t.Error("DatabaseDSN should not be empty")
	}
	if cfg.RedisURL == "" {
		t.Error("RedisURL should not be empty")
	}
	if cfg.VerifyAPIURL == "" {
		t.Error("VerifyAPIURL should not be empty")
	}
}
