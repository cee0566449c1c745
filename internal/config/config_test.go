package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CREW_MONITOR_PORT", "")
	t.Setenv("TOKEN_TTL_HOURS", "")
	t.Setenv("REALTIME_POLL_SECONDS", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	t.Setenv("MIGRATE_ON_START", "")
	t.Setenv("TRUST_PROXY_HEADERS", "")

	cfg := Load()
	if cfg.Port != "8090" {
		t.Fatalf("expected port 8090, got %s", cfg.Port)
	}
	if cfg.TokenTTL != 8*time.Hour {
		t.Fatalf("expected token ttl 8h, got %s", cfg.TokenTTL)
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected poll interval 1s, got %s", cfg.PollInterval)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.MigrateOnStart {
		t.Fatalf("expected migrate on start disabled")
	}
	if cfg.TrustProxyHeaders {
		t.Fatalf("expected proxy headers untrusted by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CREW_MONITOR_PORT", "9000")
	t.Setenv("REALTIME_BATCH_SIZE", "25")
	t.Setenv("REALTIME_RETENTION_HOURS", "2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.example.com, ,https://crew.example.com")
	t.Setenv("MIGRATE_ON_START", "true")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Fatalf("expected port 9000, got %s", cfg.Port)
	}
	if cfg.BatchSize != 25 {
		t.Fatalf("expected batch size 25, got %d", cfg.BatchSize)
	}
	if cfg.OutboxRetention != 2*time.Hour {
		t.Fatalf("expected retention 2h, got %s", cfg.OutboxRetention)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://crew.example.com" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if !cfg.MigrateOnStart {
		t.Fatalf("expected migrate on start enabled")
	}
}

func TestReadHelpersFallBack(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{name: "empty", value: "", want: 7},
		{name: "invalid", value: "seven", want: 7},
		{name: "valid", value: "3", want: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CREW_TEST_INT", tt.value)
			if got := readInt("CREW_TEST_INT", 7); got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}

	t.Setenv("CREW_TEST_SECONDS", "-1")
	if got := readDurationSeconds("CREW_TEST_SECONDS", 5); got != 0 {
		t.Fatalf("expected zero duration for negative input, got %s", got)
	}
	t.Setenv("CREW_TEST_BOOL", "nope")
	if got := readBool("CREW_TEST_BOOL", true); !got {
		t.Fatalf("expected fallback true for invalid bool")
	}
}
