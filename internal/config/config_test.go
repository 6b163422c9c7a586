package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "SUMMARY_CACHE_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES", "RESUME_RETENTION_DAYS", "RESUME_PURGE_SCHEDULE", "LOG_MODE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.SummaryCacheTTL != time.Minute {
		t.Fatalf("expected 1m summary ttl, got %s", cfg.SummaryCacheTTL)
	}
	if cfg.AccessTokenTTL() != 8*time.Hour {
		t.Fatalf("expected 8h token ttl, got %s", cfg.AccessTokenTTL())
	}
	if cfg.ResumeRetentionDays != 0 || cfg.ResumePurgeSchedule != defaultPurgeSchedule {
		t.Fatalf("unexpected purge defaults: %d %q", cfg.ResumeRetentionDays, cfg.ResumePurgeSchedule)
	}
	if cfg.LogMode != "dev" {
		t.Fatalf("expected dev log mode, got %q", cfg.LogMode)
	}
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("SUMMARY_CACHE_TTL_SECONDS", "-5")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")
	t.Setenv("RESUME_RETENTION_DAYS", "-1")

	cfg := Load()
	if cfg.SummaryCacheTTL != time.Minute || cfg.AccessTokenTTLMinutes != defaultTokenTTLMinutes || cfg.ResumeRetentionDays != 0 {
		t.Fatalf("expected fallbacks, got %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RESUME_RETENTION_DAYS", "90")
	t.Setenv("SUMMARY_CACHE_TTL_SECONDS", "30")

	cfg := Load()
	if cfg.Address() != ":9090" || cfg.ResumeRetentionDays != 90 || cfg.SummaryCacheTTL != 30*time.Second {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}
