package config

import (
	"testing"
	"time"

	"github.com/mcontarini/converse/internal/session"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionRetentionTTL != 30*24*time.Hour {
		t.Fatalf("SessionRetentionTTL = %v, want 720h", cfg.SessionRetentionTTL)
	}
	if cfg.SessionHistoryLimit != 20 {
		t.Fatalf("SessionHistoryLimit = %d, want 20", cfg.SessionHistoryLimit)
	}
	if cfg.IdleThreshold != 60*time.Second {
		t.Fatalf("IdleThreshold = %v, want 60s", cfg.IdleThreshold)
	}
	if cfg.StateTimeouts[session.StateAddingEventName] != 5*time.Minute {
		t.Fatalf("adding_event_name timeout = %v, want 5m", cfg.StateTimeouts[session.StateAddingEventName])
	}
	if cfg.StateTimeouts[session.StateIdle] != 30*time.Minute {
		t.Fatalf("idle timeout = %v, want 30m", cfg.StateTimeouts[session.StateIdle])
	}
}

func TestLoadStateTimeoutOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_STATE_TIMEOUTS", "adding_event_name=3m, idle=1h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StateTimeouts[session.StateAddingEventName] != 3*time.Minute {
		t.Fatalf("override not applied: %v", cfg.StateTimeouts[session.StateAddingEventName])
	}
	if cfg.StateTimeouts[session.StateIdle] != time.Hour {
		t.Fatalf("override not applied: %v", cfg.StateTimeouts[session.StateIdle])
	}
	// Untouched states keep their defaults.
	if cfg.StateTimeouts[session.StateSettings] != 15*time.Minute {
		t.Fatalf("settings timeout = %v, want 15m", cfg.StateTimeouts[session.StateSettings])
	}
}

func TestLoadRejectsMalformedOverride(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_STATE_TIMEOUTS", "adding_event_name")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject an override without a duration")
	}
}

func TestLoadRejectsTimeoutLongerThanRetention(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_RETENTION_TTL", "2h")
	t.Setenv("SESSION_DEFAULT_TIMEOUT", "3h")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject a soft timeout at or above the hard TTL")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("SESSION_RETENTION_TTL", "a-month")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject an unparsable duration")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_LOG_MODE",
		"REDIS_ADDR",
		"DATABASE_URL",
		"KV_JANITOR_INTERVAL",
		"SESSION_RETENTION_TTL",
		"SESSION_HISTORY_LIMIT",
		"SESSION_DEFAULT_TIMEOUT",
		"SESSION_STATE_TIMEOUTS",
		"PROFICIENCY_IDLE_THRESHOLD",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
