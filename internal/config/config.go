package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcontarini/converse/internal/session"
)

// Config contains all runtime settings for the session layer service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogMode          string

	RedisAddr         string
	DatabaseURL       string
	KVJanitorInterval time.Duration

	SessionRetentionTTL   time.Duration
	SessionHistoryLimit   int
	SessionDefaultTimeout time.Duration
	StateTimeouts         map[session.State]time.Duration

	IdleThreshold time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:              envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:      envOrDefault("APP_METRICS_NAMESPACE", "converse"),
		LogMode:               envOrDefault("APP_LOG_MODE", "dev"),
		RedisAddr:             envTrimmed("REDIS_ADDR"),
		DatabaseURL:           envTrimmed("DATABASE_URL"),
		ShutdownTimeout:       15 * time.Second,
		KVJanitorInterval:     time.Hour,
		SessionRetentionTTL:   session.RetentionTTL,
		SessionHistoryLimit:   session.HistoryLimit,
		SessionDefaultTimeout: session.DefaultTimeout,
		StateTimeouts:         session.DefaultStateTimeouts(),
		IdleThreshold:         60 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.KVJanitorInterval, err = durationFromEnv("KV_JANITOR_INTERVAL", cfg.KVJanitorInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionRetentionTTL, err = durationFromEnv("SESSION_RETENTION_TTL", cfg.SessionRetentionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionHistoryLimit, err = intFromEnv("SESSION_HISTORY_LIMIT", cfg.SessionHistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionDefaultTimeout, err = durationFromEnv("SESSION_DEFAULT_TIMEOUT", cfg.SessionDefaultTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.IdleThreshold, err = durationFromEnv("PROFICIENCY_IDLE_THRESHOLD", cfg.IdleThreshold)
	if err != nil {
		return Config{}, err
	}
	if err := applyStateTimeoutOverrides(cfg.StateTimeouts, envTrimmed("SESSION_STATE_TIMEOUTS")); err != nil {
		return Config{}, err
	}

	if cfg.SessionRetentionTTL < time.Hour {
		return Config{}, fmt.Errorf("SESSION_RETENTION_TTL must be at least 1h")
	}
	if cfg.SessionHistoryLimit <= 0 {
		return Config{}, fmt.Errorf("SESSION_HISTORY_LIMIT must be positive")
	}
	if cfg.SessionDefaultTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("SESSION_DEFAULT_TIMEOUT must be at least 5s")
	}
	if cfg.SessionDefaultTimeout >= cfg.SessionRetentionTTL {
		return Config{}, fmt.Errorf("SESSION_DEFAULT_TIMEOUT must be shorter than SESSION_RETENTION_TTL")
	}
	if cfg.IdleThreshold <= 0 {
		return Config{}, fmt.Errorf("PROFICIENCY_IDLE_THRESHOLD must be positive")
	}

	return cfg, nil
}

// applyStateTimeoutOverrides parses "state=duration,state=duration" pairs,
// e.g. "adding_event_name=3m,idle=1h".
func applyStateTimeoutOverrides(timeouts map[session.State]time.Duration, raw string) error {
	if raw == "" {
		return nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("SESSION_STATE_TIMEOUTS entry %q: want state=duration", pair)
		}
		d, err := time.ParseDuration(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("SESSION_STATE_TIMEOUTS entry %q: %w", pair, err)
		}
		if d <= 0 {
			return fmt.Errorf("SESSION_STATE_TIMEOUTS entry %q: duration must be positive", pair)
		}
		timeouts[session.State(strings.TrimSpace(name))] = d
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
