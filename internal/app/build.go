package app

import (
	"context"
	"fmt"
	"time"

	"github.com/mcontarini/converse/internal/config"
	"github.com/mcontarini/converse/internal/httpapi"
	"github.com/mcontarini/converse/internal/kv"
	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/menu"
	"github.com/mcontarini/converse/internal/notify"
	"github.com/mcontarini/converse/internal/observability"
	"github.com/mcontarini/converse/internal/proficiency"
	"github.com/mcontarini/converse/internal/reliability"
	"github.com/mcontarini/converse/internal/session"
)

// BuildResult bundles the wired components with process-lifetime scope.
type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Sessions    *session.Manager
	Proficiency *proficiency.Model
	Menu        *menu.Engine
	Metrics     *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

// Build constructs every component explicitly; nothing here is a process
// global.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	var kvs kv.Store
	err := reliability.Retry(ctx, 3, 500*time.Millisecond, 5*time.Second, func() error {
		var connErr error
		kvs, connErr = kv.NewStore(ctx, cfg.RedisAddr, cfg.DatabaseURL, log)
		return connErr
	})
	if err != nil {
		return nil, fmt.Errorf("kv store init failed: %w", err)
	}
	if pg, ok := kvs.(*kv.PostgresStore); ok {
		pg.StartJanitor(ctx, cfg.KVJanitorInterval)
	}

	store := session.NewStore(kvs, cfg.SessionRetentionTTL, cfg.SessionHistoryLimit, metrics, log)
	notifier := notify.NewLogNotifier(log)
	sessions := session.NewManager(store, cfg.StateTimeouts, cfg.SessionDefaultTimeout, notifier, metrics, log)

	prof := proficiency.NewModel(kvs, cfg.IdleThreshold, metrics, log)
	policy := menu.NewEngine(prof, metrics, log)

	api := httpapi.New(cfg, sessions, prof, policy, kvs, metrics, log)

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Sessions:    sessions,
		Proficiency: prof,
		Menu:        policy,
		Metrics:     metrics,
		Cleanup: func() error {
			return kvs.Close()
		},
	}, nil
}
