package kv

import (
	"context"
	"strings"

	"github.com/mcontarini/converse/internal/logger"
)

// NewStore picks a backend: redis when redisAddr is set, postgres when
// databaseURL is set, otherwise in-memory.
func NewStore(ctx context.Context, redisAddr, databaseURL string, log *logger.Logger) (Store, error) {
	if strings.TrimSpace(redisAddr) != "" {
		return NewRedisStore(ctx, redisAddr, log)
	}
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresStore(ctx, databaseURL, log)
	}
	log.Info("no REDIS_ADDR or DATABASE_URL configured, using in-memory store")
	return NewMemoryStore(), nil
}
