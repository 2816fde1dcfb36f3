// Package kv abstracts the key-value backend the session layer persists to.
// Values are JSON documents serialized by the callers; the backends only see
// opaque strings.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports a key with no live value (never written, deleted, or
// past its expiry).
var ErrNotFound = errors.New("kv: key not found")

// Store is the backend contract. A zero ttl on Set means "no expiry".
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
