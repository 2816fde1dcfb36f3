package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcontarini/converse/internal/kv"
	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/observability"
)

// KeyPrefix namespaces session records in the key-value store.
const KeyPrefix = "session:"

// HistoryLimit bounds the retained conversation window.
const HistoryLimit = 20

// RetentionTTL is the hard storage ceiling, refreshed on every write
// (sliding window). The soft per-state timeouts in the lifecycle manager are
// enforced separately.
const RetentionTTL = 30 * 24 * time.Hour

// Store persists one session record per user. Store failures propagate to
// the caller; a malformed record reads as absent.
type Store struct {
	kv           kv.Store
	ttl          time.Duration
	historyLimit int
	metrics      *observability.Metrics
	log          *logger.Logger

	now func() time.Time
}

func NewStore(kvs kv.Store, ttl time.Duration, historyLimit int, metrics *observability.Metrics, log *logger.Logger) *Store {
	if ttl <= 0 {
		ttl = RetentionTTL
	}
	if historyLimit <= 0 {
		historyLimit = HistoryLimit
	}
	return &Store{
		kv:           kvs,
		ttl:          ttl,
		historyLimit: historyLimit,
		metrics:      metrics,
		log:          log.With("component", "session_store"),
		now:          time.Now,
	}
}

func key(userID string) string {
	return KeyPrefix + userID
}

// Write replaces the session's state and context, stamping lastActivity and
// refreshing the retention TTL. The record is created if absent; identity,
// creation time and history carry over from the previous record.
func (s *Store) Write(ctx context.Context, userID string, state State, sessionCtx map[string]any) (*Session, error) {
	now := s.now().UTC()

	sess, err := s.Read(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		sess = &Session{
			ID:        uuid.NewString(),
			UserID:    userID,
			CreatedAt: now,
		}
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
	case err != nil:
		return nil, err
	}

	sess.State = state
	sess.Context = sessionCtx
	sess.LastActivity = now
	sess.ExpiresAt = now.Add(s.ttl)

	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Read returns the stored record verbatim, or ErrNotFound. A record that no
// longer deserializes is treated as absent rather than fatal.
func (s *Store) Read(ctx context.Context, userID string) (*Session, error) {
	raw, err := s.kv.Get(ctx, key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		s.metrics.StoreErrors.WithLabelValues("read").Inc()
		return nil, fmt.Errorf("read session for %q: %w", userID, err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		s.log.Warn("discarding malformed session record", "user_id", userID, "error", err)
		return nil, ErrNotFound
	}
	return &sess, nil
}

// Clear removes the record unconditionally. Idempotent.
func (s *Store) Clear(ctx context.Context, userID string) error {
	if err := s.kv.Del(ctx, key(userID)); err != nil {
		s.metrics.StoreErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear session for %q: %w", userID, err)
	}
	s.metrics.SessionEvents.WithLabelValues("cleared").Inc()
	return nil
}

// AppendHistory appends one turn, evicting the oldest entries beyond the
// history limit, and refreshes the retention TTL. Appending to a missing
// session is a no-op.
func (s *Store) AppendHistory(ctx context.Context, userID, role, content string) error {
	sess, err := s.Read(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		s.log.Warn("append history without a session", "user_id", userID, "role", role)
		return nil
	}
	if err != nil {
		return err
	}

	now := s.now().UTC()
	sess.History = append(sess.History, Turn{Role: role, Content: content, Timestamp: now})
	if n := len(sess.History); n > s.historyLimit {
		sess.History = sess.History[n-s.historyLimit:]
	}
	sess.LastActivity = now
	sess.ExpiresAt = now.Add(s.ttl)

	return s.save(ctx, sess)
}

// ListActive enumerates every stored session. Operational inspection only;
// records that fail to deserialize are skipped.
func (s *Store) ListActive(ctx context.Context) ([]*Session, error) {
	keys, err := s.kv.Keys(ctx, KeyPrefix)
	if err != nil {
		s.metrics.StoreErrors.WithLabelValues("list").Inc()
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions := make([]*Session, 0, len(keys))
	for _, k := range keys {
		raw, err := s.kv.Get(ctx, k)
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			s.metrics.StoreErrors.WithLabelValues("list").Inc()
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		var sess Session
		if err := json.Unmarshal([]byte(raw), &sess); err != nil {
			s.log.Warn("skipping malformed session record", "key", k, "error", err)
			continue
		}
		sessions = append(sessions, &sess)
	}
	return sessions, nil
}

func (s *Store) save(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session for %q: %w", sess.UserID, err)
	}
	if err := s.kv.Set(ctx, key(sess.UserID), string(raw), s.ttl); err != nil {
		s.metrics.StoreErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("write session for %q: %w", sess.UserID, err)
	}
	return nil
}
