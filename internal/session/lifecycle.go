package session

import (
	"context"
	"errors"
	"time"

	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/notify"
	"github.com/mcontarini/converse/internal/observability"
)

// Manager layers per-state inactivity timeouts over the store's hard
// retention TTL. A session inactive past its state's soft timeout reads as
// absent even though the raw record has not yet expired, so short data-entry
// steps lapse in minutes while an idle top-level session stays resumable for
// days.
type Manager struct {
	store    *Store
	timeouts map[State]time.Duration
	fallback time.Duration
	notifier notify.Notifier
	metrics  *observability.Metrics
	log      *logger.Logger

	now func() time.Time
}

func NewManager(store *Store, timeouts map[State]time.Duration, fallback time.Duration, notifier notify.Notifier, metrics *observability.Metrics, log *logger.Logger) *Manager {
	if timeouts == nil {
		timeouts = DefaultStateTimeouts()
	}
	if fallback <= 0 {
		fallback = DefaultTimeout
	}
	return &Manager{
		store:    store,
		timeouts: timeouts,
		fallback: fallback,
		notifier: notifier,
		metrics:  metrics,
		log:      log.With("component", "session_lifecycle"),
		now:      time.Now,
	}
}

// TimeoutFor returns the soft inactivity bound for a state.
func (m *Manager) TimeoutFor(state State) time.Duration {
	if d, ok := m.timeouts[state]; ok {
		return d
	}
	return m.fallback
}

// GetActive returns the user's session, enforcing the soft timeout: a
// session inactive past its state's bound is cleared (with a best-effort
// notification) and reported as ErrNotFound, indistinguishable from a
// never-started one.
func (m *Manager) GetActive(ctx context.Context, userID string) (*Session, error) {
	sess, err := m.store.Read(ctx, userID)
	if err != nil {
		return nil, err
	}

	timeout := m.TimeoutFor(sess.State)
	inactive := m.now().Sub(sess.LastActivity)
	if inactive <= timeout {
		return sess, nil
	}

	if err := m.onTimeout(ctx, sess, inactive-timeout); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// onTimeout runs the expiry side effect once per detection: notify
// best-effort, then clear. The clear is the authoritative effect; a failing
// notifier never prevents it.
func (m *Manager) onTimeout(ctx context.Context, sess *Session, overshoot time.Duration) error {
	if m.notifier != nil {
		if err := m.notifier.NotifyTimeout(ctx, sess.UserID, string(sess.State)); err != nil {
			m.log.Warn("timeout notification failed", "user_id", sess.UserID, "error", err)
		}
	}
	if err := m.store.Clear(ctx, sess.UserID); err != nil {
		return err
	}
	m.metrics.SessionEvents.WithLabelValues("expired").Inc()
	m.metrics.TimeoutOvershoot.Observe(overshoot.Seconds())
	m.log.Info("session expired by inactivity",
		"user_id", sess.UserID, "state", sess.State, "inactive_for", overshoot+m.TimeoutFor(sess.State))
	return nil
}

// SetState writes the new state and context, establishing a turn boundary
// and resetting the soft-timeout clock.
func (m *Manager) SetState(ctx context.Context, userID string, state State, sessionCtx map[string]any) (*Session, error) {
	return m.store.Write(ctx, userID, state, sessionCtx)
}

// MergeContext shallow-merges partial into the active session's context,
// later keys overwriting earlier ones. A missing or expired session makes
// this a no-op.
func (m *Manager) MergeContext(ctx context.Context, userID string, partial map[string]any) error {
	sess, err := m.GetActive(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	merged := make(map[string]any, len(sess.Context)+len(partial))
	for k, v := range sess.Context {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}

	_, err = m.SetState(ctx, userID, sess.State, merged)
	return err
}

// Clear removes the user's session unconditionally.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	return m.store.Clear(ctx, userID)
}

// AppendHistory records one conversational turn on the active record.
func (m *Manager) AppendHistory(ctx context.Context, userID, role, content string) error {
	return m.store.AppendHistory(ctx, userID, role, content)
}

// ListActive enumerates stored sessions for operational inspection.
func (m *Manager) ListActive(ctx context.Context) ([]*Session, error) {
	return m.store.ListActive(ctx)
}
