// Package notify is the seam to the (external) message-delivery system.
// The session layer only needs a best-effort "tell the user their dialogue
// timed out" capability; actual delivery lives upstream.
package notify

import (
	"context"

	"github.com/mcontarini/converse/internal/logger"
)

// Notifier dispatches an inactivity notice to a user. Implementations must
// tolerate being called for users that can no longer be reached.
type Notifier interface {
	NotifyTimeout(ctx context.Context, userID, state string) error
}

// LogNotifier stands in for the upstream dispatcher: it records the event
// and succeeds.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) NotifyTimeout(_ context.Context, userID, state string) error {
	n.log.Info("session timed out", "user_id", userID, "state", state)
	return nil
}
