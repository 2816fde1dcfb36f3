package proficiency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mcontarini/converse/internal/kv"
	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/observability"
)

// KeyPrefix namespaces metrics records in the key-value store, apart from
// session records.
const KeyPrefix = "proficiency:"

// RetentionTTL is the metrics record's own sliding retention window.
const RetentionTTL = 30 * 24 * time.Hour

// IdleThreshold is how long without a message counts as idle.
const IdleThreshold = 60 * time.Second

// Classification thresholds. Expert is checked strictly before intermediate.
const (
	minMessagesIntermediate = 15
	minMessagesExpert       = 40
	expertSuccessRate       = 0.7
	expertCommandRatio      = 0.2
	intermediateSuccessRate = 0.5
)

// Model tracks per-user interaction counters and classifies proficiency from
// them. Instrumentation must never interrupt the conversation flow, so every
// operation here fails open: store failures degrade to a no-op (Record) or
// to the novice default (Classify).
type Model struct {
	kv        kv.Store
	ttl       time.Duration
	idleAfter time.Duration
	metrics   *observability.Metrics
	log       *logger.Logger

	now func() time.Time
}

func NewModel(kvs kv.Store, idleAfter time.Duration, metrics *observability.Metrics, log *logger.Logger) *Model {
	if idleAfter <= 0 {
		idleAfter = IdleThreshold
	}
	return &Model{
		kv:        kvs,
		ttl:       RetentionTTL,
		idleAfter: idleAfter,
		metrics:   metrics,
		log:       log.With("component", "proficiency"),
		now:       time.Now,
	}
}

func key(userID string) string {
	return KeyPrefix + userID
}

// Initialize creates a zeroed record for the user's first observed message.
func (p *Model) Initialize(ctx context.Context, userID string) (*Metrics, error) {
	now := p.now().UTC()
	m := &Metrics{
		UserID:         userID,
		SessionCount:   1,
		FirstMessageAt: now,
		LastUpdated:    now,
	}
	if err := p.save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Record increments the counter for kind and refreshes the retention TTL.
// The record is bootstrapped lazily by the first message event; any other
// kind against a missing record is a deliberate no-op. Store failures are
// logged and swallowed.
func (p *Model) Record(ctx context.Context, userID string, kind EventKind) {
	m, err := p.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		if kind != EventMessage {
			return
		}
		m, err = p.Initialize(ctx, userID)
		if err != nil {
			p.log.Warn("proficiency bootstrap failed", "user_id", userID, "error", err)
			return
		}
	case err != nil:
		p.log.Warn("proficiency read failed, dropping event", "user_id", userID, "kind", kind, "error", err)
		return
	}

	now := p.now().UTC()
	switch kind {
	case EventMessage:
		m.TotalMessages++
	case EventNLPSuccess:
		m.NLPSuccessCount++
	case EventNLPFailure:
		m.NLPFailureCount++
	case EventMenuRequest:
		m.MenuRequestCount++
		m.LastMenuRequestTime = &now
	case EventCommandUsage:
		m.CommandUsageCount++
	case EventError:
		m.ErrorCount++
	default:
		p.log.Warn("unknown proficiency event kind", "kind", kind)
		return
	}
	m.LastUpdated = now

	if err := p.save(ctx, m); err != nil {
		p.log.Warn("proficiency write failed, dropping event", "user_id", userID, "kind", kind, "error", err)
		return
	}
	p.metrics.ProficiencyEvents.WithLabelValues(string(kind)).Inc()
}

// Get returns the raw metrics record or ErrNotFound. Malformed records read
// as absent.
func (p *Model) Get(ctx context.Context, userID string) (*Metrics, error) {
	raw, err := p.kv.Get(ctx, key(userID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		p.metrics.StoreErrors.WithLabelValues("proficiency_read").Inc()
		return nil, fmt.Errorf("read proficiency for %q: %w", userID, err)
	}

	var m Metrics
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		p.log.Warn("discarding malformed proficiency record", "user_id", userID, "error", err)
		return nil, ErrNotFound
	}
	return &m, nil
}

// Classify derives the user's level from current counters, reflecting the
// latest write immediately. Absent records and store failures classify as
// novice.
func (p *Model) Classify(ctx context.Context, userID string) Level {
	m, err := p.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			p.log.Warn("proficiency classify failed open", "user_id", userID, "error", err)
		}
		return LevelNovice
	}
	return classify(m)
}

func classify(m *Metrics) Level {
	if m.TotalMessages < minMessagesIntermediate {
		return LevelNovice
	}
	successRate := m.NLPSuccessRate()
	if m.TotalMessages >= minMessagesExpert &&
		successRate > expertSuccessRate &&
		m.CommandRatio() > expertCommandRatio {
		return LevelExpert
	}
	if successRate > intermediateSuccessRate {
		return LevelIntermediate
	}
	return LevelNovice
}

// IsIdle reports whether the user has gone quiet: no message ever, or none
// within the idle threshold.
func (p *Model) IsIdle(lastMessageTime *time.Time) bool {
	if lastMessageTime == nil {
		return true
	}
	return p.now().Sub(*lastMessageTime) > p.idleAfter
}

// Summary is the operational view of a user's metrics.
type Summary struct {
	UserID             string  `json:"user_id"`
	Level              Level   `json:"level"`
	TotalMessages      int     `json:"total_messages"`
	NLPSuccessRate     float64 `json:"nlp_success_rate"`
	CommandUsage       int     `json:"command_usage_count"`
	Errors             int     `json:"error_count"`
	MenuRequests       int     `json:"menu_request_count"`
	SessionCount       int     `json:"session_count"`
	LastUpdatedRFC3339 string  `json:"last_updated"`
}

// Summarize builds the debug summary for operational tooling.
func (p *Model) Summarize(ctx context.Context, userID string) (*Summary, error) {
	m, err := p.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		UserID:             userID,
		Level:              classify(m),
		TotalMessages:      m.TotalMessages,
		NLPSuccessRate:     m.NLPSuccessRate(),
		CommandUsage:       m.CommandUsageCount,
		Errors:             m.ErrorCount,
		MenuRequests:       m.MenuRequestCount,
		SessionCount:       m.SessionCount,
		LastUpdatedRFC3339: m.LastUpdated.Format(time.RFC3339),
	}, nil
}

// Report renders the summary as a human-readable block.
func (p *Model) Report(ctx context.Context, userID string) (string, error) {
	s, err := p.Summarize(ctx, userID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "proficiency report for %s\n", s.UserID)
	fmt.Fprintf(&b, "  level:             %s\n", s.Level)
	fmt.Fprintf(&b, "  messages:          %d\n", s.TotalMessages)
	fmt.Fprintf(&b, "  nlp success rate:  %.2f\n", s.NLPSuccessRate)
	fmt.Fprintf(&b, "  commands used:     %d\n", s.CommandUsage)
	fmt.Fprintf(&b, "  errors:            %d\n", s.Errors)
	fmt.Fprintf(&b, "  menu requests:     %d\n", s.MenuRequests)
	fmt.Fprintf(&b, "  last updated:      %s\n", s.LastUpdatedRFC3339)
	return b.String(), nil
}

func (p *Model) save(ctx context.Context, m *Metrics) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal proficiency for %q: %w", m.UserID, err)
	}
	if err := p.kv.Set(ctx, key(m.UserID), string(raw), p.ttl); err != nil {
		p.metrics.StoreErrors.WithLabelValues("proficiency_write").Inc()
		return fmt.Errorf("write proficiency for %q: %w", m.UserID, err)
	}
	return nil
}
