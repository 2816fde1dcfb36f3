package proficiency

import (
	"errors"
	"time"
)

// Level is the derived skill classification. It is computed from counters on
// demand and never cached.
type Level string

const (
	LevelNovice       Level = "novice"
	LevelIntermediate Level = "intermediate"
	LevelExpert       Level = "expert"
)

// EventKind names the interaction signals the model counts.
type EventKind string

const (
	EventMessage      EventKind = "message"
	EventNLPSuccess   EventKind = "nlp_success"
	EventNLPFailure   EventKind = "nlp_failure"
	EventMenuRequest  EventKind = "menu_request"
	EventCommandUsage EventKind = "command_usage"
	EventError        EventKind = "error"
)

// ErrNotFound reports a user with no metrics record.
var ErrNotFound = errors.New("proficiency metrics not found")

// Metrics is the per-user counter record. Counters only grow within a
// record's lifetime; after the 30-day retention lapses a fresh record starts
// over from zero.
type Metrics struct {
	UserID              string     `json:"user_id"`
	TotalMessages       int        `json:"total_messages"`
	NLPSuccessCount     int        `json:"nlp_success_count"`
	NLPFailureCount     int        `json:"nlp_failure_count"`
	MenuRequestCount    int        `json:"menu_request_count"`
	CommandUsageCount   int        `json:"command_usage_count"`
	ErrorCount          int        `json:"error_count"`
	SessionCount        int        `json:"session_count"`
	FirstMessageAt      time.Time  `json:"first_message_at"`
	LastUpdated         time.Time  `json:"last_updated"`
	LastMenuRequestTime *time.Time `json:"last_menu_request_time,omitempty"`
}

// NLPSuccessRate is the share of understood utterances, 0 when nothing was
// classified yet.
func (m *Metrics) NLPSuccessRate() float64 {
	total := m.NLPSuccessCount + m.NLPFailureCount
	if total == 0 {
		return 0
	}
	return float64(m.NLPSuccessCount) / float64(total)
}

// CommandRatio is the share of messages that used explicit commands.
func (m *Metrics) CommandRatio() float64 {
	if m.TotalMessages == 0 {
		return 0
	}
	return float64(m.CommandUsageCount) / float64(m.TotalMessages)
}
