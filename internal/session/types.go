package session

import (
	"errors"
	"time"
)

// State identifies where a user's multi-step dialogue currently stands.
type State string

const (
	StateIdle                   State = "idle"
	StateMainMenu               State = "main_menu"
	StateAddingEventName        State = "adding_event_name"
	StateAddingEventDate        State = "adding_event_date"
	StateAddingEventTime        State = "adding_event_time"
	StateAddingEventLocation    State = "adding_event_location"
	StateAddingEventDescription State = "adding_event_description"
	StateAddingReminderTitle    State = "adding_reminder_title"
	StateAddingReminderDate     State = "adding_reminder_date"
	StateAddingReminderTime     State = "adding_reminder_time"
	StateListingEvents          State = "listing_events"
	StateDeletingEvent          State = "deleting_event"
	StateSettings               State = "settings"
	StateDraftingMessage        State = "drafting_message"
)

// DefaultTimeout applies to any state without an explicit inactivity bound.
const DefaultTimeout = 10 * time.Minute

// DefaultStateTimeouts maps each dialogue state to its soft inactivity
// timeout. Short data-entry steps expire quickly; top-level states stay
// resumable for longer. The hard 30-day retention TTL is independent of
// these.
func DefaultStateTimeouts() map[State]time.Duration {
	return map[State]time.Duration{
		StateIdle:                   30 * time.Minute,
		StateMainMenu:               15 * time.Minute,
		StateSettings:               15 * time.Minute,
		StateListingEvents:          10 * time.Minute,
		StateDeletingEvent:          10 * time.Minute,
		StateDraftingMessage:        10 * time.Minute,
		StateAddingEventName:        5 * time.Minute,
		StateAddingEventDate:        5 * time.Minute,
		StateAddingEventTime:        5 * time.Minute,
		StateAddingEventLocation:    5 * time.Minute,
		StateAddingEventDescription: 5 * time.Minute,
		StateAddingReminderTitle:    5 * time.Minute,
		StateAddingReminderDate:     5 * time.Minute,
		StateAddingReminderTime:     5 * time.Minute,
	}
}

// Known reports whether s is one of the enumerated dialogue states.
func (s State) Known() bool {
	switch s {
	case StateIdle, StateMainMenu,
		StateAddingEventName, StateAddingEventDate, StateAddingEventTime,
		StateAddingEventLocation, StateAddingEventDescription,
		StateAddingReminderTitle, StateAddingReminderDate, StateAddingReminderTime,
		StateListingEvents, StateDeletingEvent, StateSettings, StateDraftingMessage:
		return true
	}
	return false
}

// ErrNotFound reports that a user has no live session: never started, hard
// TTL lapsed, or logically expired by the soft timeout. Callers can tell it
// apart from a store failure.
var ErrNotFound = errors.New("session not found")

// Turn is a single conversational exchange entry.
type Turn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-user dialogue record. Context is caller-owned and never
// interpreted here. History keeps at most HistoryLimit turns, oldest dropped
// first.
//
// Read-modify-write paths (Write, AppendHistory, MergeContext) carry no
// atomicity guarantee: the design assumes one handler instance processes a
// given user's turns serially.
type Session struct {
	ID           string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	State        State          `json:"state"`
	Context      map[string]any `json:"context"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	ExpiresAt    time.Time      `json:"expires_at"`
	History      []Turn         `json:"history,omitempty"`
}
