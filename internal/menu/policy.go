// Package menu decides, per turn, whether to surface a navigational menu and
// in what form, based on the user's display preference, their learned
// proficiency, and the turn's context.
package menu

import (
	"context"

	"github.com/mcontarini/converse/internal/logger"
	"github.com/mcontarini/converse/internal/observability"
	"github.com/mcontarini/converse/internal/proficiency"
)

// DisplayMode is the per-user menu preference, configured upstream.
type DisplayMode string

const (
	ModeAlways     DisplayMode = "always"
	ModeNever      DisplayMode = "never"
	ModeErrorsOnly DisplayMode = "errors_only"
	ModeAdaptive   DisplayMode = "adaptive"
)

// MenuType is how a surfaced menu should be rendered.
type MenuType string

const (
	TypeFull       MenuType = "full"
	TypeContextual MenuType = "contextual"
	TypeNone       MenuType = "none"
)

// TurnContext carries the per-turn flags the engine weighs.
type TurnContext struct {
	IsError           bool
	IsIdle            bool
	IsExplicitRequest bool
}

// Decision is the engine's verdict for one turn.
type Decision struct {
	Show bool     `json:"show"`
	Type MenuType `json:"type"`
}

// Engine composes the proficiency classification with the user's preference
// and turn context.
type Engine struct {
	prof    *proficiency.Model
	metrics *observability.Metrics
	log     *logger.Logger
}

func NewEngine(prof *proficiency.Model, metrics *observability.Metrics, log *logger.Logger) *Engine {
	return &Engine{
		prof:    prof,
		metrics: metrics,
		log:     log.With("component", "menu_policy"),
	}
}

// Decide evaluates an ordered priority table; the first matching rule wins.
// An explicit request always surfaces the full menu; a "never" preference
// suppresses the menu even on errors. Proficiency only matters in adaptive
// mode, where experts see progressively less.
func (e *Engine) Decide(ctx context.Context, userID string, mode DisplayMode, turn TurnContext) Decision {
	d := e.decide(ctx, userID, mode, turn)
	e.metrics.MenuDecisions.WithLabelValues(string(d.Type)).Inc()
	e.log.Debug("menu decision",
		"user_id", userID, "mode", mode, "show", d.Show, "type", d.Type)
	return d
}

func (e *Engine) decide(ctx context.Context, userID string, mode DisplayMode, turn TurnContext) Decision {
	if turn.IsExplicitRequest {
		e.prof.Record(ctx, userID, proficiency.EventMenuRequest)
		return Decision{Show: true, Type: TypeFull}
	}
	if mode == ModeAlways {
		return Decision{Show: true, Type: TypeFull}
	}
	if mode == ModeNever {
		return Decision{Show: false, Type: TypeNone}
	}
	if turn.IsError {
		e.prof.Record(ctx, userID, proficiency.EventError)
		return Decision{Show: true, Type: TypeFull}
	}
	if mode == ModeErrorsOnly {
		if turn.IsIdle {
			return Decision{Show: true, Type: TypeFull}
		}
		return Decision{Show: false, Type: TypeNone}
	}

	level := e.prof.Classify(ctx, userID)
	switch {
	case level == proficiency.LevelNovice:
		return Decision{Show: true, Type: TypeFull}
	case level == proficiency.LevelIntermediate && turn.IsIdle:
		return Decision{Show: true, Type: TypeFull}
	case level == proficiency.LevelIntermediate:
		return Decision{Show: true, Type: TypeContextual}
	case level == proficiency.LevelExpert && turn.IsIdle:
		return Decision{Show: true, Type: TypeContextual}
	default:
		return Decision{Show: false, Type: TypeNone}
	}
}
