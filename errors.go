package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownReference = errors.New("pipeline: unknown reference")
	ErrInvalidAction    = errors.New("pipeline: invalid action")
	ErrInvalidGraph     = errors.New("pipeline: invalid graph")
	ErrGraphNotFound    = errors.New("pipeline: graph not found")
)

// SynthesisError reports a malformed one-shot payload. No graph is produced.
type SynthesisError struct {
	Field  string
	Reason string
}

func (e *SynthesisError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("pipeline: synthesis: missing required field %q", e.Field)
	}
	if e.Field == "" {
		return "pipeline: synthesis: " + e.Reason
	}
	return fmt.Sprintf("pipeline: synthesis: field %q: %s", e.Field, e.Reason)
}

// UnknownStageError rejects an action naming a stage the graph does not have.
type UnknownStageError struct {
	Name string
}

func (e *UnknownStageError) Error() string {
	return fmt.Sprintf("pipeline: unknown stage %q", e.Name)
}

func (e *UnknownStageError) Unwrap() error { return ErrUnknownReference }

// UnknownAgentError rejects an action naming an agent the graph does not
// have, or one that is not bound to Stage.
type UnknownAgentError struct {
	Name  string
	Stage string
}

func (e *UnknownAgentError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("pipeline: no agent %q bound to stage %q", e.Name, e.Stage)
	}
	return fmt.Sprintf("pipeline: unknown agent %q", e.Name)
}

func (e *UnknownAgentError) Unwrap() error { return ErrUnknownReference }

// Reasons a payload entry is dropped during synthesis.
const (
	ReasonLevelNotInteger = "stage level is not an integer"
	ReasonNoStage         = "no stage at level"
	ReasonNoAgent         = "no agent with that name"
	ReasonStageBound      = "stage already bound"
	ReasonRepeatedAgent   = "repeated agent name"
)

// Warning records a payload entry dropped during synthesis: an assignment
// pair (LevelKey set) or a repeated agent (LevelKey empty). It is never
// returned as the error of Synthesize.
type Warning struct {
	LevelKey  string `json:"level_key,omitempty"`
	AgentName string `json:"agent_name"`
	Reason    string `json:"reason"`
}

func (w Warning) Error() string {
	if w.LevelKey == "" {
		return fmt.Sprintf("pipeline: dropped agent %q: %s", w.AgentName, w.Reason)
	}
	return fmt.Sprintf("pipeline: dropped assignment %q -> %q: %s", w.LevelKey, w.AgentName, w.Reason)
}

// Unresolved reports whether the entry names a stage level or an agent the
// graph does not have.
func (w Warning) Unresolved() bool {
	switch w.Reason {
	case ReasonLevelNotInteger, ReasonNoStage, ReasonNoAgent:
		return true
	}
	return false
}

// UnresolvedReferenceWarning is the Warning of an assignment pair whose
// stage level or agent name does not resolve.
type UnresolvedReferenceWarning = Warning

func invalidGraph(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGraph, fmt.Sprintf(format, args...))
}
