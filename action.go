package pipeline

import (
	"encoding/json"
	"fmt"
)

// Action is one incremental edit produced by the conversation. The set of
// actions is closed; see the types below.
type Action interface {
	Kind() string
	isAction()
}

// AddStage appends a stage, or inserts it at rank Position when set.
type AddStage struct {
	Name     string `json:"name"`
	Position *int   `json:"position,omitempty"`
}

// AssignAgent binds an agent to a stage, creating the agent if needed.
type AssignAgent struct {
	AgentName string `json:"agent_name"`
	StageName string `json:"stage_name"`
	Role      string `json:"role,omitempty"`
}

// OptimizePipeline is handled by the conversational layer; it leaves the
// graph untouched.
type OptimizePipeline struct{}

// RemoveStage deletes a stage and its binding.
type RemoveStage struct {
	StageName string `json:"stage_name"`
}

// UnassignAgent clears a stage's binding. When AgentName is set it must
// name the bound agent.
type UnassignAgent struct {
	StageName string `json:"stage_name"`
	AgentName string `json:"agent_name,omitempty"`
}

// RenameStage changes a stage's display name. Its id is kept.
type RenameStage struct {
	StageName string `json:"stage_name"`
	NewName   string `json:"new_name"`
}

const (
	KindAddStage         = "add_stage"
	KindAssignAgent      = "assign_agent"
	KindOptimizePipeline = "optimize_pipeline"
	KindRemoveStage      = "remove_stage"
	KindUnassignAgent    = "unassign_agent"
	KindRenameStage      = "rename_stage"
)

func (AddStage) Kind() string         { return KindAddStage }
func (AssignAgent) Kind() string      { return KindAssignAgent }
func (OptimizePipeline) Kind() string { return KindOptimizePipeline }
func (RemoveStage) Kind() string      { return KindRemoveStage }
func (UnassignAgent) Kind() string    { return KindUnassignAgent }
func (RenameStage) Kind() string      { return KindRenameStage }

func (AddStage) isAction()         {}
func (AssignAgent) isAction()      {}
func (OptimizePipeline) isAction() {}
func (RemoveStage) isAction()      {}
func (UnassignAgent) isAction()    {}
func (RenameStage) isAction()      {}

// DecodeAction parses {"type": "<kind>", ...fields}.
func DecodeAction(data []byte) (Action, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}

	var a Action
	var err error
	switch head.Type {
	case KindAddStage:
		var v AddStage
		err = json.Unmarshal(data, &v)
		a = v
	case KindAssignAgent:
		var v AssignAgent
		err = json.Unmarshal(data, &v)
		a = v
	case KindOptimizePipeline:
		a = OptimizePipeline{}
	case KindRemoveStage:
		var v RemoveStage
		err = json.Unmarshal(data, &v)
		a = v
	case KindUnassignAgent:
		var v UnassignAgent
		err = json.Unmarshal(data, &v)
		a = v
	case KindRenameStage:
		var v RenameStage
		err = json.Unmarshal(data, &v)
		a = v
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidAction, head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAction, err)
	}
	return a, nil
}

// EncodeAction is the inverse of DecodeAction.
func EncodeAction(a Action) ([]byte, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(a.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}
