package pipeline

import (
	"fmt"
	"math"
	"strings"
)

// Apply applies one action to g and returns the resulting graph together
// with the entities it touched. g itself is never modified; when the action
// is rejected, g is returned with the error.
//
// If g has been laid out, the result is laid out again with the same
// parameters.
func Apply(g *Graph, a Action) (*Graph, []EntityRef, error) {
	out := g.Clone()
	if out.Assignments == nil {
		out.Assignments = make(map[string]string)
	}

	var changed []EntityRef
	var err error
	switch a := a.(type) {
	case AddStage:
		changed, err = addStage(out, a)
	case AssignAgent:
		changed, err = assignAgent(out, a)
	case OptimizePipeline:
		return g, nil, nil
	case RemoveStage:
		changed, err = removeStage(out, a)
	case UnassignAgent:
		changed, err = unassignAgent(out, a)
	case RenameStage:
		changed, err = renameStage(out, a)
	default:
		err = fmt.Errorf("%w: unsupported action %T", ErrInvalidAction, a)
	}
	if err != nil {
		return g, nil, err
	}

	if out.Layout != nil {
		out = Layout(out, *out.Layout)
	}
	return out, changed, nil
}

func addStage(g *Graph, a AddStage) ([]EntityRef, error) {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: add_stage: empty name", ErrInvalidAction)
	}

	rank := len(g.Stages)
	level := 1
	if len(g.Stages) > 0 {
		last := g.Stages[len(g.Stages)-1].Level
		if last == math.MaxInt && (a.Position == nil || *a.Position >= len(g.Stages)) {
			return nil, fmt.Errorf("%w: add_stage: no level after %d", ErrInvalidAction, last)
		}
		level = last + 1
	}
	if a.Position != nil {
		if *a.Position < 0 {
			return nil, fmt.Errorf("%w: add_stage: negative position %d", ErrInvalidAction, *a.Position)
		}
		if *a.Position < len(g.Stages) {
			rank = *a.Position
			// Share the displaced stage's level so levels stay non-decreasing.
			level = g.Stages[rank].Level
		}
	}

	s := Stage{
		ID:      ResolveStageID(level, g.Stages, g.Retired...),
		Level:   level,
		Name:    name,
		Outcome: OutcomeNeutral,
	}
	g.Stages = append(g.Stages, Stage{})
	copy(g.Stages[rank+1:], g.Stages[rank:])
	g.Stages[rank] = s
	g.renumber()

	changed := []EntityRef{{Kind: KindStage, ID: s.ID}}
	for _, later := range g.Stages[rank+1:] {
		changed = append(changed, EntityRef{Kind: KindStage, ID: later.ID})
	}
	return changed, nil
}

func assignAgent(g *Graph, a AssignAgent) ([]EntityRef, error) {
	stage, ok := FindStage(a.StageName, g.Stages)
	if !ok {
		return nil, &UnknownStageError{Name: a.StageName}
	}
	name := strings.TrimSpace(a.AgentName)
	if name == "" {
		return nil, fmt.Errorf("%w: assign_agent: empty agent name", ErrInvalidAction)
	}

	var changed []EntityRef
	agent, ok := FindAgent(name, g.Agents)
	if !ok {
		g.Agents = append(g.Agents, Agent{
			ID:      ResolveAgentID(name, g.Agents),
			Name:    name,
			Color:   paletteColor(len(g.Agents)),
			Persona: a.Role,
		})
		agent = &g.Agents[len(g.Agents)-1]
		changed = append(changed, EntityRef{Kind: KindAgent, ID: agent.ID})
	}

	if g.Assignments[stage.ID] == agent.ID {
		return changed, nil
	}
	g.Assignments[stage.ID] = agent.ID
	return append(changed, EntityRef{Kind: KindAssignment, ID: stage.ID}), nil
}

func removeStage(g *Graph, a RemoveStage) ([]EntityRef, error) {
	stage, ok := FindStage(a.StageName, g.Stages)
	if !ok {
		return nil, &UnknownStageError{Name: a.StageName}
	}
	id, rank := stage.ID, stage.Position

	changed := []EntityRef{{Kind: KindStage, ID: id}}
	if _, bound := g.Assignments[id]; bound {
		delete(g.Assignments, id)
		changed = append(changed, EntityRef{Kind: KindAssignment, ID: id})
	}
	g.Stages = append(g.Stages[:rank], g.Stages[rank+1:]...)
	g.Retired = append(g.Retired, id)
	g.renumber()
	for _, later := range g.Stages[rank:] {
		changed = append(changed, EntityRef{Kind: KindStage, ID: later.ID})
	}
	return changed, nil
}

func unassignAgent(g *Graph, a UnassignAgent) ([]EntityRef, error) {
	stage, ok := FindStage(a.StageName, g.Stages)
	if !ok {
		return nil, &UnknownStageError{Name: a.StageName}
	}
	bound, ok := g.Assignments[stage.ID]
	if !ok {
		return nil, &UnknownAgentError{Name: a.AgentName, Stage: stage.Name}
	}
	if a.AgentName != "" {
		agent, found := g.Agent(bound)
		if !found || !SameName(agent.Name, a.AgentName) {
			return nil, &UnknownAgentError{Name: a.AgentName, Stage: stage.Name}
		}
	}
	delete(g.Assignments, stage.ID)
	return []EntityRef{{Kind: KindAssignment, ID: stage.ID}}, nil
}

func renameStage(g *Graph, a RenameStage) ([]EntityRef, error) {
	stage, ok := FindStage(a.StageName, g.Stages)
	if !ok {
		return nil, &UnknownStageError{Name: a.StageName}
	}
	name := strings.TrimSpace(a.NewName)
	if name == "" {
		return nil, fmt.Errorf("%w: rename_stage: empty name", ErrInvalidAction)
	}
	stage.Name = name
	return []EntityRef{{Kind: KindStage, ID: stage.ID}}, nil
}
