package pipeline

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// Palette is the cycle of agent display colors, in first-appearance order.
var Palette = []string{
	"#6366F1", // indigo
	"#10B981", // emerald
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#06B6D4", // cyan
	"#EC4899", // pink
	"#84CC16", // lime
}

func paletteColor(i int) string {
	return Palette[i%len(Palette)]
}

// Synthesize builds a graph from a one-shot payload.
//
// Stages are ranked by ascending level, equal levels keeping input order.
// Agents keep input order; a repeated agent name is dropped. Assignment
// pairs that do not resolve to a stage and an agent are dropped. Every
// dropped entry is returned as a warning; only a missing stages or agents
// array fails synthesis.
func Synthesize(p *Payload) (*Graph, []Warning, error) {
	if p == nil || p.Stages == nil {
		return nil, nil, &SynthesisError{Field: "stages"}
	}
	if p.Agents == nil {
		return nil, nil, &SynthesisError{Field: "agents"}
	}

	g := &Graph{
		Meta: Meta{
			Name:        p.Pipeline.Name,
			Description: p.Pipeline.Description,
		},
		Stages:      make([]Stage, 0, len(p.Stages)),
		Agents:      make([]Agent, 0, len(p.Agents)),
		Assignments: make(map[string]string),
	}
	var warnings []Warning

	sorted := slices.Clone(p.Stages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for i, d := range sorted {
		g.Stages = append(g.Stages, Stage{
			ID:             ResolveStageID(d.Level, g.Stages),
			Position:       i,
			Level:          d.Level,
			Name:           d.Name,
			Description:    d.Description,
			Outcome:        normalizeOutcome(d.Outcome),
			RequiresAction: d.RequiresAction,
		})
	}

	for _, d := range p.Agents {
		if _, dup := FindAgent(d.Name, g.Agents); dup {
			warnings = append(warnings, Warning{AgentName: d.Name, Reason: ReasonRepeatedAgent})
			continue
		}
		g.Agents = append(g.Agents, Agent{
			ID:          ResolveAgentID(d.Name, g.Agents),
			Name:        d.Name,
			Color:       paletteColor(len(g.Agents)),
			Description: d.Description,
			Persona:     d.Persona,
			Capabilities: Capabilities{
				Core:             slices.Clone(d.CoreCapabilities),
				Specialties:      slices.Clone(d.Specialties),
				Instructions:     slices.Clone(d.Instructions),
				CoreInstructions: d.CoreInstructions,
				UseCases:         slices.Clone(d.UseCases),
				StageLevels:      slices.Clone(d.AssignedStages),
			},
		})
	}

	for _, key := range assignmentKeys(p.Assignments) {
		agentName := p.Assignments[key]
		level, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			warnings = append(warnings, Warning{LevelKey: key, AgentName: agentName, Reason: ReasonLevelNotInteger})
			continue
		}
		stage, ok := stageAtLevel(g.Stages, level)
		if !ok {
			warnings = append(warnings, Warning{LevelKey: key, AgentName: agentName, Reason: ReasonNoStage})
			continue
		}
		agent, ok := FindAgent(agentName, g.Agents)
		if !ok {
			warnings = append(warnings, Warning{LevelKey: key, AgentName: agentName, Reason: ReasonNoAgent})
			continue
		}
		if _, bound := g.Assignments[stage.ID]; bound {
			warnings = append(warnings, Warning{LevelKey: key, AgentName: agentName, Reason: ReasonStageBound})
			continue
		}
		g.Assignments[stage.ID] = agent.ID
	}

	return g, warnings, nil
}

// assignmentKeys orders keys numerically where possible so that synthesis
// does not depend on map iteration order.
func assignmentKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(strings.TrimSpace(keys[i]))
		b, errB := strconv.Atoi(strings.TrimSpace(keys[j]))
		switch {
		case errA == nil && errB == nil && a != b:
			return a < b
		case errA == nil && errB != nil:
			return true
		case errA != nil && errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// stageAtLevel returns the first-ranked stage with the given level.
func stageAtLevel(stages []Stage, level int) (*Stage, bool) {
	for i := range stages {
		if stages[i].Level == level {
			return &stages[i], true
		}
	}
	return nil, false
}
