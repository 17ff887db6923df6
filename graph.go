package pipeline

import "slices"

// Outcome classifies how a deal leaves a stage.
type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeNeutral Outcome = "neutral"
	OutcomeLost    Outcome = "lost"
)

func normalizeOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeWon, OutcomeLost:
		return Outcome(s)
	default:
		return OutcomeNeutral
	}
}

// Point is a 2-D board coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Meta is the pipeline's display header.
type Meta struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Stage is a step in the pipeline.
// ID is minted once and survives renames, re-levelling and re-ranking.
type Stage struct {
	ID             string  `json:"id"`
	Position       int     `json:"position"`
	Level          int     `json:"level"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Outcome        Outcome `json:"outcome"`
	RequiresAction bool    `json:"requires_action"`
	Coordinates    Point   `json:"coordinates"`
}

// Capabilities are an agent's self-declared persona fields.
// StageLevels is a capability declaration only; it never binds the agent.
type Capabilities struct {
	Core             []string `json:"core,omitempty"`
	Specialties      []string `json:"specialties,omitempty"`
	Instructions     []string `json:"instructions,omitempty"`
	CoreInstructions string   `json:"core_instructions,omitempty"`
	UseCases         []string `json:"use_cases,omitempty"`
	StageLevels      []int    `json:"stage_levels,omitempty"`
}

// Agent is an AI persona that can be bound to stages.
// Coordinates is nil while the agent has no binding.
type Agent struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Color        string       `json:"color"`
	Description  string       `json:"description,omitempty"`
	Persona      string       `json:"persona,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
	Coordinates  *Point       `json:"coordinates,omitempty"`
}

// AgentSlot places one binding on the board, under its stage.
type AgentSlot struct {
	StageID     string `json:"stage_id"`
	AgentID     string `json:"agent_id"`
	Coordinates Point  `json:"coordinates"`
}

// Graph is a synthesized pipeline: ordered stages, agents in insertion
// order and at most one binding agent per stage.
type Graph struct {
	ID          string            `json:"id,omitempty"`
	Meta        Meta              `json:"meta"`
	Stages      []Stage           `json:"stages"`
	Agents      []Agent           `json:"agents"`
	Assignments map[string]string `json:"assignments"` // stage id → agent id
	Slots       []AgentSlot       `json:"slots,omitempty"`
	Layout      *LayoutParams     `json:"layout,omitempty"`

	// Retired holds the ids of removed stages. They are never minted again.
	Retired []string `json:"retired,omitempty"`
}

// EntityKind names what an EntityRef points at.
type EntityKind string

const (
	KindStage      EntityKind = "stage"
	KindAgent      EntityKind = "agent"
	KindAssignment EntityKind = "assignment"
)

// EntityRef identifies an entity touched by an action.
// For KindAssignment the ID is the stage id.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		ID:          g.ID,
		Meta:        g.Meta,
		Stages:      slices.Clone(g.Stages),
		Agents:      make([]Agent, len(g.Agents)),
		Assignments: make(map[string]string, len(g.Assignments)),
		Slots:       slices.Clone(g.Slots),
		Retired:     slices.Clone(g.Retired),
	}
	for i, a := range g.Agents {
		a.Capabilities = a.Capabilities.clone()
		if a.Coordinates != nil {
			p := *a.Coordinates
			a.Coordinates = &p
		}
		c.Agents[i] = a
	}
	for k, v := range g.Assignments {
		c.Assignments[k] = v
	}
	if g.Layout != nil {
		p := *g.Layout
		c.Layout = &p
	}
	return c
}

func (c Capabilities) clone() Capabilities {
	c.Core = slices.Clone(c.Core)
	c.Specialties = slices.Clone(c.Specialties)
	c.Instructions = slices.Clone(c.Instructions)
	c.UseCases = slices.Clone(c.UseCases)
	c.StageLevels = slices.Clone(c.StageLevels)
	return c
}

// Stage returns the stage with the given id.
func (g *Graph) Stage(id string) (*Stage, bool) {
	for i := range g.Stages {
		if g.Stages[i].ID == id {
			return &g.Stages[i], true
		}
	}
	return nil, false
}

// Agent returns the agent with the given id.
func (g *Graph) Agent(id string) (*Agent, bool) {
	for i := range g.Agents {
		if g.Agents[i].ID == id {
			return &g.Agents[i], true
		}
	}
	return nil, false
}

// Check verifies the structural invariants of g: positions form 0..N-1 in
// slice order with non-decreasing levels, ids are unique, and every
// assignment references a stage and an agent of g.
func (g *Graph) Check() error {
	ids := make(map[string]bool, len(g.Stages)+len(g.Agents))
	for i, s := range g.Stages {
		if s.Position != i {
			return invalidGraph("stage %q has position %d at rank %d", s.ID, s.Position, i)
		}
		if i > 0 && s.Level < g.Stages[i-1].Level {
			return invalidGraph("stage %q level %d below previous level %d", s.ID, s.Level, g.Stages[i-1].Level)
		}
		if s.ID == "" || ids[s.ID] {
			return invalidGraph("duplicate or empty stage id %q", s.ID)
		}
		if slices.Contains(g.Retired, s.ID) {
			return invalidGraph("stage %q reuses a retired id", s.ID)
		}
		ids[s.ID] = true
	}
	for _, a := range g.Agents {
		if a.ID == "" || ids[a.ID] {
			return invalidGraph("duplicate or empty agent id %q", a.ID)
		}
		ids[a.ID] = true
	}
	for stageID, agentID := range g.Assignments {
		if _, ok := g.Stage(stageID); !ok {
			return invalidGraph("assignment references unknown stage %q", stageID)
		}
		if _, ok := g.Agent(agentID); !ok {
			return invalidGraph("assignment references unknown agent %q", agentID)
		}
	}
	return nil
}

// renumber rewrites Position to match slice order.
func (g *Graph) renumber() {
	for i := range g.Stages {
		g.Stages[i].Position = i
	}
}
