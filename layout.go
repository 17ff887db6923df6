package pipeline

// Spacing bounds accepted by Layout.
const (
	MinStageSpacingPx = 150
	MaxStageSpacingPx = 300
	MinAgentOffsetPx  = 250
	MaxAgentOffsetPx  = 500

	DefaultStageSpacingPx = 200
	DefaultAgentOffsetPx  = 300
)

// LayoutParams controls board spacing.
type LayoutParams struct {
	StageSpacingPx float64 `json:"stage_spacing_px" yaml:"stage_spacing_px"`
	AgentOffsetPx  float64 `json:"agent_offset_px" yaml:"agent_offset_px"`
}

// DefaultLayout returns the spacing used by a layout reset.
func DefaultLayout() LayoutParams {
	return LayoutParams{StageSpacingPx: DefaultStageSpacingPx, AgentOffsetPx: DefaultAgentOffsetPx}
}

// Normalize fills zero fields with defaults and clamps the rest into range.
func (p LayoutParams) Normalize() LayoutParams {
	if p.StageSpacingPx == 0 {
		p.StageSpacingPx = DefaultStageSpacingPx
	}
	if p.AgentOffsetPx == 0 {
		p.AgentOffsetPx = DefaultAgentOffsetPx
	}
	p.StageSpacingPx = clamp(p.StageSpacingPx, MinStageSpacingPx, MaxStageSpacingPx)
	p.AgentOffsetPx = clamp(p.AgentOffsetPx, MinAgentOffsetPx, MaxAgentOffsetPx)
	return p
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// Layout returns a copy of g with coordinates derived from stage positions
// and bindings alone. Stages sit on the x axis; each binding gets a slot
// below its stage. An agent's own coordinates are those of its first slot;
// unbound agents are left unplaced.
func Layout(g *Graph, p LayoutParams) *Graph {
	p = p.Normalize()
	out := g.Clone()
	out.Layout = &p
	out.Slots = out.Slots[:0]

	for i := range out.Agents {
		out.Agents[i].Coordinates = nil
	}
	for i := range out.Stages {
		s := &out.Stages[i]
		s.Coordinates = Point{X: float64(s.Position) * p.StageSpacingPx, Y: 0}

		agentID, ok := out.Assignments[s.ID]
		if !ok {
			continue
		}
		slot := AgentSlot{
			StageID:     s.ID,
			AgentID:     agentID,
			Coordinates: Point{X: s.Coordinates.X, Y: p.AgentOffsetPx},
		}
		out.Slots = append(out.Slots, slot)
		if a, ok := out.Agent(agentID); ok && a.Coordinates == nil {
			pt := slot.Coordinates
			a.Coordinates = &pt
		}
	}
	if len(out.Slots) == 0 {
		out.Slots = nil
	}
	return out
}
