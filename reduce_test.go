package pipeline

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func stageIDs(g *Graph) []string {
	ids := make([]string, len(g.Stages))
	for i, s := range g.Stages {
		ids[i] = s.ID
	}
	return ids
}

// --- AddStage ---

func TestApply_AddStageAppends(t *testing.T) {
	g := sampleGraph()

	out, changed, err := Apply(g, AddStage{Name: "Closed Won"})
	require.NoError(t, err)
	require.NoError(t, out.Check())

	last := out.Stages[len(out.Stages)-1]
	assert.Equal(t, "stage-4", last.ID)
	assert.Equal(t, 4, last.Level)
	assert.Equal(t, 3, last.Position)
	assert.Equal(t, OutcomeNeutral, last.Outcome)
	assert.Equal(t, []EntityRef{{Kind: KindStage, ID: "stage-4"}}, changed)
}

func TestApply_AddStageInsertsAtPosition(t *testing.T) {
	g := sampleGraph()

	out, changed, err := Apply(g, AddStage{Name: "Nurture", Position: intPtr(1)})
	require.NoError(t, err)
	require.NoError(t, out.Check())

	assert.Equal(t, []string{"Discovery", "Nurture", "Qualify", "Proposal"}, stageNames(out))
	assert.Equal(t, []string{"stage-1", "stage-2-2", "stage-2", "stage-3"}, stageIDs(out))

	// Later stages shift rank only.
	qualify, _ := out.Stage("stage-2")
	assert.Equal(t, 2, qualify.Position)
	assert.Equal(t, 2, qualify.Level)
	proposal, _ := out.Stage("stage-3")
	assert.Equal(t, 3, proposal.Position)
	assert.Equal(t, 3, proposal.Level)

	assert.Equal(t, []EntityRef{
		{Kind: KindStage, ID: "stage-2-2"},
		{Kind: KindStage, ID: "stage-2"},
		{Kind: KindStage, ID: "stage-3"},
	}, changed)
}

func TestApply_AddStagePositionPastEndAppends(t *testing.T) {
	out, _, err := Apply(sampleGraph(), AddStage{Name: "Later", Position: intPtr(42)})
	require.NoError(t, err)
	assert.Equal(t, "stage-4", out.Stages[3].ID)
	assert.Equal(t, 3, out.Stages[3].Position)
}

func TestApply_AddStageSameNameTwice(t *testing.T) {
	g := sampleGraph()
	once, _, err := Apply(g, AddStage{Name: "Nurture"})
	require.NoError(t, err)
	twice, _, err := Apply(once, AddStage{Name: "Nurture"})
	require.NoError(t, err)

	assert.Len(t, twice.Stages, 5)
	assert.Equal(t, "stage-4", twice.Stages[3].ID)
	assert.Equal(t, "stage-5", twice.Stages[4].ID)
	assert.Equal(t, twice.Stages[3].Name, twice.Stages[4].Name)
}

func TestApply_AddStageToEmptyGraph(t *testing.T) {
	g, _, err := Synthesize(&Payload{Stages: []StageDescriptor{}, Agents: []AgentDescriptor{}})
	require.NoError(t, err)

	out, _, err := Apply(g, AddStage{Name: "Discovery"})
	require.NoError(t, err)
	assert.Equal(t, "stage-1", out.Stages[0].ID)
	assert.Equal(t, 1, out.Stages[0].Level)
}

func TestApply_AddStageInvalid(t *testing.T) {
	g := sampleGraph()
	for _, a := range []AddStage{
		{Name: "  "},
		{Name: "Nurture", Position: intPtr(-1)},
	} {
		out, changed, err := Apply(g, a)
		assert.ErrorIs(t, err, ErrInvalidAction)
		assert.Same(t, g, out)
		assert.Nil(t, changed)
	}
}

func TestApply_AddStageLevelOverflow(t *testing.T) {
	g, _, err := Synthesize(&Payload{
		Stages: []StageDescriptor{{Level: 1, Name: "Discovery"}, {Level: math.MaxInt, Name: "Closed"}},
		Agents: []AgentDescriptor{},
	})
	require.NoError(t, err)

	out, changed, err := Apply(g, AddStage{Name: "After"})
	assert.ErrorIs(t, err, ErrInvalidAction)
	assert.Same(t, g, out)
	assert.Nil(t, changed)

	// Inserting before the last stage needs no new level.
	out, _, err = Apply(g, AddStage{Name: "Before", Position: intPtr(1)})
	require.NoError(t, err)
	require.NoError(t, out.Check())
	assert.Equal(t, []string{"Discovery", "Before", "Closed"}, stageNames(out))
}

// --- AssignAgent ---

func TestApply_AssignAgentCreatesAgent(t *testing.T) {
	g := sampleGraph()
	action := AssignAgent{AgentName: "New Bot", StageName: "Discovery", Role: "primary"}

	out, changed, err := Apply(g, action)
	require.NoError(t, err)
	require.NoError(t, out.Check())

	require.Len(t, out.Agents, 3)
	bot := out.Agents[2]
	assert.Equal(t, "agent-new-bot", bot.ID)
	assert.Equal(t, "New Bot", bot.Name)
	assert.Equal(t, Palette[2], bot.Color)
	assert.Equal(t, "agent-new-bot", out.Assignments["stage-1"])
	assert.Equal(t, []EntityRef{
		{Kind: KindAgent, ID: "agent-new-bot"},
		{Kind: KindAssignment, ID: "stage-1"},
	}, changed)

	again, changed, err := Apply(out, action)
	require.NoError(t, err)
	assert.Len(t, again.Agents, 3)
	assert.Equal(t, "agent-new-bot", again.Assignments["stage-1"])
	assert.Empty(t, changed)
}

func TestApply_AssignAgentOverwritesBinding(t *testing.T) {
	g := sampleGraph()

	out, changed, err := Apply(g, AssignAgent{AgentName: "closer", StageName: "DISCOVERY"})
	require.NoError(t, err)
	assert.Equal(t, "agent-closer", out.Assignments["stage-1"])
	assert.Equal(t, []EntityRef{{Kind: KindAssignment, ID: "stage-1"}}, changed)

	// The previous agent's capability declaration is untouched.
	scout, _ := out.Agent("agent-scout")
	assert.Equal(t, []int{1, 2}, scout.Capabilities.StageLevels)
}

func TestApply_AssignAgentUnknownStage(t *testing.T) {
	g := sampleGraph()

	out, changed, err := Apply(g, AssignAgent{AgentName: "Scout", StageName: "Atlantis"})
	var unknown *UnknownStageError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Atlantis", unknown.Name)
	assert.ErrorIs(t, err, ErrUnknownReference)
	assert.Same(t, g, out)
	assert.Nil(t, changed)
	assert.Len(t, g.Agents, 2)
}

// --- OptimizePipeline ---

func TestApply_OptimizeIsNoop(t *testing.T) {
	g := sampleGraph()
	out, changed, err := Apply(g, OptimizePipeline{})
	require.NoError(t, err)
	assert.Same(t, g, out)
	assert.Empty(t, changed)
}

// --- RemoveStage / UnassignAgent / RenameStage ---

func TestApply_RemoveStage(t *testing.T) {
	out, changed, err := Apply(sampleGraph(), RemoveStage{StageName: "Discovery"})
	require.NoError(t, err)
	require.NoError(t, out.Check())

	assert.Equal(t, []string{"stage-2", "stage-3"}, stageIDs(out))
	assert.NotContains(t, out.Assignments, "stage-1")
	assert.Equal(t, []EntityRef{
		{Kind: KindStage, ID: "stage-1"},
		{Kind: KindAssignment, ID: "stage-1"},
		{Kind: KindStage, ID: "stage-2"},
		{Kind: KindStage, ID: "stage-3"},
	}, changed)
	assert.Equal(t, []string{"stage-1"}, out.Retired)
}

func TestApply_RemovedStageIDIsNeverReused(t *testing.T) {
	g, _, err := Apply(sampleGraph(), RemoveStage{StageName: "Proposal"})
	require.NoError(t, err)

	g, changed, err := Apply(g, AddStage{Name: "Totally New"})
	require.NoError(t, err)
	require.NoError(t, g.Check())
	assert.Equal(t, []EntityRef{{Kind: KindStage, ID: "stage-3-2"}}, changed)

	g, _, err = Apply(g, RemoveStage{StageName: "Totally New"})
	require.NoError(t, err)
	g, changed, err = Apply(g, AddStage{Name: "Again"})
	require.NoError(t, err)
	require.NoError(t, g.Check())
	assert.Equal(t, []EntityRef{{Kind: KindStage, ID: "stage-3-3"}}, changed)
	assert.Equal(t, []string{"stage-3", "stage-3-2"}, g.Retired)
}

func TestApply_RemoveUnknownStage(t *testing.T) {
	_, _, err := Apply(sampleGraph(), RemoveStage{StageName: "Nope"})
	var unknown *UnknownStageError
	assert.True(t, errors.As(err, &unknown))
}

func TestApply_UnassignAgent(t *testing.T) {
	out, changed, err := Apply(sampleGraph(), UnassignAgent{StageName: "Proposal", AgentName: "Closer"})
	require.NoError(t, err)
	assert.NotContains(t, out.Assignments, "stage-3")
	assert.Equal(t, []EntityRef{{Kind: KindAssignment, ID: "stage-3"}}, changed)
	assert.Len(t, out.Agents, 2)
}

func TestApply_UnassignAgentErrors(t *testing.T) {
	g := sampleGraph()

	_, _, err := Apply(g, UnassignAgent{StageName: "Qualify"})
	var unknownAgent *UnknownAgentError
	require.True(t, errors.As(err, &unknownAgent))
	assert.Equal(t, "Qualify", unknownAgent.Stage)

	_, _, err = Apply(g, UnassignAgent{StageName: "Proposal", AgentName: "Scout"})
	assert.True(t, errors.As(err, &unknownAgent))

	_, _, err = Apply(g, UnassignAgent{StageName: "Nope"})
	var unknownStage *UnknownStageError
	assert.True(t, errors.As(err, &unknownStage))
}

func TestApply_RenameStageKeepsID(t *testing.T) {
	out, changed, err := Apply(sampleGraph(), RenameStage{StageName: "Qualify", NewName: "Qualification"})
	require.NoError(t, err)

	s, ok := out.Stage("stage-2")
	require.True(t, ok)
	assert.Equal(t, "Qualification", s.Name)
	assert.Equal(t, 2, s.Level)
	assert.Equal(t, []EntityRef{{Kind: KindStage, ID: "stage-2"}}, changed)
}

// --- Cross-cutting ---

func TestApply_DoesNotMutateInput(t *testing.T) {
	g := Layout(sampleGraph(), DefaultLayout())
	before := g.Clone()

	for _, a := range []Action{
		AddStage{Name: "Nurture", Position: intPtr(0)},
		AssignAgent{AgentName: "New Bot", StageName: "Qualify"},
		RemoveStage{StageName: "Proposal"},
		RenameStage{StageName: "Discovery", NewName: "Intro"},
	} {
		_, _, err := Apply(g, a)
		require.NoError(t, err)
	}
	if diff := cmp.Diff(before, g); diff != "" {
		t.Errorf("input graph mutated:\n%s", diff)
	}
}

func TestApply_RelayoutsLaidOutGraph(t *testing.T) {
	g := Layout(sampleGraph(), LayoutParams{StageSpacingPx: 250, AgentOffsetPx: 400})

	out, _, err := Apply(g, AddStage{Name: "Nurture", Position: intPtr(1)})
	require.NoError(t, err)
	for _, s := range out.Stages {
		assert.Equal(t, float64(s.Position)*250, s.Coordinates.X, s.ID)
	}

	out, _, err = Apply(out, AssignAgent{AgentName: "New Bot", StageName: "Nurture"})
	require.NoError(t, err)
	bot, _ := out.Agent("agent-new-bot")
	require.NotNil(t, bot.Coordinates)
	assert.Equal(t, Point{X: 250, Y: 400}, *bot.Coordinates)
}

func TestApply_NoTwoAssignmentsShareAStage(t *testing.T) {
	g := sampleGraph()
	var err error
	for _, name := range []string{"A", "B", "Scout", "A"} {
		g, _, err = Apply(g, AssignAgent{AgentName: name, StageName: "Discovery"})
		require.NoError(t, err)
	}
	assert.Equal(t, "agent-a", g.Assignments["stage-1"])
	assert.Len(t, g.Assignments, 2)
}
