package pipeline

// samplePayload is a three-stage SaaS pipeline with two agents.
func samplePayload() *Payload {
	return &Payload{
		Pipeline: PipelineMeta{Name: "SaaS Sales", Description: "Inbound funnel"},
		Stages: []StageDescriptor{
			{Level: 3, Name: "Proposal", Outcome: "neutral", RequiresAction: true},
			{Level: 1, Name: "Discovery", Outcome: "neutral"},
			{Level: 2, Name: "Qualify", Outcome: "bogus"},
		},
		Agents: []AgentDescriptor{
			{Name: "Scout", Persona: "Researcher", CoreCapabilities: []string{"research"}, AssignedStages: []int{1, 2}},
			{Name: "Closer", Persona: "Negotiator", AssignedStages: []int{3}},
		},
		Assignments: map[string]string{"1": "Scout", "3": "closer"},
	}
}

// sampleGraph synthesizes samplePayload: stage-1 Discovery, stage-2
// Qualify, stage-3 Proposal; agent-scout bound to stage-1, agent-closer
// bound to stage-3.
func sampleGraph() *Graph {
	g, _, err := Synthesize(samplePayload())
	if err != nil {
		panic(err)
	}
	return g
}
