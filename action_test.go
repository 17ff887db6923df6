package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAction(t *testing.T) {
	tests := []struct {
		body string
		want Action
	}{
		{`{"type":"add_stage","name":"Nurture","position":1}`, AddStage{Name: "Nurture", Position: intPtr(1)}},
		{`{"type":"add_stage","name":"Nurture"}`, AddStage{Name: "Nurture"}},
		{`{"type":"assign_agent","agent_name":"New Bot","stage_name":"Discovery","role":"primary"}`,
			AssignAgent{AgentName: "New Bot", StageName: "Discovery", Role: "primary"}},
		{`{"type":"optimize_pipeline"}`, OptimizePipeline{}},
		{`{"type":"remove_stage","stage_name":"Qualify"}`, RemoveStage{StageName: "Qualify"}},
		{`{"type":"unassign_agent","stage_name":"Qualify"}`, UnassignAgent{StageName: "Qualify"}},
		{`{"type":"rename_stage","stage_name":"Qualify","new_name":"Vet"}`, RenameStage{StageName: "Qualify", NewName: "Vet"}},
	}
	for _, tt := range tests {
		t.Run(tt.want.Kind(), func(t *testing.T) {
			got, err := DecodeAction([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeAction_Rejects(t *testing.T) {
	for _, body := range []string{
		`{"type":"delete_everything"}`,
		`{}`,
		`not json`,
		`{"type":"add_stage","position":"first"}`,
	} {
		_, err := DecodeAction([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidAction, body)
	}
}

func TestEncodeAction_CarriesType(t *testing.T) {
	a := AssignAgent{AgentName: "New Bot", StageName: "Discovery", Role: "primary"}
	data, err := EncodeAction(a)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"assign_agent","agent_name":"New Bot","stage_name":"Discovery","role":"primary"}`, string(data))

	back, err := DecodeAction(data)
	require.NoError(t, err)
	assert.Equal(t, a, back)
}
