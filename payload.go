package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

// Payload is the one-shot AI response a pipeline is synthesized from.
// Nil Stages or Agents means the field was missing.
type Payload struct {
	Pipeline    PipelineMeta      `json:"pipeline"`
	Stages      []StageDescriptor `json:"stages"`
	Agents      []AgentDescriptor `json:"agents"`
	Assignments map[string]string `json:"stage_agent_assignments"` // stage level → agent name
}

// PipelineMeta is the payload header.
type PipelineMeta struct {
	Name        string `json:"pipeline_name"`
	Description string `json:"pipeline_description"`
}

// StageDescriptor describes one stage. Level orders stages but is neither
// unique nor contiguous.
type StageDescriptor struct {
	Level          int    `json:"stage_level"`
	Name           string `json:"stage_name"`
	Description    string `json:"stage_description"`
	Outcome        string `json:"won_status"`
	RequiresAction bool   `json:"requires_action"`
}

// AgentDescriptor describes one agent. Name is the only cross-reference key.
type AgentDescriptor struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Persona          string   `json:"persona"`
	CoreCapabilities []string `json:"core_capabilities"`
	Specialties      []string `json:"specialties"`
	Instructions     []string `json:"instructions"`
	CoreInstructions string   `json:"core_instructions"`
	UseCases         []string `json:"use_cases"`
	AssignedStages   []int    `json:"assigned_stages"`
}

// payloadSchema checks shape only; semantic gaps are handled by Synthesize.
const payloadSchema = `{
  "type": "object",
  "required": ["stages", "agents"],
  "properties": {
    "pipeline": {
      "type": "object",
      "properties": {
        "pipeline_name": {"type": "string"},
        "pipeline_description": {"type": "string"}
      }
    },
    "stages": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["stage_level", "stage_name"],
        "properties": {
          "stage_level": {"type": "integer"},
          "stage_name": {"type": "string"},
          "stage_description": {"type": "string"},
          "won_status": {"type": "string"},
          "requires_action": {"type": "boolean"}
        }
      }
    },
    "agents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string"},
          "description": {"type": "string"},
          "persona": {"type": "string"},
          "core_capabilities": {"type": "array", "items": {"type": "string"}},
          "specialties": {"type": "array", "items": {"type": "string"}},
          "instructions": {"type": "array", "items": {"type": "string"}},
          "core_instructions": {"type": "string"},
          "use_cases": {"type": "array", "items": {"type": "string"}},
          "assigned_stages": {"type": "array", "items": {"type": "integer"}}
        }
      }
    },
    "stage_agent_assignments": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var compiledPayloadSchema = mustCompile(payloadSchema)

func mustCompile(schema string) *jsonschema.Schema {
	s, err := jsonschema.NewCompiler().Compile([]byte(schema))
	if err != nil {
		panic(fmt.Sprintf("pipeline: compile payload schema: %v", err))
	}
	return s
}

// DecodePayload parses and shape-checks a raw AI response. Any violation
// is reported as a *SynthesisError.
func DecodePayload(data []byte) (*Payload, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &SynthesisError{Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if obj, ok := raw.(map[string]any); ok {
		for _, field := range []string{"stages", "agents"} {
			if v, present := obj[field]; !present || v == nil {
				return nil, &SynthesisError{Field: field}
			}
		}
	}
	if result := compiledPayloadSchema.Validate(raw); !result.IsValid() {
		return nil, &SynthesisError{Reason: fmt.Sprintf("payload shape: %s", result.Error())}
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &SynthesisError{Reason: fmt.Sprintf("decode payload: %v", err)}
	}
	return &p, nil
}
