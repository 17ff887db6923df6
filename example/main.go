package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meikuraledutech/pipeline"
	"github.com/meikuraledutech/pipeline/postgres"
)

const saasPayload = `{
  "pipeline": {"pipeline_name": "SaaS Sales", "pipeline_description": "Inbound SaaS funnel"},
  "stages": [
    {"stage_level": 3, "stage_name": "Proposal", "won_status": "neutral", "requires_action": true},
    {"stage_level": 1, "stage_name": "Discovery", "won_status": "neutral"},
    {"stage_level": 2, "stage_name": "Qualify", "won_status": "neutral", "requires_action": true},
    {"stage_level": 4, "stage_name": "Closed Won", "won_status": "won"}
  ],
  "agents": [
    {"name": "Scout", "persona": "Curious researcher", "core_capabilities": ["research"], "assigned_stages": [1, 2]},
    {"name": "Closer", "persona": "Confident negotiator", "core_capabilities": ["negotiation"], "assigned_stages": [3, 4]}
  ],
  "stage_agent_assignments": {"1": "Scout", "3": "Closer", "9": "Ghost"}
}`

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	// Wire up the postgres implementation behind the Store interface.
	var store pipeline.Store = postgres.New(pool)

	if err := store.CreateSchema(ctx); err != nil {
		log.Fatalf("schema: %v", err)
	}
	fmt.Println("schema created")

	// ── Synthesize from a one-shot AI response ────────────────────────
	payload, err := pipeline.DecodePayload([]byte(saasPayload))
	if err != nil {
		log.Fatalf("decode: %v", err)
	}
	g, warnings, err := pipeline.Synthesize(payload)
	if err != nil {
		log.Fatalf("synthesize: %v", err)
	}
	for _, w := range warnings {
		fmt.Println("warning:", w.Error())
	}

	created, err := store.CreateGraph(ctx, pipeline.Layout(g, pipeline.DefaultLayout()))
	if err != nil {
		log.Fatalf("create graph: %v", err)
	}
	fmt.Println("pipeline created")
	printJSON(created)

	// ── Conversational edits, one at a time ───────────────────────────
	nurture := 1
	for _, action := range []pipeline.Action{
		pipeline.AddStage{Name: "Nurture", Position: &nurture},
		pipeline.AssignAgent{AgentName: "New Bot", StageName: "Nurture", Role: "primary"},
		pipeline.AssignAgent{AgentName: "Closer", StageName: "Atlantis"},
		pipeline.OptimizePipeline{},
	} {
		_, err := store.UpdateGraph(ctx, created.ID, func(cur *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
			next, changed, err := pipeline.Apply(cur, action)
			if err != nil {
				return nil, nil, err
			}
			payload, err := pipeline.EncodeAction(action)
			if err != nil {
				return nil, nil, err
			}
			fmt.Printf("%s changed %d entities\n", action.Kind(), len(changed))
			return next, &pipeline.ActionRecord{Kind: action.Kind(), Payload: payload, Changed: changed}, nil
		})
		if err != nil {
			fmt.Printf("%s rejected: %v\n", action.Kind(), err)
		}
	}

	// ── Reset layout with wider spacing ───────────────────────────────
	wide, err := store.UpdateGraph(ctx, created.ID, func(cur *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
		return pipeline.Layout(cur, pipeline.LayoutParams{StageSpacingPx: 300, AgentOffsetPx: 400}), nil, nil
	})
	if err != nil {
		log.Fatalf("layout: %v", err)
	}
	fmt.Println("\npipeline after edits:")
	printJSON(wide)

	actions, err := store.ListActions(ctx, created.ID)
	if err != nil {
		log.Fatalf("list actions: %v", err)
	}
	fmt.Printf("\naction log (%d):\n", len(actions))
	printJSON(actions)

	// ── Cleanup ───────────────────────────────────────────────────────
	if err := store.DeleteGraph(ctx, created.ID); err != nil {
		log.Fatalf("delete: %v", err)
	}
	fmt.Println("\npipeline deleted")
}

func printJSON(v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}
