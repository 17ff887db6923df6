package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meikuraledutech/pipeline"
)

// newTestStore connects to DATABASE_URL and recreates the schema.
// Tests are skipped when no database is configured.
func newTestStore(t *testing.T) *PGStore {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL is not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	s := New(pool)
	require.NoError(t, s.DropSchema(ctx))
	require.NoError(t, s.CreateSchema(ctx))
	return s
}

func sampleGraph(t *testing.T) *pipeline.Graph {
	t.Helper()
	g, _, err := pipeline.Synthesize(&pipeline.Payload{
		Stages: []pipeline.StageDescriptor{
			{Level: 2, Name: "Close"},
			{Level: 1, Name: "Discovery"},
			{Level: 1, Name: "Qualify"},
		},
		Agents:      []pipeline.AgentDescriptor{{Name: "Scout"}},
		Assignments: map[string]string{"1": "Scout"},
	})
	require.NoError(t, err)
	return pipeline.Layout(g, pipeline.DefaultLayout())
}

func TestPGStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateGraph(ctx, sampleGraph(t))
	require.NoError(t, err)

	got, err := s.GetGraph(ctx, created.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("round trip mismatch (-created +got):\n%s", diff)
	}
}

func TestPGStore_UpdateGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, err := s.CreateGraph(ctx, sampleGraph(t))
	require.NoError(t, err)

	action := pipeline.AssignAgent{AgentName: "New Bot", StageName: "Close"}
	updated, err := s.UpdateGraph(ctx, created.ID, func(cur *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
		next, changed, err := pipeline.Apply(cur, action)
		return next, &pipeline.ActionRecord{Kind: action.Kind(), Changed: changed}, err
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-new-bot", updated.Assignments["stage-2"])

	records, err := s.ListActions(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, pipeline.KindAssignAgent, records[0].Kind)
}

func TestPGStore_RetiredIDsPersist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, err := s.CreateGraph(ctx, sampleGraph(t))
	require.NoError(t, err)

	for _, a := range []pipeline.Action{
		pipeline.RemoveStage{StageName: "Close"},
		pipeline.AddStage{Name: "Negotiation"},
	} {
		_, err := s.UpdateGraph(ctx, created.ID, func(cur *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
			next, _, err := pipeline.Apply(cur, a)
			return next, nil, err
		})
		require.NoError(t, err)
	}

	got, err := s.GetGraph(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"stage-2"}, got.Retired)
	assert.Equal(t, "stage-2-2", got.Stages[len(got.Stages)-1].ID)
}

func TestPGStore_MissingGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetGraph(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = s.UpdateGraph(ctx, "nope", func(cur *pipeline.Graph) (*pipeline.Graph, *pipeline.ActionRecord, error) {
		return cur, nil, nil
	})
	assert.ErrorIs(t, err, pipeline.ErrGraphNotFound)
}
