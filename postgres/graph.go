package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/meikuraledutech/pipeline"
)

// CreateGraph saves a full graph (stages, agents, assignments) in one
// transaction. A graph without an ID gets a generated UUID.
// Returns a copy of the graph with its ID filled in.
func (s *PGStore) CreateGraph(ctx context.Context, g *pipeline.Graph) (*pipeline.Graph, error) {
	if err := g.Check(); err != nil {
		return nil, err
	}
	g = g.Clone()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	layout, err := marshalLayout(g.Layout)
	if err != nil {
		return nil, err
	}
	retired, err := marshalRetired(g.Retired)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO pipeline_graphs (id, name, description, layout, retired) VALUES ($1, $2, $3, $4, $5)`,
		g.ID, g.Meta.Name, g.Meta.Description, layout, retired,
	); err != nil {
		return nil, fmt.Errorf("pipeline: insert graph: %w", err)
	}
	if err := writeEntities(ctx, tx, g); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: commit: %w", err)
	}
	return g, nil
}

// GetGraph retrieves a full graph by its ID.
// Returns nil, nil if the graph doesn't exist.
func (s *PGStore) GetGraph(ctx context.Context, graphID string) (*pipeline.Graph, error) {
	g, err := loadGraph(ctx, s.db, graphID, false)
	if errors.Is(err, pipeline.ErrGraphNotFound) {
		return nil, nil
	}
	return g, err
}

// DeleteGraph removes a graph and everything it owns.
// No error if the graphID doesn't exist.
func (s *PGStore) DeleteGraph(ctx context.Context, graphID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM pipeline_graphs WHERE id = $1`, graphID); err != nil {
		return fmt.Errorf("pipeline: delete graph: %w", err)
	}
	return nil
}

// UpdateGraph locks the graph row, hands the current graph to fn and
// replaces the stored entities with fn's result (replace semantics).
// Returns ErrGraphNotFound if the graph doesn't exist.
func (s *PGStore) UpdateGraph(ctx context.Context, graphID string, fn pipeline.MutateFunc) (*pipeline.Graph, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := loadGraph(ctx, tx, graphID, true)
	if err != nil {
		return nil, err
	}
	next, rec, err := fn(current)
	if err != nil {
		return nil, err
	}
	if err := next.Check(); err != nil {
		return nil, err
	}
	next.ID = graphID

	// Assignments cascade from stages and agents.
	if _, err := tx.Exec(ctx, `DELETE FROM pipeline_stages WHERE graph_id = $1`, graphID); err != nil {
		return nil, fmt.Errorf("pipeline: delete stages: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM pipeline_agents WHERE graph_id = $1`, graphID); err != nil {
		return nil, fmt.Errorf("pipeline: delete agents: %w", err)
	}
	if err := writeEntities(ctx, tx, next); err != nil {
		return nil, err
	}

	layout, err := marshalLayout(next.Layout)
	if err != nil {
		return nil, err
	}
	retired, err := marshalRetired(next.Retired)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE pipeline_graphs SET name = $1, description = $2, layout = $3, retired = $4, updated_at = NOW() WHERE id = $5`,
		next.Meta.Name, next.Meta.Description, layout, retired, graphID,
	); err != nil {
		return nil, fmt.Errorf("pipeline: update graph: %w", err)
	}

	if rec != nil {
		if err := insertAction(ctx, tx, graphID, rec); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pipeline: commit: %w", err)
	}
	return next, nil
}

// writeEntities inserts stages, agents and assignments in that order so
// the assignment foreign keys resolve.
func writeEntities(ctx context.Context, q querier, g *pipeline.Graph) error {
	for _, st := range g.Stages {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("pipeline: encode stage %s: %w", st.ID, err)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO pipeline_stages (graph_id, id, position, data) VALUES ($1, $2, $3, $4)`,
			g.ID, st.ID, st.Position, data,
		); err != nil {
			return fmt.Errorf("pipeline: insert stage %s: %w", st.ID, err)
		}
	}

	for i, a := range g.Agents {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("pipeline: encode agent %s: %w", a.ID, err)
		}
		if _, err := q.Exec(ctx,
			`INSERT INTO pipeline_agents (graph_id, id, ord, data) VALUES ($1, $2, $3, $4)`,
			g.ID, a.ID, i, data,
		); err != nil {
			return fmt.Errorf("pipeline: insert agent %s: %w", a.ID, err)
		}
	}

	for stageID, agentID := range g.Assignments {
		if _, err := q.Exec(ctx,
			`INSERT INTO pipeline_assignments (graph_id, stage_id, agent_id) VALUES ($1, $2, $3)`,
			g.ID, stageID, agentID,
		); err != nil {
			return fmt.Errorf("pipeline: insert assignment %s: %w", stageID, err)
		}
	}
	return nil
}

// loadGraph reads a graph; with lock set the graph row is held FOR UPDATE
// until the surrounding transaction ends.
func loadGraph(ctx context.Context, q querier, graphID string, lock bool) (*pipeline.Graph, error) {
	query := `SELECT name, description, layout, retired FROM pipeline_graphs WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	g := &pipeline.Graph{ID: graphID, Assignments: map[string]string{}}
	var layout, retired []byte
	if err := q.QueryRow(ctx, query, graphID).Scan(&g.Meta.Name, &g.Meta.Description, &layout, &retired); err != nil {
		if isNoRows(err) {
			return nil, pipeline.ErrGraphNotFound
		}
		return nil, fmt.Errorf("pipeline: get graph: %w", err)
	}
	if err := json.Unmarshal(retired, &g.Retired); err != nil {
		return nil, fmt.Errorf("pipeline: decode retired ids: %w", err)
	}
	if len(g.Retired) == 0 {
		g.Retired = nil
	}

	rows, err := q.Query(ctx,
		`SELECT data FROM pipeline_stages WHERE graph_id = $1 ORDER BY position`, graphID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: query stages: %w", err)
	}
	g.Stages, err = scanJSON[pipeline.Stage](rows)
	if err != nil {
		return nil, fmt.Errorf("pipeline: scan stages: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT data FROM pipeline_agents WHERE graph_id = $1 ORDER BY ord`, graphID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: query agents: %w", err)
	}
	g.Agents, err = scanJSON[pipeline.Agent](rows)
	if err != nil {
		return nil, fmt.Errorf("pipeline: scan agents: %w", err)
	}

	rows, err = q.Query(ctx,
		`SELECT stage_id, agent_id FROM pipeline_assignments WHERE graph_id = $1`, graphID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: query assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var stageID, agentID string
		if err := rows.Scan(&stageID, &agentID); err != nil {
			return nil, fmt.Errorf("pipeline: scan assignment: %w", err)
		}
		g.Assignments[stageID] = agentID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: rows assignments: %w", err)
	}

	// Slots are derived data; rebuild them from the stored spacing.
	if layout != nil {
		var p pipeline.LayoutParams
		if err := json.Unmarshal(layout, &p); err != nil {
			return nil, fmt.Errorf("pipeline: decode layout: %w", err)
		}
		g = pipeline.Layout(g, p)
	}
	return g, nil
}

// scanJSON decodes a single JSONB column per row and closes rows.
func scanJSON[T any](rows pgx.Rows) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func marshalLayout(p *pipeline.LayoutParams) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode layout: %w", err)
	}
	return data, nil
}

// marshalRetired always yields a JSON array; the column is NOT NULL.
func marshalRetired(ids []string) ([]byte, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode retired ids: %w", err)
	}
	return data, nil
}

// isNoRows checks if the error is a "no rows" error from pgx.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
