package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/meikuraledutech/pipeline"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// CreateGraph saves a full graph in one transaction. A graph without an ID
// gets a generated UUID.
func (s *Store) CreateGraph(ctx context.Context, g *pipeline.Graph) (*pipeline.Graph, error) {
	if err := g.Check(); err != nil {
		return nil, err
	}
	g = g.Clone()
	if g.ID == "" {
		g.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback()

	layout, err := marshalLayout(g.Layout)
	if err != nil {
		return nil, err
	}
	retired, err := marshalRetired(g.Retired)
	if err != nil {
		return nil, err
	}
	ts := now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pipeline_graphs (id, name, description, layout, retired, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Meta.Name, g.Meta.Description, layout, retired, ts, ts,
	); err != nil {
		return nil, fmt.Errorf("pipeline: insert graph: %w", err)
	}
	if err := writeEntities(ctx, tx, g); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pipeline: commit: %w", err)
	}
	return g, nil
}

// GetGraph returns nil, nil if the graph doesn't exist.
func (s *Store) GetGraph(ctx context.Context, graphID string) (*pipeline.Graph, error) {
	g, err := loadGraph(ctx, s.db, graphID)
	if errors.Is(err, pipeline.ErrGraphNotFound) {
		return nil, nil
	}
	return g, err
}

// DeleteGraph is a no-op for unknown ids.
func (s *Store) DeleteGraph(ctx context.Context, graphID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_graphs WHERE id = ?`, graphID); err != nil {
		return fmt.Errorf("pipeline: delete graph: %w", err)
	}
	return nil
}

// UpdateGraph replaces the stored entities of a graph with fn's result.
// The single connection keeps concurrent updates strictly sequential.
func (s *Store) UpdateGraph(ctx context.Context, graphID string, fn pipeline.MutateFunc) (*pipeline.Graph, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: begin tx: %w", err)
	}
	defer tx.Rollback()

	current, err := loadGraph(ctx, tx, graphID)
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

	for _, stmt := range []string{
		`DELETE FROM pipeline_assignments WHERE graph_id = ?`,
		`DELETE FROM pipeline_stages WHERE graph_id = ?`,
		`DELETE FROM pipeline_agents WHERE graph_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, graphID); err != nil {
			return nil, fmt.Errorf("pipeline: clear graph: %w", err)
		}
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
	if _, err := tx.ExecContext(ctx,
		`UPDATE pipeline_graphs SET name = ?, description = ?, layout = ?, retired = ?, updated_at = ? WHERE id = ?`,
		next.Meta.Name, next.Meta.Description, layout, retired, now(), graphID,
	); err != nil {
		return nil, fmt.Errorf("pipeline: update graph: %w", err)
	}

	if rec != nil {
		if err := insertAction(ctx, tx, graphID, rec); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("pipeline: commit: %w", err)
	}
	return next, nil
}

// ListActions returns the action log of a graph, oldest first.
func (s *Store) ListActions(ctx context.Context, graphID string) ([]pipeline.ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, payload, changed, created_at FROM pipeline_actions WHERE graph_id = ? ORDER BY id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list actions: %w", err)
	}
	defer rows.Close()

	records := []pipeline.ActionRecord{}
	for rows.Next() {
		rec := pipeline.ActionRecord{GraphID: graphID}
		var payload, changed, created string
		if err := rows.Scan(&rec.ID, &rec.Kind, &payload, &changed, &created); err != nil {
			return nil, fmt.Errorf("pipeline: scan action: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		if err := json.Unmarshal([]byte(changed), &rec.Changed); err != nil {
			return nil, fmt.Errorf("pipeline: decode changed: %w", err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("pipeline: parse created_at: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: rows actions: %w", err)
	}
	return records, nil
}

func insertAction(ctx context.Context, q querier, graphID string, rec *pipeline.ActionRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.GraphID = graphID

	changed, err := json.Marshal(rec.Changed)
	if err != nil {
		return fmt.Errorf("pipeline: encode changed: %w", err)
	}
	payload := string(rec.Payload)
	if payload == "" {
		payload = "{}"
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO pipeline_actions (id, graph_id, kind, payload, changed, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, graphID, rec.Kind, payload, string(changed), rec.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fmt.Errorf("pipeline: insert action: %w", err)
	}
	return nil
}

func writeEntities(ctx context.Context, q querier, g *pipeline.Graph) error {
	for _, st := range g.Stages {
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("pipeline: encode stage %s: %w", st.ID, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO pipeline_stages (graph_id, id, position, data) VALUES (?, ?, ?, ?)`,
			g.ID, st.ID, st.Position, string(data),
		); err != nil {
			return fmt.Errorf("pipeline: insert stage %s: %w", st.ID, err)
		}
	}
	for i, a := range g.Agents {
		data, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("pipeline: encode agent %s: %w", a.ID, err)
		}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO pipeline_agents (graph_id, id, ord, data) VALUES (?, ?, ?, ?)`,
			g.ID, a.ID, i, string(data),
		); err != nil {
			return fmt.Errorf("pipeline: insert agent %s: %w", a.ID, err)
		}
	}
	for stageID, agentID := range g.Assignments {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO pipeline_assignments (graph_id, stage_id, agent_id) VALUES (?, ?, ?)`,
			g.ID, stageID, agentID,
		); err != nil {
			return fmt.Errorf("pipeline: insert assignment %s: %w", stageID, err)
		}
	}
	return nil
}

func loadGraph(ctx context.Context, q querier, graphID string) (*pipeline.Graph, error) {
	g := &pipeline.Graph{ID: graphID, Assignments: map[string]string{}}
	var layout sql.NullString
	var retired string
	err := q.QueryRowContext(ctx,
		`SELECT name, description, layout, retired FROM pipeline_graphs WHERE id = ?`, graphID,
	).Scan(&g.Meta.Name, &g.Meta.Description, &layout, &retired)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pipeline.ErrGraphNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: get graph: %w", err)
	}
	if err := json.Unmarshal([]byte(retired), &g.Retired); err != nil {
		return nil, fmt.Errorf("pipeline: decode retired ids: %w", err)
	}
	if len(g.Retired) == 0 {
		g.Retired = nil
	}

	if g.Stages, err = queryJSON[pipeline.Stage](ctx, q,
		`SELECT data FROM pipeline_stages WHERE graph_id = ? ORDER BY position`, graphID); err != nil {
		return nil, fmt.Errorf("pipeline: load stages: %w", err)
	}
	if g.Agents, err = queryJSON[pipeline.Agent](ctx, q,
		`SELECT data FROM pipeline_agents WHERE graph_id = ? ORDER BY ord`, graphID); err != nil {
		return nil, fmt.Errorf("pipeline: load agents: %w", err)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT stage_id, agent_id FROM pipeline_assignments WHERE graph_id = ?`, graphID)
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

	if layout.Valid {
		var p pipeline.LayoutParams
		if err := json.Unmarshal([]byte(layout.String), &p); err != nil {
			return nil, fmt.Errorf("pipeline: decode layout: %w", err)
		}
		g = pipeline.Layout(g, p)
	}
	return g, nil
}

func queryJSON[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// marshalLayout returns nil (stored as NULL) for a graph never laid out.
func marshalLayout(p *pipeline.LayoutParams) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("pipeline: encode layout: %w", err)
	}
	return string(data), nil
}

func marshalRetired(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("pipeline: encode retired ids: %w", err)
	}
	return string(data), nil
}
