package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/meikuraledutech/pipeline"
)

// insertAction appends rec to the graph's action log. Missing IDs get a
// ULID so the log sorts by insertion time.
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
	payload := rec.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO pipeline_actions (id, graph_id, kind, payload, changed, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, graphID, rec.Kind, []byte(payload), changed, rec.CreatedAt,
	); err != nil {
		return fmt.Errorf("pipeline: insert action: %w", err)
	}
	return nil
}

// ListActions returns the action log of a graph, oldest first.
// Returns an empty slice (not nil) if none found.
func (s *PGStore) ListActions(ctx context.Context, graphID string) ([]pipeline.ActionRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, kind, payload, changed, created_at FROM pipeline_actions WHERE graph_id = $1 ORDER BY id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: list actions: %w", err)
	}
	defer rows.Close()

	records := []pipeline.ActionRecord{}
	for rows.Next() {
		rec := pipeline.ActionRecord{GraphID: graphID}
		var payload, changed []byte
		if err := rows.Scan(&rec.ID, &rec.Kind, &payload, &changed, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("pipeline: scan action: %w", err)
		}
		rec.Payload = payload
		if err := json.Unmarshal(changed, &rec.Changed); err != nil {
			return nil, fmt.Errorf("pipeline: decode changed: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pipeline: rows actions: %w", err)
	}
	return records, nil
}
