package postgres

import "context"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipeline_graphs (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    layout      JSONB,
    retired     JSONB NOT NULL DEFAULT '[]',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pipeline_stages (
    graph_id TEXT NOT NULL REFERENCES pipeline_graphs(id) ON DELETE CASCADE,
    id       TEXT NOT NULL,
    position INT  NOT NULL,
    data     JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (graph_id, id)
);

CREATE TABLE IF NOT EXISTS pipeline_agents (
    graph_id TEXT NOT NULL REFERENCES pipeline_graphs(id) ON DELETE CASCADE,
    id       TEXT NOT NULL,
    ord      INT  NOT NULL,
    data     JSONB NOT NULL DEFAULT '{}',
    PRIMARY KEY (graph_id, id)
);

CREATE TABLE IF NOT EXISTS pipeline_assignments (
    graph_id TEXT NOT NULL,
    stage_id TEXT NOT NULL,
    agent_id TEXT NOT NULL,
    PRIMARY KEY (graph_id, stage_id),
    FOREIGN KEY (graph_id, stage_id) REFERENCES pipeline_stages(graph_id, id) ON DELETE CASCADE,
    FOREIGN KEY (graph_id, agent_id) REFERENCES pipeline_agents(graph_id, id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS pipeline_actions (
    id         TEXT PRIMARY KEY,
    graph_id   TEXT NOT NULL REFERENCES pipeline_graphs(id) ON DELETE CASCADE,
    kind       TEXT NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}',
    changed    JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pipeline_stages_graph  ON pipeline_stages(graph_id, position);
CREATE INDEX IF NOT EXISTS idx_pipeline_agents_graph  ON pipeline_agents(graph_id, ord);
CREATE INDEX IF NOT EXISTS idx_pipeline_actions_graph ON pipeline_actions(graph_id, id);
`

// CreateSchema creates the pipeline tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schemaSQL)
	return err
}

// DropSchema drops all pipeline tables.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx,
		`DROP TABLE IF EXISTS pipeline_actions, pipeline_assignments, pipeline_agents, pipeline_stages, pipeline_graphs CASCADE;`)
	return err
}
