// Package sqlite implements pipeline.Store on an embedded SQLite database.
// All access goes through a single connection, which also serializes
// UpdateGraph calls.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store implements pipeline.Store using SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("pipeline: %s: %w", pragma, err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipeline_graphs (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    layout      TEXT,
    retired     TEXT NOT NULL DEFAULT '[]',
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pipeline_stages (
    graph_id TEXT NOT NULL REFERENCES pipeline_graphs(id) ON DELETE CASCADE,
    id       TEXT NOT NULL,
    position INTEGER NOT NULL,
    data     TEXT NOT NULL DEFAULT '{}',
    PRIMARY KEY (graph_id, id)
);

CREATE TABLE IF NOT EXISTS pipeline_agents (
    graph_id TEXT NOT NULL REFERENCES pipeline_graphs(id) ON DELETE CASCADE,
    id       TEXT NOT NULL,
    ord      INTEGER NOT NULL,
    data     TEXT NOT NULL DEFAULT '{}',
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
    payload    TEXT NOT NULL DEFAULT '{}',
    changed    TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pipeline_actions_graph ON pipeline_actions(graph_id, id);
`

// CreateSchema creates the pipeline tables if they don't exist.
func (s *Store) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

// DropSchema drops all pipeline tables.
func (s *Store) DropSchema(ctx context.Context) error {
	for _, table := range []string{
		"pipeline_actions", "pipeline_assignments", "pipeline_agents", "pipeline_stages", "pipeline_graphs",
	} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return err
		}
	}
	return nil
}
