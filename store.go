package pipeline

import (
	"context"
	"encoding/json"
	"time"
)

// ActionRecord is one applied action in a graph's edit log.
type ActionRecord struct {
	ID        string          `json:"id"`
	GraphID   string          `json:"graph_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Changed   []EntityRef     `json:"changed"`
	CreatedAt time.Time       `json:"created_at"`
}

// MutateFunc derives the next graph from the current one. Returning an
// error aborts the update and leaves the stored graph untouched.
type MutateFunc func(current *Graph) (next *Graph, rec *ActionRecord, err error)

// Store defines the contract for persisting pipeline graphs.
// The engine never calls a Store; the owning application does.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Graphs
	CreateGraph(ctx context.Context, g *Graph) (*Graph, error)
	GetGraph(ctx context.Context, graphID string) (*Graph, error)
	DeleteGraph(ctx context.Context, graphID string) error

	// UpdateGraph runs fn under a per-graph lock and stores its result,
	// plus rec when non-nil. Concurrent updates of one graph are serialized.
	UpdateGraph(ctx context.Context, graphID string, fn MutateFunc) (*Graph, error)

	// Action log
	ListActions(ctx context.Context, graphID string) ([]ActionRecord, error)
}
