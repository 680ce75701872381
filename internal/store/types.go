package store

import (
	"encoding/json"
	"time"
)

// ChartKind tells which document shape a chart holds.
type ChartKind string

const (
	// ChartKindSteps holds a schema.StepList.
	ChartKindSteps ChartKind = "steps"
	// ChartKindGraph holds a graph.Document.
	ChartKindGraph ChartKind = "graph"
)

// Valid reports whether k is a known kind.
func (k ChartKind) Valid() bool {
	return k == ChartKindSteps || k == ChartKindGraph
}

// Chart is a saved diagram source.
type Chart struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Kind      ChartKind       `json:"kind"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ChartFilter specifies criteria for listing charts.
type ChartFilter struct {
	Kind   ChartKind `json:"kind,omitempty"`
	Name   string    `json:"name,omitempty"` // substring match
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Revision is one entry in a chart's document history.
type Revision struct {
	ChartID   string          `json:"chart_id"`
	Sequence  int64           `json:"sequence"`
	Document  json.RawMessage `json:"document"`
	CreatedAt time.Time       `json:"created_at"`
}
