// Package streaming fans chart change notifications out to live viewers,
// such as an open dialog page that redraws when its chart is saved.
package streaming

import "context"

// Chart event types.
const (
	EventChartSaved   = "chart.saved"
	EventChartDeleted = "chart.deleted"
	EventChartTraced  = "chart.traced"
)

// ChartEvent is a real-time notification about a stored chart.
type ChartEvent struct {
	ChartID   string `json:"chart_id"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	ChartID    string   `json:"chart_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for chart events.
type EventHub interface {
	Publish(ctx context.Context, event ChartEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan ChartEvent, func(), error)
}
