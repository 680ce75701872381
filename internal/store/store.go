package store

import "context"

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Charts
	SaveChart(ctx context.Context, chart *Chart) error
	GetChart(ctx context.Context, id string) (*Chart, error)
	ListCharts(ctx context.Context, filter ChartFilter) ([]*Chart, error)
	DeleteChart(ctx context.Context, id string) error

	// History (append-only, written by SaveChart)
	ListRevisions(ctx context.Context, chartID string) ([]*Revision, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
