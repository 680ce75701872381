package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/flowchart/pkg/schema"
)

// RevisionLog provides history operations on top of a LibSQLStore.
type RevisionLog struct {
	store *LibSQLStore
}

// NewRevisionLog wraps a LibSQLStore to provide history operations.
func NewRevisionLog(s *LibSQLStore) *RevisionLog {
	return &RevisionLog{store: s}
}

// appendRevision writes the next revision of chartID inside tx. The sequence
// is per chart and starts at 1.
func appendRevision(ctx context.Context, tx *sql.Tx, chartID string, doc json.RawMessage, at time.Time) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM chart_revisions WHERE chart_id = ?`, chartID,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("get next revision: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chart_revisions (chart_id, sequence, document, created_at) VALUES (?, ?, ?, ?)`,
		chartID, seq, string(doc), at,
	); err != nil {
		return 0, fmt.Errorf("insert revision: %w", err)
	}
	return seq, nil
}

// Revisions returns the history of a chart. Returns an error if sequence gaps
// are detected.
func (rl *RevisionLog) Revisions(ctx context.Context, chartID string) ([]*Revision, error) {
	revs, err := rl.store.ListRevisions(ctx, chartID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}

	for i, r := range revs {
		expected := int64(i + 1)
		if r.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"revision gap in chart %s: expected %d, got %d", chartID, expected, r.Sequence)
		}
	}
	return revs, nil
}

// Restore saves the document of revision seq as the chart's current document,
// which itself becomes a new revision.
func (rl *RevisionLog) Restore(ctx context.Context, chartID string, seq int64) (*Chart, error) {
	chart, err := rl.store.GetChart(ctx, chartID)
	if err != nil {
		return nil, err
	}

	var doc string
	err = rl.store.DB().QueryRowContext(ctx,
		`SELECT document FROM chart_revisions WHERE chart_id = ? AND sequence = ?`, chartID, seq,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("revision", fmt.Sprintf("%s#%d", chartID, seq))
	}
	if err != nil {
		return nil, err
	}

	chart.Document = json.RawMessage(doc)
	if err := rl.store.SaveChart(ctx, chart); err != nil {
		return nil, err
	}
	return chart, nil
}
