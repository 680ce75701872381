package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowchart/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/charts.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. the revision log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Charts ---

// SaveChart inserts a chart or replaces the document of an existing one and
// records a revision. An empty ID is filled with a fresh UUID; CreatedAt of an
// existing chart is preserved.
func (s *LibSQLStore) SaveChart(ctx context.Context, chart *Chart) error {
	if !chart.Kind.Valid() {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown chart kind %q", chart.Kind)
	}
	if !json.Valid(chart.Document) {
		return schema.NewError(schema.ErrCodeValidation, "chart document is not valid JSON")
	}
	if chart.ID == "" {
		chart.ID = uuid.New().String()
	}
	if chart.Name == "" {
		chart.Name = "untitled"
	}
	chart.CreatedAt = timeOrNow(chart.CreatedAt)
	chart.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save chart: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO charts (id, name, kind, document, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, kind=excluded.kind, document=excluded.document, updated_at=excluded.updated_at`,
		chart.ID, chart.Name, string(chart.Kind), string(chart.Document), chart.CreatedAt, chart.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert chart: %w", err)
	}

	if _, err := appendRevision(ctx, tx, chart.ID, chart.Document, chart.UpdatedAt); err != nil {
		return err
	}

	// Re-read created_at so callers see the stored value on update.
	if err := tx.QueryRowContext(ctx,
		`SELECT created_at FROM charts WHERE id = ?`, chart.ID,
	).Scan(&chart.CreatedAt); err != nil {
		return fmt.Errorf("read chart created_at: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chart: %w", err)
	}
	return nil
}

func (s *LibSQLStore) GetChart(ctx context.Context, id string) (*Chart, error) {
	c := &Chart{}
	var kind, doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, document, created_at, updated_at FROM charts WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &kind, &doc, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("chart", id)
	}
	if err != nil {
		return nil, err
	}
	c.Kind = ChartKind(kind)
	c.Document = json.RawMessage(doc)
	return c, nil
}

func (s *LibSQLStore) ListCharts(ctx context.Context, filter ChartFilter) ([]*Chart, error) {
	var where []string
	var args []any

	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Name != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.Name+"%")
	}

	query := "SELECT id, name, kind, document, created_at, updated_at FROM charts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_at DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var charts []*Chart
	for rows.Next() {
		c := &Chart{}
		var kind, doc string
		if err := rows.Scan(&c.ID, &c.Name, &kind, &doc, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.Kind = ChartKind(kind)
		c.Document = json.RawMessage(doc)
		charts = append(charts, c)
	}
	return charts, rows.Err()
}

func (s *LibSQLStore) DeleteChart(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete chart: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chart_revisions WHERE chart_id = ?`, id); err != nil {
		return fmt.Errorf("delete revisions: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM charts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "chart", id); err != nil {
		return err
	}
	return tx.Commit()
}

// ListRevisions returns a chart's document history ordered by sequence ASC.
func (s *LibSQLStore) ListRevisions(ctx context.Context, chartID string) ([]*Revision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chart_id, sequence, document, created_at FROM chart_revisions
		 WHERE chart_id = ? ORDER BY sequence ASC`, chartID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []*Revision
	for rows.Next() {
		r := &Revision{}
		var doc string
		if err := rows.Scan(&r.ChartID, &r.Sequence, &doc, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Document = json.RawMessage(doc)
		revs = append(revs, r)
	}
	return revs, rows.Err()
}

// --- Helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var _ Store = (*LibSQLStore)(nil)
