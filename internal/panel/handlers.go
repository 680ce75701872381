package panel

import (
	"html/template"
	"net/http"

	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/pkg/schema"
)

// --- Page data types ---

type pageData struct {
	Title  string
	Active string
}

type chartsData struct {
	pageData
	Charts []*store.Chart
	Kind   string
	Query  string
	Limit  int
	Offset int
}

type chartData struct {
	pageData
	Chart    *store.Chart
	Dialog   template.HTML
	Warnings []schema.ValidationIssue
}

// --- Page handlers ---

func (s *PanelServer) handleCharts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind := r.URL.Query().Get("kind")
	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	charts, err := s.deps.Store.ListCharts(ctx, store.ChartFilter{
		Kind:   store.ChartKind(kind),
		Name:   query,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "list charts failed", "error", err)
	}

	s.renderPage(w, r, "charts.html", chartsData{
		pageData: pageData{Title: "Charts", Active: "charts"},
		Charts:   charts,
		Kind:     kind,
		Query:    query,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *PanelServer) handleChart(w http.ResponseWriter, r *http.Request) {
	chart, r, ok := s.loadChart(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	out, err := s.deps.Renderer.Render(ctx, sourceOf(chart), render.FormatMermaid)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	dialog, err := s.dialog.HTML(DialogData{ChartID: chart.ID, Title: chart.Name, Mermaid: string(out.Body)})
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "dialog render error", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	s.renderPage(w, r, "chart.html", chartData{
		pageData: pageData{Title: chart.Name, Active: "charts"},
		Chart:    chart,
		Dialog:   dialog,
		Warnings: out.Warnings,
	})
}

// handleDialog serves the dialog fragment alone, for pages that open it
// without a full reload.
func (s *PanelServer) handleDialog(w http.ResponseWriter, r *http.Request) {
	chart, r, ok := s.loadChart(w, r)
	if !ok {
		return
	}

	out, err := s.deps.Renderer.Render(r.Context(), sourceOf(chart), render.FormatMermaid)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dialog.Render(w, DialogData{ChartID: chart.ID, Title: chart.Name, Mermaid: string(out.Body)}); err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "dialog render error", "error", err)
	}
}

// loadChart fetches the chart named by the {id} path value. A missing chart
// is logged and answered with 404. The returned request carries the chart id
// in its context.
func (s *PanelServer) loadChart(w http.ResponseWriter, r *http.Request) (*store.Chart, *http.Request, bool) {
	id := r.PathValue("id")
	r = r.WithContext(logging.WithChartID(r.Context(), id))

	chart, err := s.deps.Store.GetChart(r.Context(), id)
	if err != nil {
		s.writeFlowError(w, r, err)
		return nil, r, false
	}
	return chart, r, true
}

func sourceOf(c *store.Chart) render.Source {
	return render.Source{Kind: render.Kind(c.Kind), Document: c.Document}
}
