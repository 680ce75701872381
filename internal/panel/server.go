package panel

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/internal/streaming"
)

//go:embed templates static
var content embed.FS

// PanelDeps holds the dependencies for the panel server.
type PanelDeps struct {
	Store    store.Store
	Hub      streaming.EventHub
	Renderer *render.Renderer
	Logger   *slog.Logger
}

// PanelServer serves the chart browser and the flowchart dialog.
type PanelServer struct {
	deps   PanelDeps
	pages  map[string]*template.Template
	dialog *Dialog
}

// NewPanelServer creates a new PanelServer with parsed templates. The dialog
// is parsed here once and owned by the server for its whole lifetime.
func NewPanelServer(deps PanelDeps) *PanelServer {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	funcMap := template.FuncMap{
		"json":     toJSON,
		"timeAgo":  timeAgo,
		"truncate": truncate,
		"add":      add,
		"subtract": subtract,
	}

	base := template.Must(
		template.New("").Funcs(funcMap).ParseFS(content, "templates/base.html"),
	)

	// Each page clones the shared set so that its {{define "content"}}
	// doesn't collide with others.
	pageFiles := []string{
		"charts.html",
		"chart.html",
	}

	pages := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone := template.Must(base.Clone())
		pages[pf] = template.Must(clone.ParseFS(content, "templates/"+pf))
	}

	dialog, err := NewDialog(content)
	if err != nil {
		panic(err)
	}

	return &PanelServer{
		deps:   deps,
		pages:  pages,
		dialog: dialog,
	}
}

// Dialog returns the server-owned dialog handle.
func (s *PanelServer) Dialog() *Dialog { return s.dialog }

// Handler returns the HTTP handler for the panel routes.
func (s *PanelServer) Handler() http.Handler {
	mux := http.NewServeMux()

	staticFS, _ := fs.Sub(content, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	// Pages.
	mux.HandleFunc("GET /{$}", s.handleCharts)
	mux.HandleFunc("GET /charts/{id}", s.handleChart)
	mux.HandleFunc("GET /charts/{id}/dialog", s.handleDialog)

	// Exports.
	mux.HandleFunc("GET /charts/{id}/svg", s.exportHandler(render.FormatSVG))
	mux.HandleFunc("GET /charts/{id}/png", s.exportHandler(render.FormatPNG))
	mux.HandleFunc("GET /charts/{id}/mermaid", s.exportHandler(render.FormatMermaid))
	mux.HandleFunc("GET /charts/{id}/ascii", s.exportHandler(render.FormatASCII))
	mux.HandleFunc("GET /charts/{id}/dot", s.exportHandler(render.FormatDOT))

	// SSE stream.
	mux.HandleFunc("GET /sse/charts/{id}", s.handleSSEChart)

	// API.
	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("POST /api/charts", s.handleCreateChart)
	mux.HandleFunc("PUT /api/charts/{id}", s.handleUpdateChart)
	mux.HandleFunc("DELETE /api/charts/{id}", s.handleDeleteChart)
	mux.HandleFunc("GET /api/charts/{id}/revisions", s.handleRevisions)

	return withRequestID(mux)
}

// withRequestID tags every request context with a request id for the
// correlation log handler.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

// renderPage executes a page template by name.
func (s *PanelServer) renderPage(w http.ResponseWriter, r *http.Request, page string, data any) {
	tmpl, ok := s.pages[page]
	if !ok {
		s.deps.Logger.ErrorContext(r.Context(), "template not found", "page", page)
		http.Error(w, fmt.Sprintf("template %q not found", page), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base", data); err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "template render error", "page", page, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
