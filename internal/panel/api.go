package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/internal/streaming"
)

const maxBodyBytes = 1 << 20

// exportHandler serves a stored chart in one format. PNG is sent as an
// attachment named flowchart.png.
func (s *PanelServer) exportHandler(format render.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chart, r, ok := s.loadChart(w, r)
		if !ok {
			return
		}

		out, err := s.deps.Renderer.Render(r.Context(), sourceOf(chart), format)
		if err != nil {
			s.writeFlowError(w, r, err)
			return
		}

		w.Header().Set("Content-Type", format.ContentType())
		if format == render.FormatPNG {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", diagram.ExportFileName))
		}
		w.Write(out.Body)
	}
}

// handleTranslate converts a posted step list to Mermaid text.
// ?highlight=0,2 marks visited steps.
func (s *PanelServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeBodyError(w, err, "read body")
		return
	}

	highlight, err := parseIndexes(r.URL.Query().Get("highlight"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.deps.Renderer.Translate(raw, highlight)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mermaid":  string(out.Body),
		"warnings": out.Warnings,
	})
}

type chartBody struct {
	Name     string          `json:"name"`
	Kind     store.ChartKind `json:"kind"`
	Document json.RawMessage `json:"document"`
}

// handleCreateChart validates and stores a new chart.
func (s *PanelServer) handleCreateChart(w http.ResponseWriter, r *http.Request) {
	s.saveChart(w, r, "", http.StatusCreated)
}

// handleUpdateChart replaces the document of an existing chart.
func (s *PanelServer) handleUpdateChart(w http.ResponseWriter, r *http.Request) {
	_, r, ok := s.loadChart(w, r)
	if !ok {
		return
	}
	s.saveChart(w, r, r.PathValue("id"), http.StatusOK)
}

func (s *PanelServer) saveChart(w http.ResponseWriter, r *http.Request, id string, status int) {
	ctx := r.Context()

	var body chartBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeBodyError(w, err, "invalid JSON")
		return
	}
	if body.Kind == "" {
		body.Kind = store.ChartKindSteps
	}
	if len(body.Document) == 0 {
		writeError(w, http.StatusBadRequest, "document is required")
		return
	}

	_, warnings, err := s.deps.Renderer.Model(render.Source{Kind: render.Kind(body.Kind), Document: body.Document})
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	chart := &store.Chart{ID: id, Name: body.Name, Kind: body.Kind, Document: body.Document}
	if err := s.deps.Store.SaveChart(ctx, chart); err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	ctx = logging.WithChartID(ctx, chart.ID)
	s.deps.Logger.InfoContext(ctx, "chart saved", "name", chart.Name, "kind", chart.Kind)
	s.publish(r, streaming.ChartEvent{ChartID: chart.ID, EventType: streaming.EventChartSaved,
		Payload: map[string]any{"name": chart.Name}})

	writeJSON(w, status, map[string]any{
		"id":       chart.ID,
		"name":     chart.Name,
		"kind":     chart.Kind,
		"warnings": warnings,
	})
}

// handleDeleteChart removes a chart and its history.
func (s *PanelServer) handleDeleteChart(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	r = r.WithContext(logging.WithChartID(r.Context(), id))

	if err := s.deps.Store.DeleteChart(r.Context(), id); err != nil {
		s.writeFlowError(w, r, err)
		return
	}

	s.deps.Logger.InfoContext(r.Context(), "chart deleted")
	s.publish(r, streaming.ChartEvent{ChartID: id, EventType: streaming.EventChartDeleted})
	writeJSON(w, http.StatusOK, map[string]string{"ok": "true", "id": id})
}

// handleRevisions lists a chart's document history.
func (s *PanelServer) handleRevisions(w http.ResponseWriter, r *http.Request) {
	chart, r, ok := s.loadChart(w, r)
	if !ok {
		return
	}
	revs, err := s.deps.Store.ListRevisions(r.Context(), chart.ID)
	if err != nil {
		s.writeFlowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, revs)
}

func (s *PanelServer) publish(r *http.Request, event streaming.ChartEvent) {
	if s.deps.Hub == nil {
		return
	}
	if err := s.deps.Hub.Publish(r.Context(), event); err != nil {
		s.deps.Logger.WarnContext(r.Context(), "publish chart event failed", "error", err)
	}
}

// writeBodyError answers 413 when a request body passed maxBodyBytes and
// 400 for anything else wrong with it.
func writeBodyError(w http.ResponseWriter, err error, prefix string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		return
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", prefix, err))
}

// parseIndexes parses a comma-separated list of step indexes.
func parseIndexes(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid step index %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}
