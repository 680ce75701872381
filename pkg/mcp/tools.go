package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowchart/internal/expressions"
	"github.com/rendis/flowchart/internal/logging"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/internal/streaming"
	"github.com/rendis/flowchart/internal/trace"
	"github.com/rendis/flowchart/pkg/schema"
)

// handleTranslate converts a step list to Mermaid text.
func (s *FlowchartServer) handleTranslate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, ok := rawArg(req, "steps")
	if !ok {
		return mcp.NewToolResultError("steps is required"), nil
	}
	highlight, err := intsArg(req, "highlight")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	out, err := s.renderer.Translate(raw, highlight)
	if err != nil {
		return toolError("translate failed", err), nil
	}
	return marshalResult(map[string]any{
		"mermaid":  string(out.Body),
		"warnings": out.Warnings,
	})
}

// handleRender renders an inline document or a stored chart.
func (s *FlowchartServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	format, err := render.ParseFormat(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	src, ctx, errResult := s.sourceArg(ctx, req)
	if errResult != nil {
		return errResult, nil
	}

	out, err := s.renderer.Render(ctx, src, format)
	if err != nil {
		return toolError("render failed", err), nil
	}

	if format == render.FormatPNG {
		encoded := base64.StdEncoding.EncodeToString(out.Body)
		return mcp.NewToolResultImage(warningText(out.Warnings), encoded, format.ContentType()), nil
	}
	return marshalResult(map[string]any{
		"format":   out.Format,
		"body":     string(out.Body),
		"warnings": out.Warnings,
	})
}

// handleTrace walks a step list and returns the path with the highlighted diagram.
func (s *FlowchartServer) handleTrace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chartID := req.GetString("chart_id", "")
	raw, ok := rawArg(req, "steps")
	if !ok && chartID == "" {
		return mcp.NewToolResultError("one of steps or chart_id is required"), nil
	}
	if !ok {
		src, c, errResult := s.storedSource(ctx, chartID)
		if errResult != nil {
			return errResult, nil
		}
		if src.Kind != render.KindSteps {
			return mcp.NewToolResultError(fmt.Sprintf("chart %s is a %s chart; only steps charts can be traced", chartID, src.Kind)), nil
		}
		raw, ctx = src.Document, c
	}

	list, warnings, err := s.renderer.Steps(raw)
	if err != nil {
		return toolError("invalid steps", err), nil
	}

	cond, err := expressions.NewConditionEngine(req.GetString("engine", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	walker := trace.NewWalker(cond,
		trace.WithMaxVisits(req.GetInt("max_visits", trace.DefaultMaxVisits)),
		trace.WithLogger(s.logger),
	)

	res, err := walker.Walk(ctx, list.Steps, mcp.ParseStringMap(req, "vars", nil))
	if err != nil {
		return toolError("trace failed", err), nil
	}

	out, err := s.renderer.Translate(raw, res.Visited())
	if err != nil {
		return toolError("translate failed", err), nil
	}

	if chartID != "" {
		s.publish(ctx, streaming.ChartEvent{ChartID: chartID, EventType: streaming.EventChartTraced,
			Payload: map[string]any{"visited": res.Visited()}})
	}

	return marshalResult(map[string]any{
		"path":     res.Path,
		"vars":     res.Vars,
		"mermaid":  string(out.Body),
		"warnings": warnings,
	})
}

// handleSave validates and stores a chart.
func (s *FlowchartServer) handleSave(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no chart store configured"), nil
	}
	raw, ok := rawArg(req, "document")
	if !ok {
		return mcp.NewToolResultError("document is required"), nil
	}
	kind := store.ChartKind(req.GetString("kind", string(store.ChartKindSteps)))

	_, warnings, err := s.renderer.Model(render.Source{Kind: render.Kind(kind), Document: raw})
	if err != nil {
		return toolError("invalid chart", err), nil
	}

	chart := &store.Chart{
		ID:       req.GetString("chart_id", ""),
		Name:     req.GetString("name", ""),
		Kind:     kind,
		Document: raw,
	}
	if err := s.store.SaveChart(ctx, chart); err != nil {
		return toolError("failed to store chart", err), nil
	}

	ctx = logging.WithChartID(ctx, chart.ID)
	s.logger.InfoContext(ctx, "chart saved", "name", chart.Name, "kind", chart.Kind)
	s.publish(ctx, streaming.ChartEvent{ChartID: chart.ID, EventType: streaming.EventChartSaved,
		Payload: map[string]any{"name": chart.Name}})

	return marshalResult(map[string]any{
		"id":       chart.ID,
		"name":     chart.Name,
		"kind":     chart.Kind,
		"warnings": warnings,
	})
}

// handleList lists stored charts.
func (s *FlowchartServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no chart store configured"), nil
	}
	filter := mcp.ParseStringMap(req, "filter", nil)

	cf := store.ChartFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if kind, ok := filter["kind"].(string); ok {
		cf.Kind = store.ChartKind(kind)
	}
	if name, ok := filter["name"].(string); ok {
		cf.Name = name
	}

	charts, err := s.store.ListCharts(ctx, cf)
	if err != nil {
		return toolError("query failed", err), nil
	}

	type summary struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Kind      store.ChartKind `json:"kind"`
		UpdatedAt string          `json:"updated_at"`
	}
	out := make([]summary, 0, len(charts))
	for _, c := range charts {
		out = append(out, summary{ID: c.ID, Name: c.Name, Kind: c.Kind, UpdatedAt: c.UpdatedAt.UTC().Format(time.RFC3339)})
	}
	return marshalResult(map[string]any{"charts": out})
}

// handleWatch registers the calling session for a chart's events.
func (s *FlowchartServer) handleWatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chartID, err := req.RequireString("chart_id")
	if err != nil {
		return mcp.NewToolResultError("chart_id is required"), nil
	}
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return mcp.NewToolResultError("watch requires a client session"), nil
	}
	s.sessions.Register(chartID, session.SessionID())
	s.logger.DebugContext(logging.WithChartID(ctx, chartID), "session watching chart", "session_id", session.SessionID())
	return marshalResult(map[string]any{"chart_id": chartID, "watching": true})
}

// --- Internal helpers ---

// sourceArg reads the chart source from chart_id or from kind and document.
func (s *FlowchartServer) sourceArg(ctx context.Context, req mcp.CallToolRequest) (render.Source, context.Context, *mcp.CallToolResult) {
	if chartID := req.GetString("chart_id", ""); chartID != "" {
		return s.storedSource(ctx, chartID)
	}
	raw, ok := rawArg(req, "document")
	if !ok {
		return render.Source{}, ctx, mcp.NewToolResultError("one of document or chart_id is required")
	}
	kind := render.Kind(req.GetString("kind", string(render.KindSteps)))
	return render.Source{Kind: kind, Document: raw}, ctx, nil
}

func (s *FlowchartServer) storedSource(ctx context.Context, chartID string) (render.Source, context.Context, *mcp.CallToolResult) {
	if s.store == nil {
		return render.Source{}, ctx, mcp.NewToolResultError("no chart store configured")
	}
	ctx = logging.WithChartID(ctx, chartID)
	chart, err := s.store.GetChart(ctx, chartID)
	if err != nil {
		return render.Source{}, ctx, toolError("chart lookup failed", err)
	}
	return render.Source{Kind: render.Kind(chart.Kind), Document: chart.Document}, ctx, nil
}

func (s *FlowchartServer) publish(ctx context.Context, event streaming.ChartEvent) {
	if s.hub == nil {
		return
	}
	if err := s.hub.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "publish chart event failed", "error", err)
	}
}

// rawArg returns an argument as raw JSON. String values are taken as JSON text.
func rawArg(req mcp.CallToolRequest, key string) ([]byte, bool) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return nil, false
	}
	if str, isStr := v.(string); isStr {
		return []byte(str), str != ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// intsArg reads an array of non-negative integers.
func intsArg(req mcp.CallToolRequest, key string) ([]int, error) {
	v, ok := req.GetArguments()[key]
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of step indexes", key)
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n := -1
		switch val := item.(type) {
		case float64:
			if val == float64(int(val)) {
				n = int(val)
			}
		case int:
			n = val
		case string:
			if i, err := strconv.Atoi(val); err == nil {
				n = i
			}
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid step index %v", item)
		}
		out = append(out, n)
	}
	return out, nil
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// toolError reports err as a tool error, keeping the flow error code and node.
func toolError(prefix string, err error) *mcp.CallToolResult {
	var fe *schema.FlowError
	if errors.As(err, &fe) {
		msg := fmt.Sprintf("%s: [%s] %s", prefix, fe.Code, fe.Message)
		if fe.NodeID != "" {
			msg += " (node " + fe.NodeID + ")"
		}
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

func warningText(warnings []schema.ValidationIssue) string {
	if len(warnings) == 0 {
		return "rendered"
	}
	raw, _ := json.Marshal(map[string]any{"warnings": warnings})
	return string(raw)
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
