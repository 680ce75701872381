package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/internal/streaming"
	"github.com/rendis/flowchart/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	mu     sync.Mutex
	charts map[string]*store.Chart
	order  []string
	nextID int
}

func newMockStore() *mockStore {
	return &mockStore{charts: make(map[string]*store.Chart)}
}

func (m *mockStore) SaveChart(_ context.Context, chart *store.Chart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if chart.ID == "" {
		m.nextID++
		chart.ID = fmt.Sprintf("chart-%d", m.nextID)
	}
	if chart.Name == "" {
		chart.Name = "untitled"
	}
	chart.UpdatedAt = time.Now().UTC()
	if _, ok := m.charts[chart.ID]; !ok {
		m.order = append(m.order, chart.ID)
	}
	cp := *chart
	m.charts[chart.ID] = &cp
	return nil
}

func (m *mockStore) GetChart(_ context.Context, id string) (*store.Chart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.charts[id]; ok {
		return c, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "chart %s not found", id)
}

func (m *mockStore) ListCharts(_ context.Context, filter store.ChartFilter) ([]*store.Chart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*store.Chart, 0)
	for _, id := range m.order {
		c := m.charts[id]
		if filter.Kind != "" && c.Kind != filter.Kind {
			continue
		}
		if filter.Name != "" && !strings.Contains(c.Name, filter.Name) {
			continue
		}
		result = append(result, c)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// --- Fixtures ---

const countdownSteps = `{"steps":[
	{"type":"input","text":"read n"},
	{"type":"condition","text":"n > 0?","expr":"vars.n > 0","noPath":"step3"},
	{"type":"process","text":"n = n - 1","expr":".n -= 1"},
	{"type":"output","text":"done"}
]}`

const loopSteps = `{"steps":[
	{"type":"condition","text":"again?","expr":"vars.n > 0","yesPath":"step1"},
	{"type":"process","text":"n = n - 1","expr":".n -= 1"},
	{"type":"condition","text":"loop","expr":"true","yesPath":"step0"}
]}`

func stepsArg(t *testing.T, raw string) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func newServer(t *testing.T, ms *mockStore, hub streaming.EventHub) *FlowchartServer {
	t.Helper()
	deps := FlowchartServerDeps{Hub: hub}
	if ms != nil {
		deps.Store = ms
	}
	s, err := NewFlowchartServer(deps)
	require.NoError(t, err)
	return s
}

// --- Helper ---

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	require.False(t, result.IsError, resultText(t, result))
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), target))
}

// --- Tests ---

func TestTranslateTool(t *testing.T) {
	s := newServer(t, nil, nil)

	req := buildRequest("flowchart.translate", map[string]any{
		"steps":     stepsArg(t, countdownSteps),
		"highlight": []any{float64(0), float64(3)},
	})
	result, err := s.handleTranslate(context.Background(), req)
	require.NoError(t, err)

	var out struct {
		Mermaid string `json:"mermaid"`
	}
	unmarshalResult(t, result, &out)
	assert.True(t, strings.HasPrefix(out.Mermaid, "graph TD"))
	assert.Contains(t, out.Mermaid, "class step0,step3 visited")
}

func TestTranslateToolAcceptsJSONText(t *testing.T) {
	s := newServer(t, nil, nil)

	req := buildRequest("flowchart.translate", map[string]any{"steps": countdownSteps})
	result, err := s.handleTranslate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestTranslateToolDescribedExample(t *testing.T) {
	prop, ok := translateTool().InputSchema.Properties["steps"].(map[string]any)
	require.True(t, ok)
	desc, _ := prop["description"].(string)
	example := strings.Replace(strings.TrimPrefix(desc, "Step list: "), ",...]", "]", 1)

	s := newServer(t, nil, nil)
	result, err := s.handleTranslate(context.Background(),
		buildRequest("flowchart.translate", map[string]any{"steps": example}))
	require.NoError(t, err)

	var out struct {
		Mermaid  string                   `json:"mermaid"`
		Warnings []schema.ValidationIssue `json:"warnings"`
	}
	unmarshalResult(t, result, &out)
	assert.Contains(t, out.Mermaid, "step0[/Input: n/]")
	assert.Empty(t, out.Warnings)
}

func TestTranslateToolErrors(t *testing.T) {
	s := newServer(t, nil, nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing steps", map[string]any{}, "steps is required"},
		{"bad highlight", map[string]any{"steps": countdownSteps, "highlight": []any{"x"}}, "invalid step index"},
		{"highlight not array", map[string]any{"steps": countdownSteps, "highlight": "0"}, "array of step indexes"},
		{"invalid steps", map[string]any{"steps": map[string]any{"steps": []any{map[string]any{"type": "input"}}}}, "VALIDATION_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleTranslate(context.Background(), buildRequest("flowchart.translate", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tc.want)
		})
	}
}

func TestRenderToolInline(t *testing.T) {
	s := newServer(t, nil, nil)

	for _, format := range []string{"mermaid", "svg", "ascii", "dot"} {
		t.Run(format, func(t *testing.T) {
			req := buildRequest("flowchart.render", map[string]any{
				"format":   format,
				"document": stepsArg(t, countdownSteps),
			})
			result, err := s.handleRender(context.Background(), req)
			require.NoError(t, err)

			var out struct {
				Format string `json:"format"`
				Body   string `json:"body"`
			}
			unmarshalResult(t, result, &out)
			assert.Equal(t, format, out.Format)
			assert.NotEmpty(t, out.Body)
		})
	}
}

func TestRenderToolStoredChart(t *testing.T) {
	ms := newMockStore()
	require.NoError(t, ms.SaveChart(context.Background(), &store.Chart{
		ID: "c1", Kind: store.ChartKindSteps, Document: json.RawMessage(countdownSteps),
	}))
	s := newServer(t, ms, nil)

	req := buildRequest("flowchart.render", map[string]any{"format": "svg", "chart_id": "c1"})
	result, err := s.handleRender(context.Background(), req)
	require.NoError(t, err)

	var out struct {
		Body string `json:"body"`
	}
	unmarshalResult(t, result, &out)
	assert.Contains(t, out.Body, "<svg")
}

func TestRenderToolErrors(t *testing.T) {
	s := newServer(t, newMockStore(), nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing format", map[string]any{"document": countdownSteps}, "format is required"},
		{"unknown format", map[string]any{"format": "gif", "document": countdownSteps}, "unknown format"},
		{"no source", map[string]any{"format": "svg"}, "one of document or chart_id"},
		{"missing chart", map[string]any{"format": "svg", "chart_id": "nope"}, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleRender(context.Background(), buildRequest("flowchart.render", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tc.want)
		})
	}
}

func TestTraceTool(t *testing.T) {
	s := newServer(t, nil, nil)

	for _, engine := range []string{"expr", "cel"} {
		t.Run(engine, func(t *testing.T) {
			req := buildRequest("flowchart.trace", map[string]any{
				"steps":  stepsArg(t, countdownSteps),
				"vars":   map[string]any{"n": float64(1)},
				"engine": engine,
			})
			result, err := s.handleTrace(context.Background(), req)
			require.NoError(t, err)

			var out struct {
				Path []struct {
					Index  int    `json:"index"`
					Branch string `json:"branch"`
				} `json:"path"`
				Vars    map[string]any `json:"vars"`
				Mermaid string         `json:"mermaid"`
			}
			unmarshalResult(t, result, &out)
			require.Len(t, out.Path, 4)
			assert.Equal(t, "yes", out.Path[1].Branch)
			assert.Equal(t, 3, out.Path[3].Index)
			assert.Equal(t, 0.0, out.Vars["n"])
			assert.Contains(t, out.Mermaid, "class step0,step1,step2,step3 visited")
		})
	}
}

func TestTraceToolMaxVisits(t *testing.T) {
	s := newServer(t, nil, nil)

	req := buildRequest("flowchart.trace", map[string]any{
		"steps":      stepsArg(t, loopSteps),
		"vars":       map[string]any{"n": float64(100)},
		"max_visits": float64(3),
	})
	result, err := s.handleTrace(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "VALIDATION_ERROR")
	assert.Contains(t, resultText(t, result), "node step0")
}

func TestTraceToolStoredChartPublishes(t *testing.T) {
	ms := newMockStore()
	require.NoError(t, ms.SaveChart(context.Background(), &store.Chart{
		ID: "c1", Kind: store.ChartKindSteps, Document: json.RawMessage(countdownSteps),
	}))
	hub := streaming.NewMemoryHub()
	defer hub.Close()
	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{ChartID: "c1"})
	require.NoError(t, err)
	defer cancel()

	s := newServer(t, ms, hub)
	req := buildRequest("flowchart.trace", map[string]any{"chart_id": "c1", "vars": map[string]any{"n": float64(0)}})
	result, err := s.handleTrace(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.IsError, resultText(t, result))

	select {
	case ev := <-events:
		assert.Equal(t, streaming.EventChartTraced, ev.EventType)
		assert.Equal(t, map[string]any{"visited": []int{0, 1, 3}}, ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("no trace event")
	}
}

func TestTraceToolErrors(t *testing.T) {
	ms := newMockStore()
	require.NoError(t, ms.SaveChart(context.Background(), &store.Chart{
		ID: "g1", Kind: store.ChartKindGraph, Document: json.RawMessage(`{"nodes":[]}`),
	}))
	s := newServer(t, ms, nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no source", map[string]any{}, "one of steps or chart_id"},
		{"graph chart", map[string]any{"chart_id": "g1"}, "only steps charts"},
		{"unknown engine", map[string]any{"steps": countdownSteps, "engine": "lua"}, "unknown condition engine"},
		{"bad condition", map[string]any{"steps": countdownSteps, "vars": map[string]any{"n": "x"}, "engine": "cel"}, "EXPRESSION_ERROR"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result, err := s.handleTrace(context.Background(), buildRequest("flowchart.trace", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tc.want)
		})
	}
}

func TestSaveAndListTools(t *testing.T) {
	ms := newMockStore()
	hub := streaming.NewMemoryHub()
	defer hub.Close()
	events, cancel, err := hub.Subscribe(context.Background(), streaming.EventFilter{})
	require.NoError(t, err)
	defer cancel()

	s := newServer(t, ms, hub)

	result, err := s.handleSave(context.Background(), buildRequest("flowchart.save", map[string]any{
		"name":     "countdown",
		"document": stepsArg(t, countdownSteps),
	}))
	require.NoError(t, err)
	var saved struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	}
	unmarshalResult(t, result, &saved)
	assert.Equal(t, "chart-1", saved.ID)
	assert.Equal(t, "steps", saved.Kind)

	select {
	case ev := <-events:
		assert.Equal(t, streaming.EventChartSaved, ev.EventType)
		assert.Equal(t, "chart-1", ev.ChartID)
	case <-time.After(time.Second):
		t.Fatal("no save event")
	}

	_, err = s.handleSave(context.Background(), buildRequest("flowchart.save", map[string]any{
		"name":     "login",
		"kind":     "graph",
		"document": map[string]any{"nodes": []any{map[string]any{"type": "start", "label": "Start"}}},
	}))
	require.NoError(t, err)

	result, err = s.handleList(context.Background(), buildRequest("flowchart.list", map[string]any{
		"filter": map[string]any{"kind": "graph"},
	}))
	require.NoError(t, err)
	var listed struct {
		Charts []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"charts"`
	}
	unmarshalResult(t, result, &listed)
	require.Len(t, listed.Charts, 1)
	assert.Equal(t, "login", listed.Charts[0].Name)

	result, err = s.handleList(context.Background(), buildRequest("flowchart.list", map[string]any{}))
	require.NoError(t, err)
	unmarshalResult(t, result, &listed)
	assert.Len(t, listed.Charts, 2)
}

func TestSaveToolErrors(t *testing.T) {
	tests := []struct {
		name  string
		store bool
		args  map[string]any
		want  string
	}{
		{"no store", false, map[string]any{"document": countdownSteps}, "no chart store"},
		{"missing document", true, map[string]any{}, "document is required"},
		{"invalid document", true, map[string]any{"document": `{"steps":[{"text":"x"}]}`}, "invalid chart"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ms *mockStore
			if tc.store {
				ms = newMockStore()
			}
			s := newServer(t, ms, nil)
			result, err := s.handleSave(context.Background(), buildRequest("flowchart.save", tc.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tc.want)
		})
	}
}

// --- Watch ---

type fakeSession struct {
	id string
	ch chan mcp.JSONRPCNotification
}

func (f *fakeSession) Initialize()       {}
func (f *fakeSession) Initialized() bool { return true }
func (f *fakeSession) SessionID() string { return f.id }
func (f *fakeSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return f.ch
}

type recordedNotification struct {
	sessionID string
	params    map[string]any
}

type fakeSender struct {
	mu   sync.Mutex
	gone map[string]bool
	sent []recordedNotification
}

func (f *fakeSender) SendNotificationToSpecificClient(sessionID, _ string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[sessionID] {
		return server.ErrSessionNotFound
	}
	f.sent = append(f.sent, recordedNotification{sessionID: sessionID, params: params})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestWatchTool(t *testing.T) {
	s := newServer(t, nil, nil)

	session := &fakeSession{id: "sess-1", ch: make(chan mcp.JSONRPCNotification, 1)}
	ctx := s.mcpServer.WithContext(context.Background(), session)

	result, err := s.handleWatch(ctx, buildRequest("flowchart.watch", map[string]any{"chart_id": "c1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"sess-1"}, s.sessions.SessionsFor("c1"))

	result, err = s.handleWatch(context.Background(), buildRequest("flowchart.watch", map[string]any{"chart_id": "c1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestNotifierDropsGoneSessions(t *testing.T) {
	sessions := NewSessionRegistry()
	sessions.Register("c1", "live")
	sessions.Register("c1", "gone")
	sender := &fakeSender{gone: map[string]bool{"gone": true}}
	n := &MCPNotifier{mcpServer: sender, sessions: sessions}

	require.NoError(t, n.Notify(context.Background(), "c1", map[string]any{"event_type": "chart.saved"}))
	require.Equal(t, 1, sender.count())
	assert.Equal(t, "live", sender.sent[0].sessionID)
	assert.Equal(t, []string{"live"}, sessions.SessionsFor("c1"))
}

func TestForwardPushesHubEvents(t *testing.T) {
	hub := streaming.NewMemoryHub()
	defer hub.Close()
	s := newServer(t, nil, hub)
	sender := &fakeSender{}
	s.notifier = &MCPNotifier{mcpServer: sender, sessions: s.sessions}
	s.sessions.Register("c1", "sess-1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Forward(ctx))

	require.NoError(t, hub.Publish(ctx, streaming.ChartEvent{ChartID: "c2", EventType: streaming.EventChartSaved}))
	require.NoError(t, hub.Publish(ctx, streaming.ChartEvent{ChartID: "c1", EventType: streaming.EventChartDeleted}))

	assert.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, "sess-1", sender.sent[0].sessionID)
	assert.Equal(t, streaming.EventChartDeleted, sender.sent[0].params["event_type"])
}
