package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rendis/flowchart/internal/render"
	"github.com/rendis/flowchart/internal/store"
	"github.com/rendis/flowchart/internal/streaming"
)

// FlowchartServerDeps holds the dependencies for creating a FlowchartServer.
type FlowchartServerDeps struct {
	Store    store.Store // optional; chart tools report an error without it
	Hub      streaming.EventHub
	Renderer *render.Renderer
	Logger   *slog.Logger
	Version  string
}

// FlowchartServer wraps an MCP server with flowchart tool handlers.
type FlowchartServer struct {
	store     store.Store
	hub       streaming.EventHub
	renderer  *render.Renderer
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  ChartNotifier
	mcpServer *server.MCPServer
}

// NewFlowchartServer creates a new FlowchartServer with all tools registered.
func NewFlowchartServer(deps FlowchartServerDeps) (*FlowchartServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	renderer := deps.Renderer
	if renderer == nil {
		r, err := render.New(render.DefaultSettings(), logger)
		if err != nil {
			return nil, err
		}
		renderer = r
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowchartServer{
		store:    deps.Store,
		hub:      deps.Hub,
		renderer: renderer,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"flowchart",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowchart turns step lists into diagrams. Use flowchart.translate for Mermaid text, flowchart.render for svg/png/ascii/dot output, flowchart.trace to follow a step list with variables, flowchart.save and flowchart.list to manage stored charts, and flowchart.watch to be notified when a chart changes."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
// Chart events from the hub are forwarded to watching sessions meanwhile.
func (s *FlowchartServer) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.Forward(ctx); err != nil {
		return err
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// ServeSSE serves the MCP server over the SSE transport on addr until ctx is
// done. baseURL is the externally visible URL clients use for /message.
func (s *FlowchartServer) ServeSSE(ctx context.Context, addr, baseURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := s.Forward(ctx); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	sse := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))
	srv := &http.Server{Handler: sse, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("mcp sse listening", "addr", ln.Addr().String(), "base_url", baseURL)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = sse.Shutdown(shutdownCtx)
	// Open event streams never go idle; close them once the grace period ends.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		_ = srv.Close()
	}
	return nil
}

// Forward subscribes to the hub and pushes every chart event to the sessions
// watching that chart until ctx is done. It is a no-op without a hub.
func (s *FlowchartServer) Forward(ctx context.Context) error {
	if s.hub == nil {
		return nil
	}
	events, unsubscribe, err := s.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				payload := map[string]any{
					"chart_id":   ev.ChartID,
					"event_type": ev.EventType,
					"payload":    ev.Payload,
				}
				if err := s.notifier.Notify(ctx, ev.ChartID, payload); err != nil {
					s.logger.WarnContext(ctx, "notify watchers failed", "chart_id", ev.ChartID, "error", err)
				}
			}
		}
	}()
	return nil
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowchartServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowchartServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: translateTool(), Handler: s.handleTranslate},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: traceTool(), Handler: s.handleTrace},
		{Tool: saveTool(), Handler: s.handleSave},
		{Tool: listTool(), Handler: s.handleList},
		{Tool: watchTool(), Handler: s.handleWatch},
	}
}

// --- Tool definitions ---

func translateTool() mcp.Tool {
	return mcp.NewTool("flowchart.translate",
		mcp.WithDescription("Translate a step list into Mermaid flowchart syntax"),
		mcp.WithObject("steps", mcp.Required(), mcp.Description(`Step list: {"steps":[{"type":"input","text":"Input: n"},...]}`)),
		mcp.WithArray("highlight", mcp.Description("Step indexes to mark as visited")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("flowchart.render",
		mcp.WithDescription("Render a step list, a graph document or a stored chart"),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("mermaid", "svg", "png", "ascii", "dot"),
			mcp.Description("Output format; png is returned as an image"),
		),
		mcp.WithString("kind", mcp.Enum("steps", "graph"), mcp.Description("Shape of document (default: steps)")),
		mcp.WithObject("document", mcp.Description("Chart source; omit when chart_id is given")),
		mcp.WithString("chart_id", mcp.Description("ID of a stored chart to render")),
	)
}

func traceTool() mcp.Tool {
	return mcp.NewTool("flowchart.trace",
		mcp.WithDescription("Follow a step list from Start to End, evaluating conditions against vars"),
		mcp.WithObject("steps", mcp.Description("Step list; omit when chart_id is given")),
		mcp.WithString("chart_id", mcp.Description("ID of a stored steps chart; watchers are notified of the trace")),
		mcp.WithObject("vars", mcp.Description("Initial variables, visible to conditions as vars")),
		mcp.WithString("engine", mcp.Enum("expr", "cel"), mcp.Description("Condition language (default: expr)")),
		mcp.WithNumber("max_visits", mcp.Description("Times a single step may be entered before the trace fails")),
	)
}

func saveTool() mcp.Tool {
	return mcp.NewTool("flowchart.save",
		mcp.WithDescription("Validate and store a chart"),
		mcp.WithObject("document", mcp.Required(), mcp.Description("Chart source")),
		mcp.WithString("kind", mcp.Enum("steps", "graph"), mcp.Description("Shape of document (default: steps)")),
		mcp.WithString("name", mcp.Description("Chart name")),
		mcp.WithString("chart_id", mcp.Description("Existing chart to replace")),
	)
}

func listTool() mcp.Tool {
	return mcp.NewTool("flowchart.list",
		mcp.WithDescription("List stored charts"),
		mcp.WithObject("filter", mcp.Description("Filter criteria (kind, name, limit, offset)")),
	)
}

func watchTool() mcp.Tool {
	return mcp.NewTool("flowchart.watch",
		mcp.WithDescription("Receive notifications when a stored chart is saved, traced or deleted"),
		mcp.WithString("chart_id", mcp.Required(), mcp.Description("ID of the chart to watch")),
	)
}
