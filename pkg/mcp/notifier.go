package mcp

import (
	"context"
	"errors"

	"github.com/mark3labs/mcp-go/server"
)

// ChartNotifier pushes chart notifications to watching clients.
type ChartNotifier interface {
	Notify(ctx context.Context, chartID string, payload map[string]any) error
}

// sender is the subset of *server.MCPServer the notifier needs.
type sender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// MCPNotifier implements ChartNotifier using MCP session notifications.
type MCPNotifier struct {
	mcpServer sender
	sessions  *SessionRegistry
}

// NewMCPNotifier creates a notifier that pushes to registered sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry) *MCPNotifier {
	return &MCPNotifier{mcpServer: mcpServer, sessions: sessions}
}

// Notify sends payload to every session watching chartID.
// Best-effort: sessions that are gone are dropped from the registry.
func (n *MCPNotifier) Notify(_ context.Context, chartID string, payload map[string]any) error {
	var errs []error
	for _, sessionID := range n.sessions.SessionsFor(chartID) {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
