package mcp

import (
	"sort"
	"sync"
)

// SessionRegistry maps chart IDs to the MCP sessions watching them.
// Populated when a client calls flowchart.watch.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string]map[string]struct{} // chartID → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string]map[string]struct{})}
}

// Register adds a session to the watchers of a chart. Registering twice is a no-op.
func (r *SessionRegistry) Register(chartID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.watchers[chartID]
	if !ok {
		set = make(map[string]struct{})
		r.watchers[chartID] = set
	}
	set[sessionID] = struct{}{}
}

// SessionsFor returns the sessions watching a chart, sorted.
func (r *SessionRegistry) SessionsFor(chartID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.watchers[chartID]
	out := make([]string, 0, len(set))
	for sid := range set {
		out = append(out, sid)
	}
	sort.Strings(out)
	return out
}

// Remove drops a session from every chart it watches.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chartID, set := range r.watchers {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(r.watchers, chartID)
		}
	}
}
