// Package graph holds the flowchart node/connection model and its vertical auto-layout.
package graph

// NodeType classifies a flowchart node and selects its rendered shape.
type NodeType string

const (
	NodeTypeStart    NodeType = "start"
	NodeTypeEnd      NodeType = "end"
	NodeTypeProcess  NodeType = "process"
	NodeTypeDecision NodeType = "decision"
)

// ParseNodeType converts s to a NodeType. The second result is false when s
// is not one of the declared types; the returned value still carries s so
// callers may store it and let the renderer apply its unknown-type policy.
func ParseNodeType(s string) (NodeType, bool) {
	t := NodeType(s)
	return t, t.Known()
}

// Known reports whether t is one of the declared node types.
func (t NodeType) Known() bool {
	switch t {
	case NodeTypeStart, NodeTypeEnd, NodeTypeProcess, NodeTypeDecision:
		return true
	default:
		return false
	}
}

// Default node geometry.
const (
	DefaultWidth  = 150.0
	DefaultHeight = 60.0
)

// Default auto-layout parameters.
const (
	DefaultStartX  = 50.0
	DefaultStartY  = 50.0
	DefaultSpacing = 100.0
)

// Node is a labeled box in the flowchart. X and Y are the top-left corner.
type Node struct {
	ID     int      `json:"id"`
	Type   NodeType `json:"type"`
	Label  string   `json:"label"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`
}

// Connection is a directed, optionally labeled arrow between two node ids.
// The ids are not required to resolve; see the renderer's dangling policy.
type Connection struct {
	From  int    `json:"from"`
	To    int    `json:"to"`
	Label string `json:"label,omitempty"`
}

// NodeOption overrides a default on a node being added.
type NodeOption func(*Node)

// At places the node's top-left corner at (x, y).
func At(x, y float64) NodeOption {
	return func(n *Node) { n.X, n.Y = x, y }
}

// Size sets the node's box dimensions.
func Size(w, h float64) NodeOption {
	return func(n *Node) { n.Width, n.Height = w, h }
}

// Model is an ordered collection of nodes and connections.
// It is not safe for concurrent mutation.
type Model struct {
	nodes       []Node
	connections []Connection
	nextID      int
}

// New returns an empty model.
func New() *Model {
	return &Model{}
}

// AddNode appends a node with the next sequential id and returns that id.
// The type is not validated.
func (m *Model) AddNode(t NodeType, label string, opts ...NodeOption) int {
	n := Node{
		ID:     m.nextID,
		Type:   t,
		Label:  label,
		Width:  DefaultWidth,
		Height: DefaultHeight,
	}
	for _, opt := range opts {
		opt(&n)
	}
	m.nextID++
	m.nodes = append(m.nodes, n)
	return n.ID
}

// AddConnection appends a connection. Endpoint ids are not checked.
func (m *Model) AddConnection(from, to int, label string) {
	m.connections = append(m.connections, Connection{From: from, To: to, Label: label})
}

// Clear resets the model to its initial empty state, including the id counter.
func (m *Model) Clear() {
	m.nodes = nil
	m.connections = nil
	m.nextID = 0
}

// AutoLayout stacks nodes vertically in insertion order: every node gets
// x = startX and y = startY + index*spacing. Nothing else is touched.
func (m *Model) AutoLayout(startX, startY, spacing float64) {
	for i := range m.nodes {
		m.nodes[i].X = startX
		m.nodes[i].Y = startY + float64(i)*spacing
	}
}

// AutoLayoutDefault runs AutoLayout with (50, 50, 100).
func (m *Model) AutoLayoutDefault() {
	m.AutoLayout(DefaultStartX, DefaultStartY, DefaultSpacing)
}

// Nodes returns a copy of the nodes in insertion order.
func (m *Model) Nodes() []Node {
	out := make([]Node, len(m.nodes))
	copy(out, m.nodes)
	return out
}

// Connections returns a copy of the connections in insertion order.
func (m *Model) Connections() []Connection {
	out := make([]Connection, len(m.connections))
	copy(out, m.connections)
	return out
}

// Node looks up a node by id.
func (m *Model) Node(id int) (Node, bool) {
	for _, n := range m.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Len returns the number of nodes.
func (m *Model) Len() int { return len(m.nodes) }
