package diagram

import (
	"fmt"
	"strconv"

	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
)

// CornerRadius is the corner radius of process (and fallback) rectangles.
const CornerRadius = 5.0

// ShapeKind is the drawable primitive chosen for a node.
type ShapeKind string

const (
	ShapeEllipse     ShapeKind = "ellipse"
	ShapeDiamond     ShapeKind = "diamond"
	ShapeRoundedRect ShapeKind = "rounded_rect"
)

// Point is a 2D coordinate in drawing units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an axis-aligned rectangle given by its top-left corner and size.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (b Box) Center() Point { return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2} }

// TopCenter returns the midpoint of the top edge.
func (b Box) TopCenter() Point { return Point{X: b.X + b.Width/2, Y: b.Y} }

// BottomCenter returns the midpoint of the bottom edge.
func (b Box) BottomCenter() Point { return Point{X: b.X + b.Width/2, Y: b.Y + b.Height} }

// Label is centered text.
type Label struct {
	Text string `json:"text"`
	At   Point  `json:"at"`
}

// Shape is the geometric description of one node.
// Center and RX/RY are set for ellipses, Points for diamonds and
// CornerRadius for rounded rectangles. Box is always the node's box.
type Shape struct {
	NodeID       int       `json:"node_id"`
	Kind         ShapeKind `json:"kind"`
	Box          Box       `json:"box"`
	Center       Point     `json:"center,omitempty"`
	RX           float64   `json:"rx,omitempty"`
	RY           float64   `json:"ry,omitempty"`
	Points       []Point   `json:"points,omitempty"`
	CornerRadius float64   `json:"corner_radius,omitempty"`
	Label        Label     `json:"label"`
}

// Line is a connection from the source's bottom-center to the target's top-center.
type Line struct {
	FromID int    `json:"from_id"`
	ToID   int    `json:"to_id"`
	From   Point  `json:"from"`
	To     Point  `json:"to"`
	Label  string `json:"label,omitempty"`
}

// Drawables is everything a presentation layer needs to draw a model.
type Drawables struct {
	Shapes []Shape `json:"shapes"`
	Lines  []Line  `json:"lines"`
}

// Bounds returns the smallest box containing every shape and line.
func (d *Drawables) Bounds() Box {
	if len(d.Shapes) == 0 && len(d.Lines) == 0 {
		return Box{}
	}
	minX, minY := 0.0, 0.0
	maxX, maxY := 0.0, 0.0
	first := true
	grow := func(x, y float64) {
		if first {
			minX, maxX, minY, maxY = x, x, y, y
			first = false
			return
		}
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	for _, s := range d.Shapes {
		grow(s.Box.X, s.Box.Y)
		grow(s.Box.X+s.Box.Width, s.Box.Y+s.Box.Height)
	}
	for _, l := range d.Lines {
		grow(l.From.X, l.From.Y)
		grow(l.To.X, l.To.Y)
	}
	return Box{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// DanglingPolicy decides what happens to connections whose endpoints do not resolve.
type DanglingPolicy int

const (
	// DanglingIgnore silently drops the connection.
	DanglingIgnore DanglingPolicy = iota
	// DanglingReport fails with ErrCodeDanglingConnection.
	DanglingReport
)

// UnknownTypePolicy decides how nodes and steps with undeclared types are handled.
type UnknownTypePolicy int

const (
	// UnknownFallback maps the node to the generic shape (or skips an unknown step).
	UnknownFallback UnknownTypePolicy = iota
	// UnknownReport fails with ErrCodeUnknownType.
	UnknownReport
)

// ParseDanglingPolicy accepts "ignore" or "report".
func ParseDanglingPolicy(s string) (DanglingPolicy, error) {
	switch s {
	case "", "ignore":
		return DanglingIgnore, nil
	case "report":
		return DanglingReport, nil
	}
	return DanglingIgnore, schema.NewErrorf(schema.ErrCodeValidation, "unknown dangling policy %q", s)
}

// ParseUnknownTypePolicy accepts "fallback" or "report".
func ParseUnknownTypePolicy(s string) (UnknownTypePolicy, error) {
	switch s {
	case "", "fallback", "skip":
		return UnknownFallback, nil
	case "report":
		return UnknownReport, nil
	}
	return UnknownFallback, schema.NewErrorf(schema.ErrCodeValidation, "unknown type policy %q", s)
}

// RenderOption configures ComputeDrawables.
type RenderOption func(*renderConfig)

type renderConfig struct {
	dangling DanglingPolicy
	unknown  UnknownTypePolicy
}

// WithDanglingPolicy sets how unresolved connection endpoints are handled.
func WithDanglingPolicy(p DanglingPolicy) RenderOption {
	return func(c *renderConfig) { c.dangling = p }
}

// WithUnknownTypePolicy sets how undeclared node types are handled.
func WithUnknownTypePolicy(p UnknownTypePolicy) RenderOption {
	return func(c *renderConfig) { c.unknown = p }
}

// ComputeDrawables turns a model snapshot into shapes and connection lines.
// Lines come first in connection order, then one shape per node in insertion order.
func ComputeDrawables(model *graph.Model, opts ...RenderOption) (*Drawables, error) {
	var cfg renderConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	nodes := model.Nodes()
	index := make(map[int]graph.Node, len(nodes))
	for _, n := range nodes {
		index[n.ID] = n
	}

	d := &Drawables{
		Shapes: make([]Shape, 0, len(nodes)),
		Lines:  make([]Line, 0),
	}

	var dangling []graph.Connection
	for _, c := range model.Connections() {
		from, okFrom := index[c.From]
		to, okTo := index[c.To]
		if !okFrom || !okTo {
			dangling = append(dangling, c)
			continue
		}
		d.Lines = append(d.Lines, Line{
			FromID: c.From,
			ToID:   c.To,
			From:   boxOf(from).BottomCenter(),
			To:     boxOf(to).TopCenter(),
			Label:  c.Label,
		})
	}
	if len(dangling) > 0 && cfg.dangling == DanglingReport {
		return nil, danglingError(dangling)
	}

	for _, n := range nodes {
		if !n.Type.Known() && cfg.unknown == UnknownReport {
			return nil, schema.NewErrorf(schema.ErrCodeUnknownType, "unknown node type %q", n.Type).
				WithNode(strconv.Itoa(n.ID))
		}
		d.Shapes = append(d.Shapes, shapeFor(n))
	}

	return d, nil
}

// shapeFor selects the primitive for a node from its type.
func shapeFor(n graph.Node) Shape {
	b := boxOf(n)
	s := Shape{
		NodeID: n.ID,
		Box:    b,
		Label:  Label{Text: n.Label, At: b.Center()},
	}

	switch n.Type {
	case graph.NodeTypeStart, graph.NodeTypeEnd:
		s.Kind = ShapeEllipse
		s.Center = b.Center()
		s.RX = b.Width / 2
		s.RY = b.Height / 2
	case graph.NodeTypeDecision:
		s.Kind = ShapeDiamond
		s.Points = []Point{
			b.TopCenter(),
			{X: b.X + b.Width, Y: b.Y + b.Height/2},
			b.BottomCenter(),
			{X: b.X, Y: b.Y + b.Height/2},
		}
	default: // process and anything unrecognized
		s.Kind = ShapeRoundedRect
		s.CornerRadius = CornerRadius
	}
	return s
}

func boxOf(n graph.Node) Box {
	return Box{X: n.X, Y: n.Y, Width: n.Width, Height: n.Height}
}

func danglingError(conns []graph.Connection) *schema.FlowError {
	refs := make([]string, 0, len(conns))
	for _, c := range conns {
		refs = append(refs, fmt.Sprintf("%d->%d", c.From, c.To))
	}
	msg := fmt.Sprintf("connection %s references a missing node", refs[0])
	if len(refs) > 1 {
		msg = fmt.Sprintf("%d connections reference missing nodes", len(refs))
	}
	return schema.NewError(schema.ErrCodeDanglingConnection, msg).
		WithDetails(map[string]any{"connections": refs})
}
