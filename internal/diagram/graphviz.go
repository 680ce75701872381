package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-graphviz"
)

// ExportFileName is the default file name for PNG exports.
const ExportFileName = "flowchart.png"

// pointsPerInch converts drawing units (treated as points) to graphviz inches.
const pointsPerInch = 72.0

// ToDOT converts drawables into a Graphviz DOT graph with every node pinned
// at its computed position, so neato reproduces the layout instead of
// computing its own. Graphviz's y axis points up, hence the negation.
func ToDOT(d *Drawables) string {
	var buf bytes.Buffer
	buf.WriteString("digraph flowchart {\n")
	buf.WriteString("  bgcolor=\"white\";\n")
	buf.WriteString("  splines=line;\n")
	buf.WriteString("  node [fixedsize=true, fontname=\"Helvetica\", fontsize=12, style=filled, fillcolor=white];\n")
	buf.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n")
	buf.WriteString("\n")

	for _, s := range d.Shapes {
		c := s.Box.Center()
		attrs := []string{
			"label="+dotQuote(s.Label.Text),
			fmt.Sprintf("pos=\"%.2f,%.2f!\"", c.X/pointsPerInch, -c.Y/pointsPerInch),
			fmt.Sprintf("width=%.3f", s.Box.Width/pointsPerInch),
			fmt.Sprintf("height=%.3f", s.Box.Height/pointsPerInch),
		}
		attrs = append(attrs, dotShapeAttrs(s.Kind)...)
		fmt.Fprintf(&buf, "  n%d [%s];\n", s.NodeID, strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, l := range d.Lines {
		attrs := []string{"tailport=s", "headport=n"}
		if l.Label != "" {
			attrs = append(attrs, "label="+dotQuote(l.Label))
		}
		fmt.Fprintf(&buf, "  n%d -> n%d [%s];\n", l.FromID, l.ToID, strings.Join(attrs, ", "))
	}

	buf.WriteString("}\n")
	return buf.String()
}

// dotQuote wraps s in a DOT string literal. DOT only treats the quote and
// the backslash specially; everything else, UTF-8 included, goes in as is.
func dotQuote(s string) string {
	return `"` + dotEscaper.Replace(s) + `"`
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func dotShapeAttrs(kind ShapeKind) []string {
	switch kind {
	case ShapeEllipse:
		return []string{"shape=ellipse"}
	case ShapeDiamond:
		return []string{"shape=diamond"}
	default:
		return []string{"shape=box", "style=\"rounded,filled\""}
	}
}

// RenderImage rasterizes drawables to PNG through graphviz.
func RenderImage(ctx context.Context, d *Drawables) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.NEATO)

	graph, err := graphviz.ParseBytes([]byte(ToDOT(d)))
	if err != nil {
		return nil, fmt.Errorf("diagram: parse DOT: %w", err)
	}
	defer graph.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.PNG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render PNG: %w", err)
	}

	return buf.Bytes(), nil
}
