package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowchart/internal/graph"
)

// RenderASCII renders a graph model as stacked text boxes in insertion order,
// followed by the connection list.
func RenderASCII(model *graph.Model) string {
	var b strings.Builder

	nodes := model.Nodes()
	for i, node := range nodes {
		renderBox(&b, makeBox(node))
		if i < len(nodes)-1 {
			renderConnector(&b)
		}
	}

	conns := model.Connections()
	if len(conns) > 0 {
		b.WriteString("\n--- connections ---\n")
	}
	for _, c := range conns {
		from, okFrom := model.Node(c.From)
		to, okTo := model.Node(c.To)
		if !okFrom || !okTo {
			continue
		}
		label := ""
		if c.Label != "" {
			label = fmt.Sprintf(" [%s]", c.Label)
		}
		fmt.Fprintf(&b, "  %s ─→ %s%s\n", firstLine(from.Label), firstLine(to.Label), label)
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node. Start/end use rounded corners and
// decisions are marked with angle brackets.
func makeBox(node graph.Node) asciiBox {
	label := firstLine(node.Label)
	if node.Type == graph.NodeTypeDecision {
		label = "< " + label + " >"
	}

	n := len([]rune(label))
	width := n + 4 // 2 border + 2 padding

	tl, tr, bl, br := "┌", "┐", "└", "┘"
	if node.Type == graph.NodeTypeStart || node.Type == graph.NodeTypeEnd {
		tl, tr, bl, br = "╭", "╮", "╰", "╯"
	}

	lines := []string{
		tl + strings.Repeat("─", width-2) + tr,
		"│ " + label + " │",
		bl + strings.Repeat("─", width-2) + br,
	}
	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func renderBox(b *strings.Builder, box asciiBox) {
	for _, line := range box.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between consecutive boxes.
func renderConnector(b *strings.Builder) {
	b.WriteString("    │\n")
	b.WriteString("    ▼\n")
}
