package diagram

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
)

// Fixed identifiers of the synthesized start and terminal nodes.
const (
	StartID = "Start"
	EndID   = "End"
)

// StepID returns the Mermaid identifier of the step at index i.
func StepID(i int) string {
	return "step" + strconv.Itoa(i)
}

// TranslateOption configures Translate.
type TranslateOption func(*translateConfig)

type translateConfig struct {
	escape    bool
	unknown   UnknownTypePolicy
	highlight []int
}

// WithEscaping replaces characters that are meaningful to the Mermaid grammar
// with entity codes. Without it step text is inserted verbatim.
func WithEscaping() TranslateOption {
	return func(c *translateConfig) { c.escape = true }
}

// WithStepTypePolicy sets how steps with undeclared types are handled.
// UnknownFallback skips them silently.
func WithStepTypePolicy(p UnknownTypePolicy) TranslateOption {
	return func(c *translateConfig) { c.unknown = p }
}

// WithHighlight marks the steps at the given indexes with the "visited" class.
func WithHighlight(indexes []int) TranslateOption {
	return func(c *translateConfig) { c.highlight = indexes }
}

// Translate renders a step list as a Mermaid flowchart.
func Translate(steps []schema.Step, opts ...TranslateOption) (string, error) {
	var cfg translateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var b strings.Builder
	b.WriteString("graph TD\n")
	fmt.Fprintf(&b, "    %s([Start])\n", StartID)
	fmt.Fprintf(&b, "    %s --> %s\n", StartID, nextID(0, len(steps)))

	for i, step := range steps {
		id := StepID(i)
		next := nextID(i+1, len(steps))
		text := step.Text
		if cfg.escape {
			text = mermaidEscapeLabel(text)
		}

		switch step.Type {
		case schema.StepTypeCondition:
			yes, no := next, next
			if step.YesPath != "" {
				yes = step.YesPath
			}
			if step.NoPath != "" {
				no = step.NoPath
			}
			if cfg.escape {
				yes, no = mermaidSafeID(yes), mermaidSafeID(no)
			}
			fmt.Fprintf(&b, "    %s{%s}\n", id, text)
			fmt.Fprintf(&b, "    %s -->|Yes| %s\n", id, yes)
			fmt.Fprintf(&b, "    %s -->|No| %s\n", id, no)
		case schema.StepTypeProcess:
			fmt.Fprintf(&b, "    %s[%s]\n", id, text)
			fmt.Fprintf(&b, "    %s --> %s\n", id, next)
		case schema.StepTypeInput, schema.StepTypeOutput:
			fmt.Fprintf(&b, "    %s[/%s/]\n", id, text)
			fmt.Fprintf(&b, "    %s --> %s\n", id, next)
		default:
			if cfg.unknown == UnknownReport {
				return "", schema.NewErrorf(schema.ErrCodeUnknownType, "unknown step type %q", step.Type).
					WithNode(id)
			}
		}
	}

	fmt.Fprintf(&b, "    %s([End])\n", EndID)

	if len(cfg.highlight) > 0 {
		b.WriteString("\n")
		b.WriteString("    classDef visited fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
		ids := make([]string, 0, len(cfg.highlight))
		for _, i := range uniqueSorted(cfg.highlight) {
			if i >= 0 && i < len(steps) {
				ids = append(ids, StepID(i))
			}
		}
		if len(ids) > 0 {
			fmt.Fprintf(&b, "    class %s visited\n", strings.Join(ids, ","))
		}
	}

	return b.String(), nil
}

// nextID is the identifier that step i-1 falls through to.
func nextID(i, n int) string {
	if i < n {
		return StepID(i)
	}
	return EndID
}

func uniqueSorted(xs []int) []int {
	out := slices.Clone(xs)
	slices.Sort(out)
	return slices.Compact(out)
}

// RenderMermaid renders a graph model as a Mermaid flowchart. Node ids become
// n<id>; connections with unresolved endpoints are left out.
func RenderMermaid(model *graph.Model) string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	for _, node := range model.Nodes() {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}

	for _, c := range model.Connections() {
		if _, ok := model.Node(c.From); !ok {
			continue
		}
		if _, ok := model.Node(c.To); !ok {
			continue
		}
		label := ""
		if c.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(c.Label))
		}
		fmt.Fprintf(&b, "    n%d -->%s n%d\n", c.From, label, c.To)
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the shape for its type.
func mermaidNodeDef(node graph.Node) string {
	id := "n" + strconv.Itoa(node.ID)
	label := mermaidEscapeLabel(firstLine(node.Label))

	switch node.Type {
	case graph.NodeTypeStart, graph.NodeTypeEnd:
		return fmt.Sprintf("%s([%s])", id, label)
	case graph.NodeTypeDecision:
		return fmt.Sprintf("%s{%s}", id, label)
	default:
		return fmt.Sprintf("%s[%s]", id, label)
	}
}

// mermaidSafeID converts an identifier to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

var mermaidEntities = strings.NewReplacer(
	"#", "#35;",
	"\"", "#quot;",
	"[", "#91;",
	"]", "#93;",
	"{", "#123;",
	"}", "#125;",
	"(", "#40;",
	")", "#41;",
	"|", "#124;",
	"/", "#47;",
	"<", "#lt;",
	">", "#gt;",
	"\n", " ",
)

// mermaidEscapeLabel replaces grammar characters with Mermaid entity codes.
func mermaidEscapeLabel(s string) string {
	return mermaidEntities.Replace(s)
}
