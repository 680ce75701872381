package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
)

// mermaidSyntax are characters that change how Mermaid parses a node label.
const mermaidSyntax = `[]{}()|"<>`

// checkSteps reports problems the translator tolerates but that usually
// produce a surprising diagram. Everything here is a warning: a branch
// target that names no step is emitted verbatim as its own Mermaid node.
func checkSteps(steps []schema.Step) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for i, step := range steps {
		path := fmt.Sprintf("steps[%d]", i)

		if !step.Type.Known() {
			result.AddWarning(path+".type", schema.ErrCodeUnknownType,
				fmt.Sprintf("unknown step type %q is left out of the diagram", step.Type))
		}

		if strings.TrimSpace(step.Text) == "" {
			result.AddWarning(path+".text", schema.ErrCodeValidation, "step text is empty")
		}
		if strings.ContainsAny(step.Text, mermaidSyntax) {
			result.AddWarning(path+".text", schema.ErrCodeValidation,
				"text contains Mermaid syntax characters; translate with escaping enabled")
		}

		if step.Type != schema.StepTypeCondition {
			if step.YesPath != "" || step.NoPath != "" {
				result.AddWarning(path, schema.ErrCodeValidation,
					"yesPath/noPath are ignored on non-condition steps")
			}
			continue
		}

		branches := [2]struct{ field, target string }{
			{"yesPath", step.YesPath},
			{"noPath", step.NoPath},
		}
		for _, b := range branches {
			if b.target == "" {
				continue
			}
			if _, ok := stepTarget(b.target, len(steps)); !ok {
				result.AddWarning(path+"."+b.field, schema.ErrCodeNotFound,
					fmt.Sprintf("target %q names no step and is drawn as a standalone node", b.target))
			}
		}
	}

	return result
}

// checkDocument reports dangling connections and undeclared node types.
func checkDocument(doc *graph.Document) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for i, n := range doc.Nodes {
		if !n.Type.Known() {
			result.AddWarning(fmt.Sprintf("nodes[%d].type", i), schema.ErrCodeUnknownType,
				fmt.Sprintf("unknown node type %q is drawn as a rounded rectangle", n.Type))
		}
	}

	inRange := func(id int) bool { return id >= 0 && id < len(doc.Nodes) }
	for i, c := range doc.Connections {
		if !inRange(c.From) || !inRange(c.To) {
			result.AddWarning(fmt.Sprintf("connections[%d]", i), schema.ErrCodeDanglingConnection,
				fmt.Sprintf("connection %d->%d references a missing node and is not drawn", c.From, c.To))
		}
	}

	return result
}

// stepTarget resolves a branch target to a step index; End resolves to -1.
func stepTarget(target string, n int) (int, bool) {
	if target == diagram.EndID {
		return -1, true
	}
	rest, ok := strings.CutPrefix(target, "step")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}
