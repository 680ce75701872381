package diagram

import (
	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
)

// missingNode is the connection endpoint used when a branch target does not
// resolve to any node; the renderer's dangling policy decides what happens.
const missingNode = -1

// BuildModel converts a step list into a graph model so it can be drawn
// without a Mermaid renderer: a start ellipse, one node per known step
// (decision for conditions, process otherwise), an end ellipse, and the same
// edges Translate emits. The result is auto-laid out.
func BuildModel(steps []schema.Step) *graph.Model {
	m := graph.New()

	ids := make(map[string]int, len(steps)+2)
	ids[StartID] = m.AddNode(graph.NodeTypeStart, StartID)

	for i, step := range steps {
		switch step.Type {
		case schema.StepTypeCondition:
			ids[StepID(i)] = m.AddNode(graph.NodeTypeDecision, step.Text)
		case schema.StepTypeInput, schema.StepTypeProcess, schema.StepTypeOutput:
			ids[StepID(i)] = m.AddNode(graph.NodeTypeProcess, step.Text)
		}
	}
	ids[EndID] = m.AddNode(graph.NodeTypeEnd, EndID)

	resolve := func(ref string) int {
		if id, ok := ids[ref]; ok {
			return id
		}
		return missingNode
	}

	m.AddConnection(ids[StartID], resolve(nextID(0, len(steps))), "")
	for i, step := range steps {
		from, ok := ids[StepID(i)]
		if !ok {
			continue
		}
		next := nextID(i+1, len(steps))
		if step.Type != schema.StepTypeCondition {
			m.AddConnection(from, resolve(next), "")
			continue
		}
		yes, no := next, next
		if step.YesPath != "" {
			yes = step.YesPath
		}
		if step.NoPath != "" {
			no = step.NoPath
		}
		m.AddConnection(from, resolve(yes), "Yes")
		m.AddConnection(from, resolve(no), "No")
	}

	m.AutoLayoutDefault()
	return m
}
