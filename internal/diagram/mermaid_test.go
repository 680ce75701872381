package diagram

import (
	"strings"
	"testing"

	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateLinear(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeInput, Text: "Input: n"},
		{Type: schema.StepTypeProcess, Text: "Double it"},
	}

	output, err := Translate(steps)
	require.NoError(t, err)

	want := []string{
		"graph TD",
		"    Start([Start])",
		"    Start --> step0",
		"    step0[/Input: n/]",
		"    step0 --> step1",
		"    step1[Double it]",
		"    step1 --> End",
		"    End([End])",
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", output)
}

func TestTranslateOutputParallelogram(t *testing.T) {
	output, err := Translate([]schema.Step{{Type: schema.StepTypeOutput, Text: "Print n"}})
	require.NoError(t, err)
	assert.Contains(t, output, "step0[/Print n/]\n")
	assert.Contains(t, output, "step0 --> End\n")
}

func TestTranslateConditionDefaults(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeCondition, Text: "n > 0?"},
		{Type: schema.StepTypeProcess, Text: "x"},
		{Type: schema.StepTypeCondition, Text: "done?"},
	}

	output, err := Translate(steps)
	require.NoError(t, err)

	assert.Contains(t, output, "step0{n > 0?}\n")
	assert.Contains(t, output, "step0 -->|Yes| step1\n")
	assert.Contains(t, output, "step0 -->|No| step1\n")
	// Last condition falls through to the terminal node on both branches.
	assert.Contains(t, output, "step2 -->|Yes| End\n")
	assert.Contains(t, output, "step2 -->|No| End\n")
}

func TestTranslateConditionExplicitPaths(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeProcess, Text: "i = 0"},
		{Type: schema.StepTypeCondition, Text: "i < n?", YesPath: "step3", NoPath: "End"},
		{Type: schema.StepTypeProcess, Text: "unused"},
		{Type: schema.StepTypeProcess, Text: "i++"},
	}

	output, err := Translate(steps)
	require.NoError(t, err)
	assert.Contains(t, output, "step1 -->|Yes| step3\n")
	assert.Contains(t, output, "step1 -->|No| End\n")
	assert.NotContains(t, output, "step1 -->|Yes| step2")
	assert.NotContains(t, output, "step1 -->|No| step2")
}

func TestTranslateUnknownStepSkipped(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeProcess, Text: "a"},
		{Type: schema.StepType("loop"), Text: "b"},
		{Type: schema.StepTypeProcess, Text: "c"},
	}

	output, err := Translate(steps)
	require.NoError(t, err)
	assert.NotContains(t, output, "step1[")
	assert.NotContains(t, output, "step1 -->")
	// The previous step still points at the skipped identifier.
	assert.Contains(t, output, "step0 --> step1\n")
	assert.Contains(t, output, "step2[c]\n")
}

func TestTranslateUnknownStepReported(t *testing.T) {
	steps := []schema.Step{{Type: schema.StepType("loop"), Text: "b"}}

	_, err := Translate(steps, WithStepTypePolicy(UnknownReport))
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeUnknownType))
	assert.Equal(t, "step0", err.(*schema.FlowError).NodeID)
}

func TestTranslateEmpty(t *testing.T) {
	output, err := Translate(nil)
	require.NoError(t, err)
	assert.Equal(t, "graph TD\n    Start([Start])\n    Start --> End\n    End([End])\n", output)
}

func TestTranslateVerbatimByDefault(t *testing.T) {
	output, err := Translate([]schema.Step{{Type: schema.StepTypeProcess, Text: "a[0] | b"}})
	require.NoError(t, err)
	assert.Contains(t, output, "step0[a[0] | b]\n")
}

func TestTranslateWithEscaping(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeProcess, Text: "a[0] | b"},
		{Type: schema.StepTypeInput, Text: "read x/y"},
		{Type: schema.StepTypeCondition, Text: "{ok}?", YesPath: "step-0"},
	}

	output, err := Translate(steps, WithEscaping())
	require.NoError(t, err)
	assert.Contains(t, output, "step0[a#91;0#93; #124; b]\n")
	assert.Contains(t, output, "step1[/read x#47;y/]\n")
	assert.Contains(t, output, "step2{#123;ok#125;?}\n")
	assert.Contains(t, output, "step2 -->|Yes| step_0\n")
}

func TestTranslateWithHighlight(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeProcess, Text: "a"},
		{Type: schema.StepTypeProcess, Text: "b"},
		{Type: schema.StepTypeProcess, Text: "c"},
	}

	output, err := Translate(steps, WithHighlight([]int{2, 0, 2, 9}))
	require.NoError(t, err)
	assert.Contains(t, output, "classDef visited")
	assert.Contains(t, output, "class step0,step2 visited\n")
}

func TestRenderMermaidModel(t *testing.T) {
	m := graph.New()
	s := m.AddNode(graph.NodeTypeStart, "Start")
	d := m.AddNode(graph.NodeTypeDecision, "ok?")
	p := m.AddNode(graph.NodeTypeProcess, "work")
	m.AddConnection(s, d, "")
	m.AddConnection(d, p, "yes")
	m.AddConnection(p, 42, "")

	output := RenderMermaid(m)
	assert.Contains(t, output, "graph TD\n")
	assert.Contains(t, output, "n0([Start])")
	assert.Contains(t, output, "n1{ok?}")
	assert.Contains(t, output, "n2[work]")
	assert.Contains(t, output, "n0 --> n1\n")
	assert.Contains(t, output, "n1 -->|yes| n2\n")
	assert.NotContains(t, output, "n42")
}

func TestMermaidSafeID(t *testing.T) {
	assert.Equal(t, "a_b_c", mermaidSafeID("a.b.c"))
	assert.Equal(t, "my_step", mermaidSafeID("my-step"))
	assert.Equal(t, "simple", mermaidSafeID("simple"))
}
