package trace

import (
	"context"
	"testing"

	"github.com/rendis/flowchart/internal/diagram"
	"github.com/rendis/flowchart/internal/expressions"
	"github.com/rendis/flowchart/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engines(t *testing.T) []expressions.Engine {
	t.Helper()
	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)
	return []expressions.Engine{cel, expressions.NewExprEngine()}
}

func TestWalk_Linear(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeInput, Text: "a"},
		{Type: schema.StepTypeProcess, Text: "b"},
		{Type: schema.StepTypeOutput, Text: "c"},
	}
	res, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), steps, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, res.Visited())
	assert.Equal(t, "step2", res.Path[2].ID)
	assert.Empty(t, res.Vars)
}

func TestWalk_Empty(t *testing.T) {
	res, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Path)
}

func TestWalk_ConditionFallsThrough(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeCondition, Text: "ok?", Expr: "vars.ok"},
		{Type: schema.StepTypeOutput, Text: "done"},
	}
	for _, e := range engines(t) {
		t.Run(e.Name(), func(t *testing.T) {
			res, err := NewWalker(e).Walk(context.Background(), steps, map[string]any{"ok": false})
			require.NoError(t, err)
			assert.Equal(t, []int{0, 1}, res.Visited())
			assert.Equal(t, "no", res.Path[0].Branch)
		})
	}
}

func TestWalk_BranchToEnd(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeCondition, Text: "vars.skip", YesPath: diagram.EndID},
		{Type: schema.StepTypeOutput, Text: "never"},
	}
	res, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), steps, map[string]any{"skip": true})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Visited())
	assert.Equal(t, "yes", res.Path[0].Branch)
}

func TestWalk_TransformDoesNotMutateInput(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeProcess, Text: "double", Expr: ".n *= 2"},
	}
	in := map[string]any{"n": 2}
	res, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), steps, in)
	require.NoError(t, err)
	assert.Equal(t, 4.0, res.Vars["n"])
	assert.Equal(t, 2, in["n"])
}

func TestWalk_BranchTargetsAndHighlight(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeCondition, Text: "big?", Expr: "vars.n > 10", YesPath: "step2", NoPath: "step1"},
		{Type: schema.StepTypeOutput, Text: "small"},
		{Type: schema.StepTypeOutput, Text: "big"},
	}
	res, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), steps, map[string]any{"n": 50})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, res.Visited())

	out, err := diagram.Translate(steps, diagram.WithHighlight(res.Visited()))
	require.NoError(t, err)
	assert.Contains(t, out, "class step0,step2 visited")
}

func TestWalk_MaxVisits(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeCondition, Text: "forever", Expr: "true", YesPath: "step0"},
	}
	_, err := NewWalker(expressions.NewExprEngine(), WithMaxVisits(5)).Walk(context.Background(), steps, nil)
	require.Error(t, err)
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))

	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "step0", fe.NodeID)
}

func TestWalk_CountdownTransform(t *testing.T) {
	steps := []schema.Step{
		{Type: schema.StepTypeCondition, Text: "n > 0?", Expr: "vars.n > 0", NoPath: diagram.EndID},
		{Type: schema.StepTypeProcess, Text: "n--", Expr: ".n -= 1"},
		{Type: schema.StepTypeCondition, Text: "loop", Expr: "true", YesPath: "step0"},
	}
	for _, e := range engines(t) {
		t.Run(e.Name(), func(t *testing.T) {
			res, err := NewWalker(e).Walk(context.Background(), steps, map[string]any{"n": 3})
			require.NoError(t, err)
			assert.Equal(t, 0.0, res.Vars["n"])
			assert.Len(t, res.Path, 3*3+1)
		})
	}
}

func TestWalk_Errors(t *testing.T) {
	tests := []struct {
		name string
		step schema.Step
		code string
	}{
		{"unknown target", schema.Step{Type: schema.StepTypeCondition, Text: "true", YesPath: "nowhere"}, schema.ErrCodeNotFound},
		{"non bool condition", schema.Step{Type: schema.StepTypeCondition, Text: "1 + 1"}, schema.ErrCodeExpression},
		{"transform not object", schema.Step{Type: schema.StepTypeProcess, Text: "x", Expr: "1"}, schema.ErrCodeExpression},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), []schema.Step{tc.step}, nil)
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, tc.code), err.Error())

			var fe *schema.FlowError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "step0", fe.NodeID)
		})
	}
}

func TestWalk_UnknownTypePassesThrough(t *testing.T) {
	steps := []schema.Step{
		{Type: "loop", Text: "?"},
		{Type: schema.StepTypeOutput, Text: "done"},
	}
	res, err := NewWalker(expressions.NewExprEngine()).Walk(context.Background(), steps, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, res.Visited())
}

func TestWalk_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewWalker(expressions.NewExprEngine()).Walk(ctx, []schema.Step{{Type: schema.StepTypeProcess, Text: "x"}}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
