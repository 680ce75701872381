package validation

import (
	"sync"
	"testing"

	"github.com/rendis/flowchart/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newValidator(t *testing.T) *FlowValidator {
	t.Helper()
	v, err := NewFlowValidator()
	require.NoError(t, err)
	return v
}

// --- Structural ---

func TestValidateSteps_MinimalValid(t *testing.T) {
	list, result := newValidator(t).ValidateSteps([]byte(`{"steps":[{"type":"process","text":"x = 1"}]}`))
	require.True(t, result.Valid(), "%+v", result.Errors)
	require.NotNil(t, list)
	assert.Equal(t, schema.StepTypeProcess, list.Steps[0].Type)
	assert.Empty(t, result.Warnings)
}

func TestValidateSteps_BareArray(t *testing.T) {
	list, result := newValidator(t).ValidateSteps([]byte(`  [{"type":"input","text":"read n"}]`))
	require.True(t, result.Valid())
	require.Len(t, list.Steps, 1)
	assert.Equal(t, "read n", list.Steps[0].Text)
}

func TestValidateSteps_Structural(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"not json", `{steps`},
		{"missing steps", `{"title":"x"}`},
		{"missing text", `{"steps":[{"type":"process"}]}`},
		{"empty type", `{"steps":[{"type":"","text":"x"}]}`},
		{"extra field", `{"steps":[{"type":"process","text":"x","color":"red"}]}`},
		{"wrong text type", `{"steps":[{"type":"process","text":5}]}`},
		{"empty yesPath", `{"steps":[{"type":"condition","text":"x","yesPath":""}]}`},
	}
	v := newValidator(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			list, result := v.ValidateSteps([]byte(tc.raw))
			assert.Nil(t, list)
			require.False(t, result.Valid())
			assert.Equal(t, schema.ErrCodeValidation, result.Errors[0].Code)
		})
	}
}

func TestValidateSteps_MultipleViolations(t *testing.T) {
	_, result := newValidator(t).ValidateSteps([]byte(`{"steps":[{"type":"process"},{"text":"y"}]}`))
	require.False(t, result.Valid())
	assert.GreaterOrEqual(t, len(result.Errors), 2)
	for _, issue := range result.Errors {
		assert.Contains(t, issue.Message, "/steps/")
	}
}

// --- Semantic ---

func TestValidateSteps_UnknownTypeIsWarning(t *testing.T) {
	list, result := newValidator(t).ValidateSteps([]byte(`{"steps":[{"type":"loop","text":"forever"}]}`))
	require.True(t, result.Valid())
	require.NotNil(t, list)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, schema.ErrCodeUnknownType, result.Warnings[0].Code)
	assert.Equal(t, "steps[0].type", result.Warnings[0].Path)
}

func TestValidateSteps_BranchTargets(t *testing.T) {
	raw := `{"steps":[
		{"type":"condition","text":"n > 0","yesPath":"step1","noPath":"End"},
		{"type":"output","text":"positive"},
		{"type":"condition","text":"again","yesPath":"step9","noPath":"loop"}
	]}`
	steps, result := newValidator(t).ValidateSteps([]byte(raw))
	require.True(t, result.Valid())
	assert.NoError(t, result.ToError())
	require.Len(t, steps.Steps, 3)

	var paths []string
	for _, w := range result.Warnings {
		if w.Code == schema.ErrCodeNotFound {
			paths = append(paths, w.Path)
		}
	}
	assert.Equal(t, []string{"steps[2].yesPath", "steps[2].noPath"}, paths)
}

func TestValidateSteps_Warnings(t *testing.T) {
	raw := `{"steps":[
		{"type":"process","text":"  "},
		{"type":"process","text":"a[0] = 1"},
		{"type":"output","text":"done","yesPath":"step0"}
	]}`
	_, result := newValidator(t).ValidateSteps([]byte(raw))
	require.True(t, result.Valid())
	require.Len(t, result.Warnings, 3)
	assert.Equal(t, "steps[0].text", result.Warnings[0].Path)
	assert.Contains(t, result.Warnings[1].Message, "escaping")
	assert.Equal(t, "steps[2]", result.Warnings[2].Path)
}

// --- Reachability ---

func TestCheckReachability(t *testing.T) {
	tests := []struct {
		name        string
		steps       []schema.Step
		unreachable []string
	}{
		{
			name:  "empty",
			steps: nil,
		},
		{
			name: "linear",
			steps: []schema.Step{
				{Type: schema.StepTypeInput, Text: "a"},
				{Type: schema.StepTypeOutput, Text: "b"},
			},
		},
		{
			name: "condition skips over a step",
			steps: []schema.Step{
				{Type: schema.StepTypeCondition, Text: "c", YesPath: "step2", NoPath: "step2"},
				{Type: schema.StepTypeProcess, Text: "skipped"},
				{Type: schema.StepTypeOutput, Text: "out"},
			},
			unreachable: []string{"steps[1]"},
		},
		{
			name: "early end",
			steps: []schema.Step{
				{Type: schema.StepTypeCondition, Text: "c", YesPath: "End", NoPath: "End"},
				{Type: schema.StepTypeProcess, Text: "x"},
				{Type: schema.StepTypeProcess, Text: "y"},
			},
			unreachable: []string{"steps[1]", "steps[2]"},
		},
		{
			name: "loop back",
			steps: []schema.Step{
				{Type: schema.StepTypeProcess, Text: "x"},
				{Type: schema.StepTypeCondition, Text: "again", YesPath: "step0"},
				{Type: schema.StepTypeOutput, Text: "done"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := checkReachability(tc.steps)
			assert.True(t, result.Valid())
			var paths []string
			for _, w := range result.Warnings {
				paths = append(paths, w.Path)
			}
			assert.Equal(t, tc.unreachable, paths)
		})
	}
}

// --- Graph documents ---

func TestValidateDocument_Valid(t *testing.T) {
	raw := `{"title":"t","nodes":[
		{"type":"start","label":"Start"},
		{"type":"end","label":"End","x":10,"y":20,"width":80,"height":40}
	],"connections":[{"from":0,"to":1}]}`
	doc, result := newValidator(t).ValidateDocument([]byte(raw))
	require.True(t, result.Valid(), "%+v", result.Errors)
	assert.Empty(t, result.Warnings)
	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, 80.0, doc.Nodes[1].Width)
}

func TestValidateDocument_Structural(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no nodes", `{"connections":[]}`},
		{"node without label", `{"nodes":[{"type":"start"}]}`},
		{"negative width", `{"nodes":[{"type":"start","label":"s","width":-1}]}`},
		{"fractional endpoint", `{"nodes":[],"connections":[{"from":0.5,"to":1}]}`},
		{"explicit node id", `{"nodes":[{"id":3,"type":"start","label":"s"}]}`},
	}
	v := newValidator(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc, result := v.ValidateDocument([]byte(tc.raw))
			assert.Nil(t, doc)
			assert.False(t, result.Valid())
		})
	}
}

func TestValidateDocument_Warnings(t *testing.T) {
	raw := `{"nodes":[{"type":"hexagon","label":"h"}],"connections":[{"from":0,"to":99}]}`
	doc, result := newValidator(t).ValidateDocument([]byte(raw))
	require.True(t, result.Valid())
	require.NotNil(t, doc)
	require.Len(t, result.Warnings, 2)
	assert.Equal(t, schema.ErrCodeUnknownType, result.Warnings[0].Code)
	assert.Equal(t, schema.ErrCodeDanglingConnection, result.Warnings[1].Code)
	assert.Equal(t, "connections[0]", result.Warnings[1].Path)
}

func TestValidator_Concurrent(t *testing.T) {
	v := newValidator(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, result := v.ValidateSteps([]byte(`[{"type":"process","text":"x"}]`))
			assert.True(t, result.Valid())
		}()
	}
	wg.Wait()
}
