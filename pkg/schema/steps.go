package schema

// StepType enumerates the kinds of algorithm steps fed to the diagram translator.
type StepType string

const (
	StepTypeInput     StepType = "input"
	StepTypeProcess   StepType = "process"
	StepTypeOutput    StepType = "output"
	StepTypeCondition StepType = "condition"
)

// StepTypes lists every known step type in declaration order.
var StepTypes = []StepType{StepTypeInput, StepTypeProcess, StepTypeOutput, StepTypeCondition}

// Known reports whether t is one of the declared step types.
func (t StepType) Known() bool {
	switch t {
	case StepTypeInput, StepTypeProcess, StepTypeOutput, StepTypeCondition:
		return true
	default:
		return false
	}
}

// Step is one unit of an algorithm description.
// YesPath and NoPath are only meaningful for condition steps; when empty the
// branch falls through to the next step (or the terminal node).
//
// Expr is only read by the tracer. For condition steps it is the boolean
// expression to evaluate (Text is used when empty); for process steps it is a
// jq program applied to the trace vars.
type Step struct {
	Type    StepType `json:"type"`
	Text    string   `json:"text"`
	YesPath string   `json:"yesPath,omitempty"`
	NoPath  string   `json:"noPath,omitempty"`
	Expr    string   `json:"expr,omitempty"`
}

// StepList is the JSON document form accepted by the CLI, panel and MCP tools.
type StepList struct {
	Title string `json:"title,omitempty"`
	Steps []Step `json:"steps"`
}
