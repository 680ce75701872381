// Package expressions evaluates the small expressions attached to flowchart
// steps: conditions (CEL or Expr) and state transforms (jq).
package expressions

import (
	"context"

	"github.com/rendis/flowchart/pkg/schema"
)

// Engine evaluates an expression against a data document.
// Implementations expose data["vars"] as `vars` and data["step"] as `step`.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// NewConditionEngine returns the condition engine registered under name
// ("cel" or "expr").
func NewConditionEngine(name string) (Engine, error) {
	switch name {
	case "", "expr":
		return NewExprEngine(), nil
	case "cel":
		return NewCELEngine()
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown condition engine %q (want cel or expr)", name)
	}
}

// AsBool interprets an evaluation result as a branch decision.
func AsBool(expression string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeExpression,
			"condition %q returned %T, want bool", expression, v).
			WithDetails(map[string]any{"expression": expression})
	}
	return b, nil
}
