package validation

import (
	"bytes"
	"encoding/json"

	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
)

// FlowValidator runs the validation pipeline:
// 1. Structural (JSON Schema)
// 2. Semantic (branch targets, types, label characters, dangling connections)
// 3. Reachability (step lists only)
type FlowValidator struct {
	jsonSchema *JSONSchemaValidator
}

// NewFlowValidator creates a FlowValidator.
func NewFlowValidator() (*FlowValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &FlowValidator{jsonSchema: jsv}, nil
}

// ValidateSteps decodes and checks a step list. A bare JSON array is accepted
// as shorthand for {"steps": [...]}. The returned list is nil when structural
// validation fails.
func (fv *FlowValidator) ValidateSteps(raw []byte) (*schema.StepList, *schema.ValidationResult) {
	raw = wrapBareSteps(raw)

	result := structural(fv.jsonSchema.ValidateStepsJSON(raw))
	if !result.Valid() {
		return nil, result
	}

	var list schema.StepList
	if err := json.Unmarshal(raw, &list); err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}

	result.Merge(checkSteps(list.Steps))
	if result.Valid() {
		result.Merge(checkReachability(list.Steps))
	}
	return &list, result
}

// ValidateDocument decodes and checks a graph document.
func (fv *FlowValidator) ValidateDocument(raw []byte) (*graph.Document, *schema.ValidationResult) {
	result := structural(fv.jsonSchema.ValidateDocumentJSON(raw))
	if !result.Valid() {
		return nil, result
	}

	doc, err := graph.ParseDocument(raw)
	if err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}

	result.Merge(checkDocument(doc))
	return doc, result
}

func wrapBareSteps(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return raw
	}
	out := make([]byte, 0, len(trimmed)+12)
	out = append(out, `{"steps":`...)
	out = append(out, trimmed...)
	return append(out, '}')
}

// structural converts a JSON Schema error into a ValidationResult, one issue
// per violation.
func structural(err error) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if err == nil {
		return result
	}

	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}

	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
	return result
}

var _ Validator = (*FlowValidator)(nil)
