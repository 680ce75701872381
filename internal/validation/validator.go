package validation

import (
	"github.com/rendis/flowchart/internal/graph"
	"github.com/rendis/flowchart/pkg/schema"
)

// Validator checks step lists and graph documents before they are translated
// or rendered. Structural checks use JSON Schema Draft 2020-12.
type Validator interface {
	ValidateSteps(raw []byte) (*schema.StepList, *schema.ValidationResult)
	ValidateDocument(raw []byte) (*graph.Document, *schema.ValidationResult)
}
