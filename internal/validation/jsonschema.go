package validation

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/rendis/flowchart/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	stepsSchemaURL    = "https://flowchart.dev/schemas/steps.json"
	documentSchemaURL = "https://flowchart.dev/schemas/graph.json"
)

// stepsSchemaJSON describes a StepList document. Step types are not
// enumerated: undeclared types are a translator policy decision, not a
// structural error.
const stepsSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowchart.dev/schemas/steps.json",
  "type": "object",
  "required": ["steps"],
  "properties": {
    "title": { "type": "string" },
    "steps": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "step": {
      "type": "object",
      "required": ["type", "text"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "text": { "type": "string" },
        "yesPath": { "type": "string", "minLength": 1 },
        "noPath": { "type": "string", "minLength": 1 },
        "expr": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// documentSchemaJSON describes a graph.Document.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowchart.dev/schemas/graph.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "title": { "type": "string" },
    "nodes": {
      "type": "array",
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": "array",
      "items": { "$ref": "#/$defs/connection" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["type", "label"],
      "properties": {
        "type": { "type": "string", "minLength": 1 },
        "label": { "type": "string" },
        "x": { "type": "number" },
        "y": { "type": "number" },
        "width": { "type": "number", "minimum": 0 },
        "height": { "type": "number", "minimum": 0 }
      },
      "additionalProperties": false
    },
    "connection": {
      "type": "object",
      "required": ["from", "to"],
      "properties": {
        "from": { "type": "integer" },
        "to": { "type": "integer" },
        "label": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator checks raw documents against the embedded schemas.
// It is safe for concurrent use: compiled schemas are immutable.
type JSONSchemaValidator struct {
	stepsSchema    *jsonschema.Schema
	documentSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the step list and graph document schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	for url, src := range map[string]string{
		stepsSchemaURL:    stepsSchemaJSON,
		documentSchemaURL: documentSchemaJSON,
	} {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
		if err != nil {
			return nil, fmt.Errorf("unmarshal schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", url, err)
		}
	}

	steps, err := c.Compile(stepsSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile steps schema: %w", err)
	}
	document, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile graph schema: %w", err)
	}

	return &JSONSchemaValidator{stepsSchema: steps, documentSchema: document}, nil
}

// ValidateStepsJSON checks a raw StepList document.
func (v *JSONSchemaValidator) ValidateStepsJSON(raw []byte) error {
	return validateRaw(v.stepsSchema, raw)
}

// ValidateDocumentJSON checks a raw graph document.
func (v *JSONSchemaValidator) ValidateDocumentJSON(raw []byte) error {
	return validateRaw(v.documentSchema, raw)
}

func validateRaw(s *jsonschema.Schema, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "document is empty")
	}

	// UnmarshalJSON keeps numbers as json.Number, which the library requires.
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "document is not valid JSON").WithCause(err)
	}

	if err := s.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// toFlowError converts a jsonschema.ValidationError into a FlowError whose
// details list one violation per failing instance location.
func toFlowError(err error) *schema.FlowError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// prefixed with their instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
