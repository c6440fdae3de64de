// Package validation checks incoming request bodies against JSON schemas
// before anything reaches the pipeline.
package validation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// QueryRequestSchema validates the POST /api/ai/query body.
const QueryRequestSchema = `{
	"type": "object",
	"properties": {
		"query":          {"type": "string", "minLength": 1, "maxLength": 2000},
		"userId":         {"type": "string", "maxLength": 128},
		"conversationId": {"type": "string", "maxLength": 128}
	},
	"required": ["query"],
	"additionalProperties": false
}`

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Describe flattens the result into one caller-facing message.
func (r *ValidationResult) Describe() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}
	msg := r.Errors[0].Message
	if r.Errors[0].Field != "" && r.Errors[0].Field != "(root)" {
		msg = fmt.Sprintf("%s: %s", r.Errors[0].Field, msg)
	}
	return msg
}

// ValidateJSON validates a raw JSON document against a schema string.
func ValidateJSON(document []byte, schema string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
		})
	}
	return out, nil
}

// ValidateInput validates an already-decoded map against a schema string.
func ValidateInput(input map[string]interface{}, schema string) (*ValidationResult, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input: %w", err)
	}
	return ValidateJSON(raw, schema)
}
