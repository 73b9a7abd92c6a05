// Package validator checks AI-produced JSON payloads against embedded
// schemas before they are admitted into the application state.
package validator

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemasFS embed.FS

// ValidationError represents a single validation error.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of schema validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator validates oracle outputs against the embedded schemas.
type Validator struct {
	questionList     *jsonschema.Schema
	contractResponse *jsonschema.Schema
}

// New compiles the embedded schemas.
func New() (*Validator, error) {
	c := jsonschema.NewCompiler()

	questionList, err := compileEmbedded(c, "schemas/question_list.schema.json")
	if err != nil {
		return nil, err
	}
	contractResponse, err := compileEmbedded(c, "schemas/contract_response.schema.json")
	if err != nil {
		return nil, err
	}

	return &Validator{
		questionList:     questionList,
		contractResponse: contractResponse,
	}, nil
}

func compileEmbedded(c *jsonschema.Compiler, path string) (*jsonschema.Schema, error) {
	data, err := schemasFS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", path, err)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema %s: %w", path, err)
	}
	if err := c.AddResource(path, doc); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", path, err)
	}
	schema, err := c.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", path, err)
	}
	return schema, nil
}

// ValidateQuestionList validates a generated question array.
func (v *Validator) ValidateQuestionList(payload []byte) ValidationResult {
	return validate(v.questionList, payload)
}

// ValidateContractResponse validates a generated quotation payload.
func (v *Validator) ValidateContractResponse(payload []byte) ValidationResult {
	return validate(v.contractResponse, payload)
}

func validate(schema *jsonschema.Schema, payload []byte) ValidationResult {
	var doc interface{}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Path:    "/",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			}},
		}
	}

	err := schema.Validate(doc)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	var errors []ValidationError
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		errors = extractErrors(ve)
	} else {
		errors = []ValidationError{{
			Path:    "/",
			Message: err.Error(),
		}}
	}

	return ValidationResult{Valid: false, Errors: errors}
}

func extractErrors(ve *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	// Recursively extract errors from causes
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			errors = append(errors, extractErrors(cause)...)
		}
	} else {
		// Leaf error
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		errors = append(errors, ValidationError{
			Path:    path,
			Message: ve.Error(),
		})
	}

	return errors
}
