package monitor

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/definitions.json
var definitionsJSON []byte

// Operation names the request body contract of one HTTP operation.
type Operation string

const (
	Authorize Operation = "authorize"
	Purchase  Operation = "purchase"
	Capture   Operation = "capture"
	Refund    Operation = "refund"
	Void      Operation = "void"
	Verify    Operation = "verify"
)

// fields lists the top-level properties of each operation body; required
// ones come first and are counted by the int.
var fields = map[Operation]struct {
	names    []string
	required int
}{
	Authorize: {[]string{"amount", "currency", "instrument", "options"}, 3},
	Purchase:  {[]string{"amount", "currency", "instrument", "options"}, 3},
	Capture:   {[]string{"amount", "currency", "authorization", "options"}, 3},
	Refund:    {[]string{"amount", "currency", "authorization", "options"}, 3},
	Void:      {[]string{"authorization", "options"}, 1},
	Verify:    {[]string{"instrument", "options"}, 1},
}

// ContractMonitor validates incoming request bodies against the JSON schema
// of their operation. Unknown fields are rejected at every level.
type ContractMonitor struct {
	schemas map[Operation]*gojsonschema.Schema
}

// NewContractMonitor compiles the schema of every operation.
func NewContractMonitor() (*ContractMonitor, error) {
	var defs struct {
		Properties  map[string]any `json:"properties"`
		Definitions map[string]any `json:"definitions"`
	}
	if err := json.Unmarshal(definitionsJSON, &defs); err != nil {
		return nil, fmt.Errorf("error loading schema definitions: %w", err)
	}

	cm := &ContractMonitor{schemas: make(map[Operation]*gojsonschema.Schema, len(fields))}
	for op, f := range fields {
		props := make(map[string]any, len(f.names))
		for _, name := range f.names {
			props[name] = defs.Properties[name]
		}
		doc := map[string]any{
			"$schema":              "http://json-schema.org/draft-07/schema#",
			"title":                string(op),
			"type":                 "object",
			"additionalProperties": false,
			"required":             f.names[:f.required],
			"properties":           props,
			"definitions":          defs.Definitions,
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return nil, fmt.Errorf("error compiling schema %s: %w", op, err)
		}
		cm.schemas[op] = schema
	}
	return cm, nil
}

// Validate validates requestBody against the schema of op.
// It returns true if valid, or false and a list of validation errors if invalid.
// Malformed JSON and unknown operations are reported through the error.
func (cm *ContractMonitor) Validate(op Operation, requestBody []byte) (bool, []string, error) {
	schema, ok := cm.schemas[op]
	if !ok {
		return false, nil, fmt.Errorf("unknown operation %q", op)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return false, errors, nil
}

// FormatErrors formats a slice of validation error strings into a single string.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
