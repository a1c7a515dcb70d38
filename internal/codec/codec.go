// Package codec turns gateway response bodies into the map the executor
// normalizes.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned for well-formed JSON whose top level is not an object.
var ErrNotObject = errors.New("response body is not a JSON object")

// JSON parses JSON object bodies.
type JSON struct{}

// Parse decodes body into a map. A blank body yields an empty map; malformed
// JSON and non-object documents are errors.
func (JSON) Parse(body []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return map[string]any{}, nil
	}
	if trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return nil, ErrNotObject
		}
		return nil, fmt.Errorf("malformed response body: %w", syntaxError(trimmed))
	}
	var out map[string]any
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("malformed response body: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

func syntaxError(body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return err
	}
	return errors.New("unexpected document")
}
