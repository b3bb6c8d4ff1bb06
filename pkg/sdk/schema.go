package sdk

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/edimap/pkg/domain/grid"
	"github.com/xeipuuv/gojsonschema"
)

const gridSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "array",
    "items": { "type": ["string", "number", "boolean", "null"] }
  }
}`

const flagsSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {
    "type": "object",
    "required": ["col"],
    "properties": {
      "col": { "type": "integer", "minimum": 0 },
      "reason": { "type": ["string", "null"] }
    }
  }
}`

var (
	gridSchemaLoader  = gojsonschema.NewStringLoader(gridSchemaJSON)
	flagsSchemaLoader = gojsonschema.NewStringLoader(flagsSchemaJSON)
)

// envelope is the union of the generation and fetch response shapes.
// Some flows nest the {grid, mappings} pair under "mappings".
type envelope struct {
	Grid     json.RawMessage `json:"grid"`
	Mappings json.RawMessage `json:"mappings"`
	Flags    json.RawMessage `json:"flags"`
	Status   string          `json:"status"`
	Version  string          `json:"version"`
}

func decodeMapping(body []byte) (*Mapping, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if isNull(env.Grid) && isObject(env.Mappings) {
		var inner envelope
		if err := json.Unmarshal(env.Mappings, &inner); err == nil && !isNull(inner.Grid) {
			env.Grid = inner.Grid
			env.Mappings = inner.Mappings
			if !isNull(inner.Flags) {
				env.Flags = inner.Flags
			}
		}
	}

	if err := validate(gridSchemaLoader, env.Grid); err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	if err := validate(flagsSchemaLoader, env.Flags); err != nil {
		return nil, fmt.Errorf("flags: %w", err)
	}

	g, err := grid.Decode(env.Grid)
	if err != nil {
		return nil, err
	}
	return &Mapping{
		Grid:     g,
		Mappings: env.Mappings,
		Flags:    grid.DecodeFlags(env.Flags),
		HasFlags: !isNull(env.Flags),
		Status:   env.Status,
		Version:  env.Version,
	}, nil
}

// validate checks raw against schema. Absent and null values pass.
func validate(schema gojsonschema.JSONLoader, raw json.RawMessage) error {
	if isNull(raw) {
		return nil
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(string(raw)))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidPayload, strings.Join(issues, "; "))
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
