// Package schema extracts a structured JSON document from raw executor output
// and validates it against a caller-supplied JSON schema.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/curaious/llmux/internal/perrors"
)

// Compile checks that raw is a usable structured-output schema and compiles
// it for validation. The root must be an object schema with "properties".
func Compile(raw []byte) (*jsonschema.Resolved, error) {
	var head struct {
		Type       string          `json:"type"`
		Properties json.RawMessage `json:"properties"`
	}
	if err := sonic.Unmarshal(raw, &head); err != nil {
		return nil, perrors.NewErrInvalidSchema("Schema must be a JSON object", err)
	}

	switch head.Type {
	case "object":
	case "":
		return nil, perrors.NewErrInvalidSchema("Schema is invalid", errors.New(`schema must have "type": "object"`))
	default:
		return nil, perrors.NewErrInvalidSchema("Schema is invalid", errors.New(`schema type must be "object"`))
	}

	if len(head.Properties) == 0 || head.Properties[0] != '{' {
		return nil, perrors.NewErrInvalidSchema("Schema is invalid", errors.New(`schema must have object-valued "properties"`))
	}

	var s jsonschema.Schema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, perrors.NewErrInvalidSchema("Schema is invalid", fmt.Errorf("invalid JSON Schema: %w", err))
	}

	resolved, err := s.Resolve(nil)
	if err != nil {
		return nil, perrors.NewErrInvalidSchema("Schema is invalid", fmt.Errorf("invalid JSON Schema: %w", err))
	}

	return resolved, nil
}

// Extract locates the structured JSON document embedded in raw text.
// Executors are not guaranteed to emit pure JSON, so fenced code blocks are
// tried first, then the first well-formed JSON value anywhere in the text.
// The returned bytes are the document exactly as the executor produced it.
func Extract(raw string) (json.RawMessage, error) {
	if candidate, ok := fencedBlock(raw); ok {
		if doc, ok := firstValue(candidate); ok {
			return doc, nil
		}
	}

	if doc, ok := firstValue(raw); ok {
		return doc, nil
	}

	return nil, perrors.NewErrOutputParse("No structured output found", errors.New("no json value found in output"), raw)
}

// Validate checks doc against the compiled schema. The document is returned
// to the caller untouched; validation never coerces or strips fields.
func Validate(resolved *jsonschema.Resolved, doc json.RawMessage) error {
	var instance any
	if err := sonic.Unmarshal(doc, &instance); err != nil {
		return perrors.NewErrOutputParse("Output is not valid JSON", err, string(doc))
	}

	if err := resolved.Validate(instance); err != nil {
		return perrors.NewErrOutputParse("Output does not conform to schema", err, string(doc))
	}

	return nil
}

// fencedBlock returns the contents of the first ```json block, or of the
// first anonymous ``` block when no json-tagged one exists.
func fencedBlock(text string) (string, bool) {
	if start := strings.Index(text, "```json"); start >= 0 {
		body := text[start+len("```json"):]
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end]), true
		}
	}

	if start := strings.Index(text, "```"); start >= 0 {
		body := text[start+len("```"):]
		// Drop the info string on the opening fence line.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 {
			body = body[nl+1:]
		}
		if end := strings.Index(body, "```"); end >= 0 {
			return strings.TrimSpace(body[:end]), true
		}
	}

	return "", false
}

// firstValue scans text for the first well-formed JSON object or array and
// returns its exact bytes.
func firstValue(text string) (json.RawMessage, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}

		dec := json.NewDecoder(strings.NewReader(text[i:]))
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			continue
		}

		return json.RawMessage(bytes.TrimSpace(value)), true
	}

	return nil, false
}
