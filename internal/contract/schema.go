// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Deckhand Contributors

package contract

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/deckhand/deckhand/internal/apierr"
)

const schemaBaseURL = "https://deckhand.dev/schemas/"

var printer = message.NewPrinter(language.English)

// Schema is a compiled JSON Schema reflected from a Go type. The same Go type
// is used to decode validated documents, so the typed view and the runtime
// check always describe one contract.
type Schema struct {
	id       string
	raw      []byte
	shape    map[string]any
	compiled *jschema.Schema
}

// SchemaOption configures schema reflection.
type SchemaOption func(*jsonschema.Reflector)

// Strict rejects properties the Go type does not declare.
func Strict() SchemaOption {
	return func(r *jsonschema.Reflector) {
		r.AllowAdditionalProperties = false
	}
}

// Lenient accepts and ignores undeclared properties.
func Lenient() SchemaOption {
	return func(r *jsonschema.Reflector) {
		r.AllowAdditionalProperties = true
	}
}

// SchemaFor reflects and compiles the schema of T.
func SchemaFor[T any](id string, opts ...SchemaOption) (*Schema, error) {
	return NewSchema(id, new(T), opts...)
}

// NewSchema reflects and compiles the schema of v's type.
func NewSchema(id string, v any, opts ...SchemaOption) (*Schema, error) {
	if id == "" {
		return nil, oops.Code("SCHEMA_INVALID_ID").Errorf("schema id cannot be empty")
	}
	if v == nil {
		return nil, oops.Code("SCHEMA_INVALID_TYPE").With("schema", id).Errorf("schema type cannot be nil")
	}

	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}
	for _, opt := range opts {
		opt(r)
	}

	reflected := r.Reflect(v)
	reflected.ID = jsonschema.ID(schemaBaseURL + id + ".json")

	data, err := json.Marshal(reflected)
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", id).Wrap(err)
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_PARSE_FAILED").With("schema", id).Wrap(err)
	}
	var shape map[string]any
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, oops.Code("SCHEMA_PARSE_FAILED").With("schema", id).Wrap(err)
	}

	url := schemaBaseURL + id + ".json"
	c := jschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", id).Wrap(err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", id).Wrap(err)
	}

	return &Schema{id: id, raw: data, shape: shape, compiled: compiled}, nil
}

// ID returns the schema identifier.
func (s *Schema) ID() string { return s.id }

// JSON returns the reflected JSON Schema document.
func (s *Schema) JSON() []byte {
	out := make([]byte, len(s.raw))
	copy(out, s.raw)
	return out
}

// Validate checks a JSON-decoded value (maps, slices, json.Number, ...).
// It returns nil when the value conforms.
func (s *Schema) Validate(v any) []apierr.Violation {
	err := s.compiled.Validate(v)
	if err == nil {
		return nil
	}
	return violationsOf(err)
}

// ValidateJSON parses raw and validates it. An empty document is treated as
// an empty object. A malformed document is reported as a single violation.
func (s *Schema) ValidateJSON(raw []byte) []apierr.Violation {
	doc, err := decodeDocument(raw)
	if err != nil {
		return []apierr.Violation{{Field: "/", Keyword: "json", Message: "malformed JSON document"}}
	}
	return s.Validate(doc)
}

// Bind validates raw and decodes it into dst. Only declared properties reach
// dst, matched by exact name, so dst holds exactly the document that was
// validated. A failed decode is reported as a violation.
func (s *Schema) Bind(raw []byte, dst any) []apierr.Violation {
	doc, err := decodeDocument(raw)
	if err != nil {
		return []apierr.Violation{{Field: "/", Keyword: "json", Message: "malformed JSON document"}}
	}
	if violations := s.Validate(doc); len(violations) > 0 {
		return violations
	}

	declared, err := json.Marshal(prune(doc, s.shape))
	if err != nil {
		return []apierr.Violation{{Field: "/", Keyword: "type", Message: err.Error()}}
	}
	if err := json.Unmarshal(declared, dst); err != nil {
		return []apierr.Violation{{Field: "/", Keyword: "type", Message: err.Error()}}
	}
	return nil
}

// prune drops object properties the schema node does not declare. Nodes
// without a properties list are kept as they are.
func prune(doc any, node map[string]any) any {
	switch v := doc.(type) {
	case map[string]any:
		props, ok := node["properties"].(map[string]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(v))
		for key, value := range v {
			sub, declared := props[key]
			if !declared {
				continue
			}
			if subNode, ok := sub.(map[string]any); ok {
				value = prune(value, subNode)
			}
			out[key] = value
		}
		return out
	case []any:
		items, ok := node["items"].(map[string]any)
		if !ok {
			return v
		}
		out := make([]any, len(v))
		for i, value := range v {
			out[i] = prune(value, items)
		}
		return out
	default:
		return v
	}
}

func decodeDocument(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code("SCHEMA_DOCUMENT_INVALID").Wrap(err)
	}
	return doc, nil
}

func violationsOf(err error) []apierr.Violation {
	var verr *jschema.ValidationError
	if !errors.As(err, &verr) {
		return []apierr.Violation{{Field: "/", Message: err.Error()}}
	}
	var out []apierr.Violation
	collectViolations(verr, &out)
	return out
}

// collectViolations flattens the cause tree, keeping only leaves.
func collectViolations(e *jschema.ValidationError, out *[]apierr.Violation) {
	if len(e.Causes) == 0 {
		v := apierr.Violation{Field: "/" + strings.Join(e.InstanceLocation, "/")}
		if e.ErrorKind != nil {
			v.Keyword = strings.Join(e.ErrorKind.KeywordPath(), "/")
			v.Message = e.ErrorKind.LocalizedString(printer)
		}
		*out = append(*out, v)
		return
	}
	for _, cause := range e.Causes {
		collectViolations(cause, out)
	}
}
