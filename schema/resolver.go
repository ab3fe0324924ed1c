package schema

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaSource resolves a schema_ref string to its raw JSON Schema
// document. A caller backing schema_ref with files, an HTTP registry, or
// an in-memory map all implement this the same way.
type SchemaSource interface {
	Schema(ref string) (interface{}, error)
}

// MapSchemaSource is a SchemaSource backed by a fixed in-memory map,
// useful for embedding a handful of schemas alongside a manifest.
type MapSchemaSource map[string]interface{}

func (m MapSchemaSource) Schema(ref string) (interface{}, error) {
	s, ok := m[ref]
	if !ok {
		return nil, &Error{
			Kind:    KindInvalidCapabilitySchema,
			Message: fmt.Sprintf("schema reference %q not found", ref),
		}
	}
	return s, nil
}

// JSONSchemaResolver is a SchemaResolver backed by gojsonschema, wired in
// only when a caller opts into structural JSON-Schema validation of
// outputs that carry a schema_ref. The core Validator never
// imports gojsonschema itself; only this implementation does.
type JSONSchemaResolver struct {
	source SchemaSource
}

// NewJSONSchemaResolver returns a resolver backed by source.
func NewJSONSchemaResolver(source SchemaSource) *JSONSchemaResolver {
	return &JSONSchemaResolver{source: source}
}

// ValidateAgainstSchema resolves ref via the configured source and checks
// value against it using Draft-7 semantics.
func (r *JSONSchemaResolver) ValidateAgainstSchema(ref string, value interface{}) error {
	rawSchema, err := r.source.Schema(ref)
	if err != nil {
		return err
	}

	schemaBytes, err := json.Marshal(rawSchema)
	if err != nil {
		return &Error{Kind: KindInvalidCapabilitySchema, Message: fmt.Sprintf("failed to marshal schema %q: %v", ref, err)}
	}
	valueBytes, err := json.Marshal(value)
	if err != nil {
		return &Error{Kind: KindOutputValidationFailed, Message: fmt.Sprintf("failed to marshal value for schema %q: %v", ref, err)}
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)
	docLoader := gojsonschema.NewBytesLoader(valueBytes)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return &Error{Kind: KindInvalidCapabilitySchema, Message: fmt.Sprintf("schema %q failed to compile: %v", ref, err)}
	}

	if !result.Valid() {
		var msgs string
		for i, d := range result.Errors() {
			if i > 0 {
				msgs += "; "
			}
			msgs += d.String()
		}
		return &Error{
			Kind:        KindOutputValidationFailed,
			ActualValue: value,
			Rule:        ref,
			Message:     fmt.Sprintf("value failed schema %q: %s", ref, msgs),
		}
	}

	return nil
}
