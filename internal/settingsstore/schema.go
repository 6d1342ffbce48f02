package settingsstore

import (
	"encoding/json"
	"fmt"
)

// Type describes the shape a setting's value must have, mirroring the small
// closed set of JSON-compatible kinds the bot's configuration schema
// understands. It exists so the store can reject a malformed value at write
// time instead of letting a bad write surface later as a panic in some
// unrelated subscriber.
type Type int

const (
	TypeRaw Type = iota
	TypeDuration
	TypeBool
	TypeNumber
	TypeString
	TypeSet
)

func (t Type) String() string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeDuration:
		return "duration"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeSet:
		return "set"
	default:
		return "unknown"
	}
}

// IsCompatible reports whether the decoded JSON value value is a legal
// instance of t. Raw accepts anything; the rest police their own shape.
func (t Type) IsCompatible(value any) bool {
	switch t {
	case TypeRaw:
		return true
	case TypeBool:
		_, ok := value.(bool)
		return ok
	case TypeNumber:
		_, ok := value.(float64)
		return ok
	case TypeString, TypeDuration:
		_, ok := value.(string)
		return ok
	case TypeSet:
		list, ok := value.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Schema describes one key's contract: what shape its value must take, a
// short human description, the feature it belongs to, whether its value is
// secret, and its default.
type Schema struct {
	Key         string
	Type        Type
	Doc         string
	Feature     string
	Secret      bool
	Default     json.RawMessage
}

// SchemaSet is an immutable registry of known keys, built once at startup
// from the schemas every component declares. A key absent from the set is
// still writable (settings are not required to be pre-declared) but its
// value is checked only for basic JSON validity.
type SchemaSet struct {
	byKey map[string]Schema
}

// NewSchemaSet builds a SchemaSet from the provided schemas. A duplicate key
// is an error: two components must not silently fight over one setting.
func NewSchemaSet(schemas ...Schema) (*SchemaSet, error) {
	byKey := make(map[string]Schema, len(schemas))
	for _, schema := range schemas {
		if schema.Key == "" {
			return nil, fmt.Errorf("settingsstore: schema missing key")
		}
		if _, exists := byKey[schema.Key]; exists {
			return nil, fmt.Errorf("settingsstore: duplicate schema for key %q", schema.Key)
		}
		byKey[schema.Key] = schema
	}
	return &SchemaSet{byKey: byKey}, nil
}

// Lookup returns the schema registered for key, if any.
func (s *SchemaSet) Lookup(key string) (Schema, bool) {
	if s == nil {
		return Schema{}, false
	}
	schema, ok := s.byKey[key]
	return schema, ok
}

// Validate checks that raw is well-formed JSON and, if key has a registered
// schema, that the value is compatible with it. Keys with no registered
// schema are accepted once the JSON check passes.
func (s *SchemaSet) Validate(key string, raw json.RawMessage) error {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("settingsstore: %s: invalid json: %w", key, err)
	}
	schema, ok := s.Lookup(key)
	if !ok {
		return nil
	}
	if !schema.Type.IsCompatible(decoded) {
		return fmt.Errorf("settingsstore: %s: value is not a valid %s", key, schema.Type)
	}
	return nil
}
