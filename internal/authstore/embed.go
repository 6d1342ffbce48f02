package authstore

import _ "embed"

// defaultSchemaYAML is the bundled default grant schema: every known scope's
// documentation, risk flag, and default allow-list, versioned so a later
// change to a scope's defaults re-applies on the next startup without
// disturbing an administrator's explicit grant edits.
//
//go:embed default_schema.yaml
var defaultSchemaYAML []byte

// DefaultSchema parses the schema bundled with the binary. Callers that need
// a custom schema (tests, alternate deployments) should use ParseSchema
// directly instead.
func DefaultSchema() (*Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}
