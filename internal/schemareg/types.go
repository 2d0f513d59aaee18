// SPDX-License-Identifier: Apache-2.0

// Package schemareg implements the schema registry and validator (spec
// §4.2): schemas are rows of schema_key `lix_stored_schema`, each a
// self-describing JSON-Schema fragment carrying `x-lix-*` extension
// keys that the engine reads directly.
package schemareg

import "encoding/json"

// StoredSchema is the decoded `lix_stored_schema` row (spec §3).
type StoredSchema struct {
	Key             string              `json:"x-lix-key"`
	Version         string              `json:"x-lix-version"`
	PrimaryKey      []string            `json:"x-lix-primary-key"`
	Unique          [][]string          `json:"x-lix-unique"`
	ForeignKeys     []ForeignKey        `json:"x-lix-foreign-keys"`
	Defaults        map[string]string   `json:"x-lix-default"`
	OverrideLixcols bool                `json:"x-lix-override-lixcols"`

	// Raw holds the full JSON-Schema document (type/properties/required/
	// additionalProperties and nested objects/arrays) so it can be handed
	// to the structural validator unmodified.
	Raw json.RawMessage `json:"-"`
}

// ForeignKey describes an `x-lix-foreign-key` entry: a set of local
// property pointers that must resolve to a live row in the referenced
// schema's current-version visible state (spec §4.2 step 4).
type ForeignKey struct {
	Properties []string          `json:"properties"`
	References ForeignKeyTarget  `json:"references"`
}

type ForeignKeyTarget struct {
	SchemaKey  string   `json:"schemaKey"`
	Properties []string `json:"properties"`
}

// Key identifies a schema by (schema_key, schema_version): schemas are
// versioned independently, and a mutation always validates against one
// exact version.
type Key struct {
	SchemaKey     string
	SchemaVersion string
}
