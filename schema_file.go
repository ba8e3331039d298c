/*
Package typedstore – YAML schema loading.

Schemas can be declared in YAML (or JSON, which YAML subsumes) and loaded
at startup. The parsed definition goes through the same NewSchema
preparation as a Go-literal definition.
*/
package typedstore

import (
	"os"

	"github.com/goccy/go-yaml"
)

// ParseSchema unmarshals a YAML schema definition and prepares it.
func ParseSchema(data []byte, opts ...SchemaOption) (*Schema, error) {
	var def SchemaDef
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, NewError("cannot parse schema document",
			WithCode(ErrSchema),
			WithCause(err))
	}
	return NewSchema(&def, opts...)
}

// LoadSchemaFile reads and prepares a YAML schema file.
func LoadSchemaFile(path string, opts ...SchemaOption) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("cannot read schema file",
			WithCode(ErrSchema),
			WithContext(map[string]any{"path": path}),
			WithCause(err))
	}
	return ParseSchema(data, opts...)
}
