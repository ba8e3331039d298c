/*
Package typedstore – declarative document schemas.

A schema describes a tree of document collections. Each node names one kind
of document: its field shape plus the sub-collections its documents carry.
Sub-collection links point at nodes BY NAME so the graph may be recursive
without infinite expansion.
*/
package typedstore

// FieldType enumerates the value types a document field can hold.
type FieldType string

const (
	TypeArray   FieldType = "array"
	TypeBinary  FieldType = "binary"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeNumber  FieldType = "number"
	TypeObject  FieldType = "object"
	TypeString  FieldType = "string"
)

// FieldDef describes one field of a document.
type FieldDef struct {
	// Type of the stored value.
	Type FieldType `json:"type" yaml:"type"`

	// Required fields must be present on a full (non-merge) set.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// ServerComputed marks a field the store produces (present on read,
	// rejected on write unless Writable overrides).
	ServerComputed bool `json:"serverComputed,omitempty" yaml:"serverComputed,omitempty"`

	// Writable re-admits a ServerComputed field into the settable
	// projection. Ignored when ServerComputed is false.
	Writable bool `json:"writable,omitempty" yaml:"writable,omitempty"`

	// Schema holds the nested shape for object fields.
	Schema FieldMap `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Items describes the element type for array fields.
	Items *ItemsDef `json:"items,omitempty" yaml:"items,omitempty"`
}

// ItemsDef describes the element type of an array field.
type ItemsDef struct {
	Type   FieldType `json:"type" yaml:"type"`
	Schema FieldMap  `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// FieldMap maps field names to their definitions.
type FieldMap map[string]*FieldDef

// DocumentDef describes one document node: its field shape and the
// sub-collections its documents own. Collections maps collection name to
// the NAME of the node describing that collection's documents.
type DocumentDef struct {
	Fields      FieldMap          `json:"fields" yaml:"fields"`
	Collections map[string]string `json:"collections,omitempty" yaml:"collections,omitempty"`
}

// SchemaDef is the raw, declarative description of a whole store.
// Root maps each top-level collection name to a node name.
type SchemaDef struct {
	Version string                  `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes   map[string]*DocumentDef `json:"nodes" yaml:"nodes"`
	Root    map[string]string       `json:"root" yaml:"root"`
}

// isObject reports whether the field can be descended into by a dotted path.
func (f *FieldDef) isObject() bool {
	return f.Type == TypeObject
}
