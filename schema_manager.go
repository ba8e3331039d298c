/*
Package typedstore – schema preparation and node resolution.

NewSchema validates a SchemaDef once and precomputes, per node, the
gettable/settable projections, the dotted path sets for each, and a
path-to-definition index. Sub-collection links are resolved lazily by node
name when a reference is walked, never by structural expansion, so
recursive collection graphs are fine.
*/
package typedstore

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Schema is a prepared, immutable schema ready for validation and node
// resolution. Safe for concurrent use.
type Schema struct {
	def   *SchemaDef
	nodes map[string]*node
	log   Logger
}

// node holds the precomputed projections for one document node.
type node struct {
	name          string
	def           *DocumentDef
	gettable      FieldMap
	settable      FieldMap
	gettablePaths []string
	settablePaths []string
	settableAt    map[string]*FieldDef
}

// SchemaOption configures NewSchema.
type SchemaOption func(*Schema)

// WithLogger sets the logger used by the schema and the delegates it vends.
func WithLogger(l Logger) SchemaOption {
	return func(s *Schema) {
		if l != nil {
			s.log = l
		}
	}
}

var validFieldTypes = map[FieldType]bool{
	TypeArray: true, TypeBinary: true, TypeBoolean: true, TypeDate: true,
	TypeNumber: true, TypeObject: true, TypeString: true,
}

// NewSchema validates the definition and prepares every node.
func NewSchema(def *SchemaDef, opts ...SchemaOption) (*Schema, error) {
	if def == nil {
		return nil, NewArgError("nil schema definition")
	}
	s := &Schema{def: def, log: defaultLogger{}}
	for _, o := range opts {
		o(s)
	}
	if len(def.Nodes) == 0 {
		return nil, NewError("schema has no nodes", WithCode(ErrSchema))
	}
	if len(def.Root) == 0 {
		return nil, NewError("schema has no root collections", WithCode(ErrSchema))
	}
	var errs error
	for coll, nodeName := range def.Root {
		if _, ok := def.Nodes[nodeName]; !ok {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("root collection %q links unknown node %q", coll, nodeName),
				WithCode(ErrSchema)))
		}
	}
	for name, doc := range def.Nodes {
		if doc == nil {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("node %q has no definition", name),
				WithCode(ErrSchema)))
			continue
		}
		for coll, target := range doc.Collections {
			if _, ok := def.Nodes[target]; !ok {
				errs = multierr.Append(errs, NewError(
					fmt.Sprintf("node %q collection %q links unknown node %q", name, coll, target),
					WithCode(ErrSchema)))
			}
		}
		// the depth bound must hold before the field walk: a cyclic
		// field shape would otherwise recurse without end
		if err := checkDepth(doc.Fields, 1); err != nil {
			errs = multierr.Append(errs, err)
		} else if err := checkFields(name, "", doc.Fields); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		return nil, errs
	}

	s.nodes = make(map[string]*node, len(def.Nodes))
	for name, doc := range def.Nodes {
		n := &node{
			name:     name,
			def:      doc,
			gettable: gettableFields(doc.Fields),
			settable: settableFields(doc.Fields),
		}
		n.gettablePaths = ResolvePaths(n.gettable)
		n.settablePaths = ResolvePaths(n.settable)
		n.settableAt = make(map[string]*FieldDef, len(n.settablePaths))
		for _, p := range n.settablePaths {
			def, err := TypeAtPath(n.settable, p)
			if err != nil {
				return nil, err
			}
			n.settableAt[p] = def
		}
		s.nodes[name] = n
	}
	s.log.Trace("schema prepared", map[string]any{
		"version": def.Version,
		"nodes":   len(s.nodes),
	})
	return s, nil
}

// checkFields validates field names and types recursively. Callers must
// bound the field map with checkDepth first.
func checkFields(nodeName, prefix string, fields FieldMap) error {
	var errs error
	for name, def := range fields {
		p := name
		if prefix != "" {
			p = prefix + PathSep + name
		}
		if name == "" || strings.Contains(name, PathSep) {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("node %q field %q has an invalid name", nodeName, p),
				WithCode(ErrSchema)))
			continue
		}
		if def == nil {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("node %q field %q has no definition", nodeName, p),
				WithCode(ErrSchema)))
			continue
		}
		if !validFieldTypes[def.Type] {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("node %q field %q has invalid type %q", nodeName, p, def.Type),
				WithCode(ErrSchema)))
			continue
		}
		if def.Type == TypeArray && def.Items != nil && !validFieldTypes[def.Items.Type] {
			errs = multierr.Append(errs, NewError(
				fmt.Sprintf("node %q field %q has invalid item type %q", nodeName, p, def.Items.Type),
				WithCode(ErrSchema)))
		}
		if def.isObject() && len(def.Schema) > 0 {
			if err := checkFields(nodeName, p, def.Schema); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}
	return errs
}

// Version returns the declared schema version.
func (s *Schema) Version() string { return s.def.Version }

// NodeNames returns the names of all prepared nodes, sorted.
func (s *Schema) NodeNames() []string {
	names := make([]string, 0, len(s.nodes))
	for name := range s.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Gettable returns the read projection of the named node's fields.
func (s *Schema) Gettable(nodeName string) (FieldMap, error) {
	n, err := s.node(nodeName)
	if err != nil {
		return nil, err
	}
	return n.gettable, nil
}

// Settable returns the write projection of the named node's fields.
func (s *Schema) Settable(nodeName string) (FieldMap, error) {
	n, err := s.node(nodeName)
	if err != nil {
		return nil, err
	}
	return n.settable, nil
}

// GettablePaths returns all dotted paths of the named node's read shape.
func (s *Schema) GettablePaths(nodeName string) ([]string, error) {
	n, err := s.node(nodeName)
	if err != nil {
		return nil, err
	}
	return n.gettablePaths, nil
}

// SettablePaths returns all dotted paths of the named node's write shape.
func (s *Schema) SettablePaths(nodeName string) ([]string, error) {
	n, err := s.node(nodeName)
	if err != nil {
		return nil, err
	}
	return n.settablePaths, nil
}

// SettableTypeAt resolves a dotted path against the named node's write
// shape. Paths that exist only in the read shape (ServerComputed without
// Writable) fail here like unknown paths.
func (s *Schema) SettableTypeAt(nodeName, path string) (*FieldDef, error) {
	n, err := s.node(nodeName)
	if err != nil {
		return nil, err
	}
	if def, ok := n.settableAt[path]; ok {
		return def, nil
	}
	// Not memoized: produce the precise error.
	return TypeAtPath(n.settable, path)
}

// TypedRef decorates a raw reference with the schema node it resolves to.
// The reference must walk existing collection links from a root collection.
func (s *Schema) TypedRef(r RefLike) (TypedRef, error) {
	ref, err := normalizeRef(r)
	if err != nil {
		return TypedRef{}, err
	}
	n, err := s.nodeForRef(ref)
	if err != nil {
		return TypedRef{}, err
	}
	return TypedRef{Node: n.name, Ref: ref}, nil
}

func (s *Schema) node(name string) (*node, error) {
	n, ok := s.nodes[name]
	if !ok {
		return nil, NewError("unknown schema node",
			WithCode(ErrSchema),
			WithContext(map[string]any{"node": name}))
	}
	return n, nil
}

// nodeForRef walks the reference's collection segments through Root and the
// per-node Collections links, resolving each link by node name.
func (s *Schema) nodeForRef(ref Ref) (*node, error) {
	segs := ref.segments
	nodeName, ok := s.def.Root[segs[0]]
	if !ok {
		return nil, NewError("unknown root collection",
			WithCode(ErrInvalidPath),
			WithContext(map[string]any{"collection": segs[0], "ref": ref.Path()}))
	}
	n, err := s.node(nodeName)
	if err != nil {
		return nil, err
	}
	for i := 2; i < len(segs); i += 2 {
		target, ok := n.def.Collections[segs[i]]
		if !ok {
			return nil, NewError("unknown sub-collection",
				WithCode(ErrInvalidPath),
				WithContext(map[string]any{
					"node": n.name, "collection": segs[i], "ref": ref.Path(),
				}))
		}
		n, err = s.node(target)
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}
