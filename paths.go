/*
Package typedstore – dotted path resolution.

Paths enumerate the field schema only. Sub-collection links are never
followed here, so recursive collection graphs stay finite.
*/
package typedstore

import (
	"sort"
	"strings"
)

// PathSep joins dotted path segments.
const PathSep = "."

// FieldPath is the structured form of a dotted path: one string per
// segment, joined with the separator on resolution.
type FieldPath []string

// String joins the segments into a dotted path.
func (p FieldPath) String() string { return strings.Join(p, PathSep) }

// maxSchemaDepth bounds field nesting. Schemas deeper than this fail
// preparation, which keeps path enumeration finite on cyclic shapes.
const maxSchemaDepth = 64

// ResolvePaths returns every valid dotted path through the field map,
// sorted. Object fields yield both the path to the object itself (wholesale
// replacement) and the paths rooted at each child. Array and primitive
// fields terminate recursion.
func ResolvePaths(fields FieldMap) []string {
	var out []string
	collectPaths(fields, "", &out)
	sort.Strings(out)
	return out
}

func collectPaths(fields FieldMap, prefix string, out *[]string) {
	for name, def := range fields {
		p := name
		if prefix != "" {
			p = prefix + PathSep + name
		}
		*out = append(*out, p)
		if def.isObject() && len(def.Schema) > 0 {
			collectPaths(def.Schema, p, out)
		}
	}
}

// TypeAtPath walks the field map segment by segment and returns the field
// definition at the terminal segment. Every non-terminal segment must name
// an object field. Empty paths, empty segments (leading, trailing or doubled
// separators) and unknown segments yield an InvalidPathError.
func TypeAtPath(fields FieldMap, path string) (*FieldDef, error) {
	if path == "" {
		return nil, NewError("empty field path",
			WithCode(ErrInvalidPath))
	}
	segments := strings.Split(path, PathSep)
	cur := fields
	for i, seg := range segments {
		if seg == "" {
			return nil, NewError("field path has an empty segment",
				WithCode(ErrInvalidPath),
				WithContext(map[string]any{"path": path}))
		}
		def, ok := cur[seg]
		if !ok {
			return nil, NewError("unknown field in path",
				WithCode(ErrInvalidPath),
				WithContext(map[string]any{"path": path, "segment": seg}))
		}
		if i == len(segments)-1 {
			return def, nil
		}
		if !def.isObject() {
			return nil, NewError("cannot descend through non-object field",
				WithCode(ErrInvalidPath),
				WithContext(map[string]any{"path": path, "segment": seg}))
		}
		cur = def.Schema
	}
	// unreachable: the loop always returns on the last segment
	return nil, NewError("invalid field path",
		WithCode(ErrInvalidPath),
		WithContext(map[string]any{"path": path}))
}

// checkDepth rejects field maps nested beyond maxSchemaDepth. Called once
// per node at schema preparation so ResolvePaths never recurses unbounded.
func checkDepth(fields FieldMap, depth int) error {
	if depth > maxSchemaDepth {
		return NewError("field schema nested too deeply",
			WithCode(ErrSchema),
			WithContext(map[string]any{"maxDepth": maxSchemaDepth}))
	}
	for _, def := range fields {
		if def.isObject() && len(def.Schema) > 0 {
			if err := checkDepth(def.Schema, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
