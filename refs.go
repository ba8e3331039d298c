/*
Package typedstore – document references.

A Ref is the raw handle: an alternating collection/id segment list parsed
from a slash-joined path. A TypedRef decorates a Ref with the schema node
name it resolves to. Both satisfy RefLike, and every Txn entry point
normalizes through DocRef so the store only ever sees raw references.
*/
package typedstore

import (
	"strings"

	"github.com/skeldata/typedstore-go/internal/uid"
)

// RefSep joins reference path segments.
const RefSep = "/"

// RefLike is anything that can stand in for a document reference.
type RefLike interface {
	// DocRef returns the raw reference.
	DocRef() Ref
}

// Ref is a raw document reference: collection/id pairs from the root.
type Ref struct {
	segments []string
}

// ParseRef parses a slash-joined document path. The path must have an even
// number of non-empty segments (collection/id pairs) and at least one pair.
func ParseRef(path string) (Ref, error) {
	if path == "" {
		return Ref{}, NewError("empty document path",
			WithCode(ErrArgument))
	}
	segments := strings.Split(path, RefSep)
	for _, s := range segments {
		if s == "" {
			return Ref{}, NewError("document path has an empty segment",
				WithCode(ErrArgument),
				WithContext(map[string]any{"path": path}))
		}
	}
	if len(segments)%2 != 0 {
		return Ref{}, NewError("document path must have collection/id pairs",
			WithCode(ErrArgument),
			WithContext(map[string]any{"path": path}))
	}
	return Ref{segments: segments}, nil
}

// MustRef is ParseRef for statically known paths; it panics on error.
func MustRef(path string) Ref {
	r, err := ParseRef(path)
	if err != nil {
		panic(err)
	}
	return r
}

// DocRef returns the reference itself, satisfying RefLike.
func (r Ref) DocRef() Ref { return r }

// Path returns the slash-joined document path.
func (r Ref) Path() string { return strings.Join(r.segments, RefSep) }

// ID returns the document id (the last segment).
func (r Ref) ID() string {
	if len(r.segments) == 0 {
		return ""
	}
	return r.segments[len(r.segments)-1]
}

// Collection returns the name of the collection holding the document.
func (r Ref) Collection() string {
	if len(r.segments) < 2 {
		return ""
	}
	return r.segments[len(r.segments)-2]
}

// Child returns a reference to a document in one of this document's
// sub-collections.
func (r Ref) Child(collection, id string) Ref {
	segs := make([]string, 0, len(r.segments)+2)
	segs = append(segs, r.segments...)
	segs = append(segs, collection, id)
	return Ref{segments: segs}
}

// NewDoc returns a reference to a fresh document in one of this document's
// sub-collections, with a generated id.
func (r Ref) NewDoc(collection string) Ref {
	return r.Child(collection, uid.DocID())
}

// NewDocRef returns a reference to a fresh document in a root collection,
// with a generated id.
func NewDocRef(collection string) Ref {
	return Ref{segments: []string{collection, uid.DocID()}}
}

// Segments returns a copy of the path segments.
func (r Ref) Segments() []string {
	out := make([]string, len(r.segments))
	copy(out, r.segments)
	return out
}

// Equal reports whether two references address the same document.
func (r Ref) Equal(other Ref) bool {
	if len(r.segments) != len(other.segments) {
		return false
	}
	for i := range r.segments {
		if r.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// IsZero reports whether the reference is unparsed/empty.
func (r Ref) IsZero() bool { return len(r.segments) == 0 }

func (r Ref) String() string { return r.Path() }

// TypedRef is a decorated reference carrying the schema node name its
// document resolves to. Interchangeable with the raw Ref everywhere.
type TypedRef struct {
	Node string
	Ref  Ref
}

// DocRef returns the inner raw reference.
func (t TypedRef) DocRef() Ref { return t.Ref }

func (t TypedRef) String() string { return t.Ref.Path() }

// normalizeRef unwraps any RefLike to the raw reference. Applied at every
// transaction entry point.
func normalizeRef(r RefLike) (Ref, error) {
	if r == nil {
		return Ref{}, NewError("nil document reference",
			WithCode(ErrArgument))
	}
	ref := r.DocRef()
	if ref.IsZero() {
		return Ref{}, NewError("empty document reference",
			WithCode(ErrArgument))
	}
	return ref, nil
}
