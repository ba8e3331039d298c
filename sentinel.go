/*
Package typedstore – field transform sentinels.

Sentinels stand in for literal values on writes: delete a field, stamp the
server time, increment a number, or merge/remove array elements atomically.
*/
package typedstore

// SentinelKind discriminates the transform carried by a Sentinel.
type SentinelKind string

const (
	SentinelDelete          SentinelKind = "delete"
	SentinelServerTimestamp SentinelKind = "serverTimestamp"
	SentinelIncrement       SentinelKind = "increment"
	SentinelArrayUnion      SentinelKind = "arrayUnion"
	SentinelArrayRemove     SentinelKind = "arrayRemove"
)

// Sentinel is a field transform supplied in place of a literal value.
// Delete, ServerTimestamp and Increment type-check against any declared
// field type. ArrayUnion and ArrayRemove are only accepted where the write
// shape declares an array field.
type Sentinel struct {
	Kind  SentinelKind
	Num   float64
	Elems []any
}

// DeleteField removes the field from the document.
func DeleteField() Sentinel { return Sentinel{Kind: SentinelDelete} }

// ServerTimestamp stores the store's commit time.
func ServerTimestamp() Sentinel { return Sentinel{Kind: SentinelServerTimestamp} }

// Increment atomically adds n to the stored number (missing counts as 0).
func Increment(n float64) Sentinel { return Sentinel{Kind: SentinelIncrement, Num: n} }

// ArrayUnion atomically appends the elements not already present.
func ArrayUnion(elems ...any) Sentinel {
	return Sentinel{Kind: SentinelArrayUnion, Elems: elems}
}

// ArrayRemove atomically deletes all occurrences of the elements.
func ArrayRemove(elems ...any) Sentinel {
	return Sentinel{Kind: SentinelArrayRemove, Elems: elems}
}
