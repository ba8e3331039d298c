/*
Package typedstore – the store boundary.

The validating delegate forwards to a TxnHandle; a Store runs a transaction
function against fresh handles, retrying per its own policy. Backends live
in memstore/ and dynamostore/.
*/
package typedstore

import "context"

// Item is the raw shape of one document's data.
type Item = map[string]any

// Snapshot is the result of reading one document inside a transaction.
type Snapshot struct {
	Ref    Ref
	Exists bool
	Data   Item
}

// Get returns the value at a dotted path within the snapshot data.
func (s Snapshot) Get(path string) (any, bool) {
	if !s.Exists || path == "" {
		return nil, false
	}
	return getPath(s.Data, path)
}

// SetOptions modifies set behavior.
type SetOptions struct {
	// Merge writes only the supplied fields instead of replacing the
	// whole document.
	Merge bool
}

// FieldUpdate is one dotted-path assignment within an update instruction.
type FieldUpdate struct {
	Path  string
	Value any
}

// TxnHandle is the store's primitive transaction surface. Set and
// SetWithOptions are distinct on purpose: a plain set must reach the store
// through the two-argument form, never with a synthesized empty options
// argument.
type TxnHandle interface {
	Delete(ctx context.Context, ref Ref) error
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ctx context.Context, ref Ref, data Item) error
	SetWithOptions(ctx context.Context, ref Ref, data Item, opts SetOptions) error
	Update(ctx context.Context, ref Ref, updates []FieldUpdate) error
}

// Store runs transaction functions. It constructs a fresh handle per
// attempt and owns all conflict detection and retry policy.
type Store interface {
	RunTransaction(ctx context.Context, fn func(ctx context.Context, h TxnHandle) error) error
}

// RunTransaction runs fn inside a store transaction, handing it a schema
// delegate bound to that attempt's handle. Each retry gets a fresh delegate.
func RunTransaction(ctx context.Context, store Store, schema *Schema, fn func(ctx context.Context, txn *Txn) error) error {
	if store == nil {
		return NewArgError("nil store")
	}
	if schema == nil {
		return NewArgError("nil schema")
	}
	return store.RunTransaction(ctx, func(ctx context.Context, h TxnHandle) error {
		return fn(ctx, NewTxn(h, schema))
	})
}
