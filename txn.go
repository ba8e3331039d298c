/*
Package typedstore – the validating transaction delegate.

A Txn wraps exactly one TxnHandle for its lifetime. Every operation
normalizes its reference, resolves the schema node from the reference path,
validates write data against the node's write shape, and forwards. All
conflict tracking and retry policy stays in the store.
*/
package typedstore

import (
	"context"
	"fmt"
	"sort"
)

// Txn validates and forwards transaction operations. Write operations
// return an error; a nil error means the instruction was forwarded and the
// caller may keep issuing operations.
type Txn struct {
	handle TxnHandle
	schema *Schema
	log    Logger
}

// NewTxn binds a delegate to one underlying transaction handle.
func NewTxn(h TxnHandle, schema *Schema) *Txn {
	return &Txn{handle: h, schema: schema, log: schema.log}
}

// Delete forwards a delete instruction. Deletes carry no data, so only the
// reference is checked.
func (t *Txn) Delete(ctx context.Context, ref RefLike) error {
	raw, err := normalizeRef(ref)
	if err != nil {
		return err
	}
	if _, err := t.schema.nodeForRef(raw); err != nil {
		return err
	}
	t.log.Trace("txn delete", map[string]any{"ref": raw.Path()})
	return t.handle.Delete(ctx, raw)
}

// Get reads a document. The snapshot data carries the node's read shape,
// ServerComputed fields included.
func (t *Txn) Get(ctx context.Context, ref RefLike) (Snapshot, error) {
	raw, err := normalizeRef(ref)
	if err != nil {
		return Snapshot{}, err
	}
	if _, err := t.schema.nodeForRef(raw); err != nil {
		return Snapshot{}, err
	}
	t.log.Trace("txn get", map[string]any{"ref": raw.Path()})
	return t.handle.Get(ctx, raw)
}

// Set writes a document. With nil opts the data must supply every required
// settable field and is forwarded through the handle's two-argument Set;
// with opts it is forwarded through SetWithOptions, and a merge admits any
// subset of the settable fields.
func (t *Txn) Set(ctx context.Context, ref RefLike, data Item, opts *SetOptions) error {
	raw, err := normalizeRef(ref)
	if err != nil {
		return err
	}
	n, err := t.schema.nodeForRef(raw)
	if err != nil {
		return err
	}
	merge := opts != nil && opts.Merge
	if err := checkSetData(n.settable, data, merge); err != nil {
		return err
	}
	t.log.Trace("txn set", map[string]any{
		"ref": raw.Path(), "node": n.name, "merge": merge,
	})
	if opts == nil {
		return t.handle.Set(ctx, raw, data)
	}
	return t.handle.SetWithOptions(ctx, raw, data, *opts)
}

// Update partially updates an existing document. Two call shapes:
//
//	Update(ctx, ref, map[string]any{"age": 30, "address": ...})
//	Update(ctx, ref, "age", 30, "address.city", "NYC")
//
// The object shape validates its keys against the node's top-level settable
// fields; the variadic shape resolves each path (string or FieldPath)
// through the settable projection and validates the paired value against
// the resolved type. Both shapes normalize to one sorted instruction list
// before forwarding. Sentinels in place of literals follow the sentinel
// typing rules. The document must already exist; the store signals failure
// otherwise.
func (t *Txn) Update(ctx context.Context, ref RefLike, args ...any) error {
	raw, err := normalizeRef(ref)
	if err != nil {
		return err
	}
	n, err := t.schema.nodeForRef(raw)
	if err != nil {
		return err
	}
	updates, err := t.updateInstructions(n, args)
	if err != nil {
		return err
	}
	t.log.Trace("txn update", map[string]any{
		"ref": raw.Path(), "node": n.name, "fields": len(updates),
	})
	return t.handle.Update(ctx, raw, updates)
}

// updateInstructions is the boundary adapter: it inspects the argument shape once
// and produces the canonical instruction list.
func (t *Txn) updateInstructions(n *node, args []any) ([]FieldUpdate, error) {
	if len(args) == 0 {
		return nil, NewArgError("update requires data or field/value pairs")
	}
	if len(args) == 1 {
		data, ok := args[0].(map[string]any)
		if !ok {
			return nil, NewArgError(fmt.Sprintf(
				"single update argument must be a map, got %T", args[0]))
		}
		return t.objectUpdates(n, data)
	}
	return t.pairUpdates(n, args)
}

func (t *Txn) objectUpdates(n *node, data map[string]any) ([]FieldUpdate, error) {
	if len(data) == 0 {
		return nil, NewArgError("update map is empty")
	}
	updates := make([]FieldUpdate, 0, len(data))
	for key, val := range data {
		def, ok := n.settable[key]
		if !ok {
			return nil, NewError(fmt.Sprintf("unknown field %q", key),
				WithCode(ErrValidation))
		}
		if err := checkValue(def, key, val, true); err != nil {
			return nil, err
		}
		updates = append(updates, FieldUpdate{Path: key, Value: val})
	}
	sortUpdates(updates)
	return updates, nil
}

func (t *Txn) pairUpdates(n *node, args []any) ([]FieldUpdate, error) {
	if len(args)%2 != 0 {
		return nil, NewArgError(fmt.Sprintf(
			"update field/value arguments must come in pairs, got %d", len(args)))
	}
	updates := make([]FieldUpdate, 0, len(args)/2)
	seen := make(map[string]bool, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		path, err := updatePath(args[i])
		if err != nil {
			return nil, err
		}
		if seen[path] {
			return nil, NewArgError(fmt.Sprintf("duplicate update path %q", path))
		}
		seen[path] = true
		def, err := t.schema.SettableTypeAt(n.name, path)
		if err != nil {
			return nil, err
		}
		val := args[i+1]
		if err := checkValue(def, path, val, true); err != nil {
			return nil, err
		}
		updates = append(updates, FieldUpdate{Path: path, Value: val})
	}
	sortUpdates(updates)
	return updates, nil
}

func updatePath(arg any) (string, error) {
	switch v := arg.(type) {
	case string:
		return v, nil
	case FieldPath:
		if len(v) == 0 {
			return "", NewArgError("empty field path")
		}
		return v.String(), nil
	default:
		return "", NewArgError(fmt.Sprintf(
			"update field must be a string or FieldPath, got %T", arg))
	}
}

func sortUpdates(updates []FieldUpdate) {
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].Path < updates[j].Path
	})
}
