/*
Package typedstore – sentinel application for store backends.

Backends share one implementation of the write semantics: how a set (plain
or merge) and an update instruction list transform a document body, with
every sentinel resolved against a commit timestamp.
*/
package typedstore

import (
	"reflect"
	"strings"
	"time"
)

// CloneItem deep-copies a document body so snapshots and buffered writes
// never alias live store state.
func CloneItem(it Item) Item {
	if it == nil {
		return nil
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneItem(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// ApplySet produces the new document body for a set instruction. A plain
// set replaces the document; a merge set overlays the supplied fields onto
// the existing body, merging nested maps. Sentinels resolve against now.
func ApplySet(existing, data Item, opts *SetOptions, now time.Time) Item {
	merge := opts != nil && opts.Merge
	base := Item{}
	if merge && existing != nil {
		base = CloneItem(existing)
	}
	applyFields(base, data, now)
	return base
}

func applyFields(dst, src Item, now time.Time) {
	for k, v := range src {
		if s, ok := v.(Sentinel); ok {
			applySentinel(dst, k, s, now)
			continue
		}
		if m, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				applyFields(cur, m, now)
				continue
			}
			sub := Item{}
			applyFields(sub, m, now)
			dst[k] = sub
			continue
		}
		dst[k] = cloneValue(v)
	}
}

func applySentinel(dst Item, key string, s Sentinel, now time.Time) {
	switch s.Kind {
	case SentinelDelete:
		delete(dst, key)
	case SentinelServerTimestamp:
		dst[key] = now
	case SentinelIncrement:
		dst[key] = addNumber(dst[key], s.Num)
	case SentinelArrayUnion:
		dst[key] = unionArray(dst[key], s.Elems)
	case SentinelArrayRemove:
		dst[key] = removeArray(dst[key], s.Elems)
	}
}

// ApplyUpdates applies a canonical update instruction list to an existing
// document body. Updates require the document to exist.
func ApplyUpdates(existing Item, updates []FieldUpdate, now time.Time) (Item, error) {
	if existing == nil {
		return nil, NewError("update target does not exist",
			WithCode(ErrNotFound))
	}
	out := CloneItem(existing)
	for _, u := range updates {
		if s, ok := u.Value.(Sentinel); ok {
			if s.Kind == SentinelDelete {
				deletePath(out, u.Path)
				continue
			}
			parent, key := pathParent(out, u.Path)
			applySentinel(parent, key, s, now)
			continue
		}
		setPath(out, u.Path, cloneValue(u.Value))
	}
	return out, nil
}

// pathParent walks to the map holding the terminal segment, creating
// intermediate maps as needed, and returns it with the terminal key.
func pathParent(m Item, path string) (Item, string) {
	segs := strings.Split(path, PathSep)
	cur := m
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = Item{}
			cur[seg] = next
		}
		cur = next
	}
	return cur, segs[len(segs)-1]
}

func setPath(m Item, path string, v any) {
	parent, key := pathParent(m, path)
	parent[key] = v
}

func getPath(m Item, path string) (any, bool) {
	var cur any = m
	for _, seg := range strings.Split(path, PathSep) {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = mm[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// deletePath removes the terminal segment without creating intermediates.
func deletePath(m Item, path string) {
	segs := strings.Split(path, PathSep)
	cur := m
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, segs[len(segs)-1])
}

func addNumber(existing any, n float64) any {
	switch t := existing.(type) {
	case int:
		return float64(t) + n
	case int32:
		return float64(t) + n
	case int64:
		return float64(t) + n
	case float32:
		return float64(t) + n
	case float64:
		return t + n
	default:
		return n
	}
}

func unionArray(existing any, elems []any) []any {
	out := asSlice(existing)
	for _, e := range elems {
		found := false
		for _, have := range out {
			if reflect.DeepEqual(have, e) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, cloneValue(e))
		}
	}
	return out
}

func removeArray(existing any, elems []any) []any {
	have := asSlice(existing)
	out := make([]any, 0, len(have))
	for _, v := range have {
		drop := false
		for _, e := range elems {
			if reflect.DeepEqual(v, e) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, v)
		}
	}
	return out
}

// asSlice copies any slice value into a fresh []any. Non-slices (including
// a missing field) yield an empty slice.
func asSlice(v any) []any {
	if v == nil {
		return []any{}
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i, e := range s {
			out[i] = cloneValue(e)
		}
		return out
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return []any{}
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = cloneValue(rv.Index(i).Interface())
	}
	return out
}
