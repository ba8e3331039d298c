/*
Package memstore – BSON snapshot persistence.

SaveFile writes the store's committed documents to a single BSON document;
LoadFile replaces the store contents from one. Tombstones are not
persisted. BSON decoding produces driver primitive types, so loaded values
are normalized back to the plain Go shapes the store works with.
*/
package memstore

import (
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	ts "github.com/skeldata/typedstore-go"
)

type fileDoc struct {
	Path string  `bson:"path"`
	Rev  int64   `bson:"rev"`
	Data ts.Item `bson:"data"`
}

type fileImage struct {
	Rev  int64     `bson:"rev"`
	Docs []fileDoc `bson:"docs"`
}

// SaveFile writes the current committed state to path.
func (s *Store) SaveFile(path string) error {
	s.mu.Lock()
	img := fileImage{Rev: int64(s.rev)}
	for p, d := range s.docs {
		if d.data == nil {
			continue
		}
		img.Docs = append(img.Docs, fileDoc{
			Path: p,
			Rev:  int64(d.rev),
			Data: ts.CloneItem(d.data),
		})
	}
	s.mu.Unlock()

	raw, err := bson.Marshal(img)
	if err != nil {
		return ts.NewError("cannot encode store snapshot",
			ts.WithCode(ts.ErrRuntime), ts.WithCause(err))
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return ts.NewError("cannot write store snapshot",
			ts.WithCode(ts.ErrRuntime),
			ts.WithContext(map[string]any{"path": path}),
			ts.WithCause(err))
	}
	s.log.Info("store snapshot saved", map[string]any{
		"path": path, "docs": len(img.Docs),
	})
	return nil
}

// LoadFile replaces the store contents from a snapshot written by SaveFile.
func (s *Store) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ts.NewError("cannot read store snapshot",
			ts.WithCode(ts.ErrRuntime),
			ts.WithContext(map[string]any{"path": path}),
			ts.WithCause(err))
	}
	var img fileImage
	if err := bson.Unmarshal(raw, &img); err != nil {
		return ts.NewError("cannot decode store snapshot",
			ts.WithCode(ts.ErrRuntime), ts.WithCause(err))
	}

	docs := make(map[string]*doc, len(img.Docs))
	rev := uint64(img.Rev)
	for _, fd := range img.Docs {
		docs[fd.Path] = &doc{
			data: normalizeItem(fd.Data),
			rev:  uint64(fd.Rev),
		}
		if uint64(fd.Rev) > rev {
			rev = uint64(fd.Rev)
		}
	}

	s.mu.Lock()
	s.docs = docs
	s.rev = rev
	s.mu.Unlock()
	s.log.Info("store snapshot loaded", map[string]any{
		"path": path, "docs": len(docs),
	})
	return nil
}

// normalizeItem converts BSON primitive decode shapes back to plain Go
// values: primitive.M/A to map/slice, DateTime to time.Time, Binary to
// []byte, int32 widened to int64.
func normalizeItem(it ts.Item) ts.Item {
	if it == nil {
		return nil
	}
	out := make(ts.Item, len(it))
	for k, v := range it {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.M:
		return normalizeItem(ts.Item(t))
	case map[string]any:
		return normalizeItem(t)
	case primitive.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case primitive.Binary:
		return t.Data
	case int32:
		return int64(t)
	default:
		return v
	}
}
