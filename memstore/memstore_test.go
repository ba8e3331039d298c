package memstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	ts "github.com/skeldata/typedstore-go"
)

func bg() context.Context { return context.Background() }

var frozen = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return New(WithClock(func() time.Time { return frozen }))
}

func testSchema(t *testing.T) *ts.Schema {
	t.Helper()
	s, err := ts.NewSchema(&ts.SchemaDef{
		Root: map[string]string{"users": "User"},
		Nodes: map[string]*ts.DocumentDef{
			"User": {Fields: ts.FieldMap{
				"name": {Type: ts.TypeString, Required: true},
				"age":  {Type: ts.TypeNumber},
				"tags": {Type: ts.TypeArray, Items: &ts.ItemsDef{Type: ts.TypeString}},
				"address": {Type: ts.TypeObject, Schema: ts.FieldMap{
					"city": {Type: ts.TypeString},
				}},
			}},
		},
	})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func put(t *testing.T, store *Store, schema *ts.Schema, path string, data ts.Item) {
	t.Helper()
	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		return txn.Set(ctx, ts.MustRef(path), data, nil)
	})
	if err != nil {
		t.Fatalf("put %s: %v", path, err)
	}
}

func TestRunTransaction_SetGetDelete(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")

	put(t, store, schema, "users/u1", ts.Item{"name": "Peter Smith", "age": 20})

	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		snap, err := txn.Get(ctx, ref)
		if err != nil {
			return err
		}
		if !snap.Exists {
			t.Fatalf("document should exist")
		}
		if name, _ := snap.Get("name"); name != "Peter Smith" {
			t.Fatalf("name: %v", name)
		}
		return txn.Delete(ctx, ref)
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}

	snap, err := store.Read(ref)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if snap.Exists {
		t.Fatalf("document should be deleted")
	}
}

func TestRunTransaction_UpdateSentinels(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")

	put(t, store, schema, "users/u1", ts.Item{
		"name": "Peter Smith",
		"age":  20,
		"tags": []any{"go"},
	})

	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		if _, err := txn.Get(ctx, ref); err != nil {
			return err
		}
		return txn.Update(ctx, ref,
			"age", ts.Increment(5),
			"tags", ts.ArrayUnion("db", "go"),
			"address.city", "NYC",
		)
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}

	snap, _ := store.Read(ref)
	want := ts.Item{
		"name":    "Peter Smith",
		"age":     float64(25),
		"tags":    []any{"go", "db"},
		"address": ts.Item{"city": "NYC"},
	}
	if diff := cmp.Diff(want, snap.Data); diff != "" {
		t.Fatalf("document (-want +got):\n%s", diff)
	}
}

func TestRunTransaction_UpdateMissingDocument(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)

	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		return txn.Update(ctx, ts.MustRef("users/ghost"), "age", 1)
	})
	if !ts.IsCode(err, ts.ErrNotFound) {
		t.Fatalf("expected NotFoundError, got: %v", err)
	}
}

// A conflicting external commit between a read and the commit forces a
// retry, and the retried attempt sees the new state.
func TestRunTransaction_ConflictRetry(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")

	put(t, store, schema, "users/u1", ts.Item{"name": "Peter Smith", "age": 10})

	attempts := 0
	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		attempts++
		if _, err := txn.Get(ctx, ref); err != nil {
			return err
		}
		if attempts == 1 {
			// sneak in a conflicting commit before this attempt commits
			put(t, store, schema, "users/u1", ts.Item{"name": "Peter Smith", "age": 100})
		}
		return txn.Update(ctx, ref, "age", ts.Increment(1))
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}

	snap, _ := store.Read(ref)
	if age, _ := snap.Get("age"); age != float64(101) {
		t.Fatalf("age: %v", age)
	}
}

func TestRunTransaction_RetryBudget(t *testing.T) {
	store := New(WithMaxAttempts(3))
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")
	put(t, store, schema, "users/u1", ts.Item{"name": "Peter Smith"})

	attempts := 0
	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		attempts++
		if _, err := txn.Get(ctx, ref); err != nil {
			return err
		}
		// every attempt loses the race
		put(t, store, schema, "users/u1", ts.Item{"name": "Peter Smith"})
		return txn.Update(ctx, ref, "age", 1)
	})
	if !ts.IsCode(err, ts.ErrConflict) {
		t.Fatalf("expected ConflictError, got: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRunTransaction_ReadAfterWriteRejected(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")

	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		if err := txn.Set(ctx, ref, ts.Item{"name": "Bo"}, nil); err != nil {
			return err
		}
		_, err := txn.Get(ctx, ref)
		return err
	})
	if !ts.IsCode(err, ts.ErrArgument) {
		t.Fatalf("expected ArgumentError, got: %v", err)
	}
}

// A delete between attempts is a conflict like any other write.
func TestRunTransaction_TombstoneConflict(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")
	put(t, store, schema, "users/u1", ts.Item{"name": "Peter Smith"})

	attempts := 0
	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		attempts++
		snap, err := txn.Get(ctx, ref)
		if err != nil {
			return err
		}
		if attempts == 1 {
			delErr := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, other *ts.Txn) error {
				return other.Delete(ctx, ref)
			})
			if delErr != nil {
				t.Fatalf("delete: %v", delErr)
			}
		}
		if !snap.Exists {
			return nil // second attempt observes the delete
		}
		return txn.Update(ctx, ref, "age", 1)
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	ref := ts.MustRef("users/u1")
	put(t, store, schema, "users/u1", ts.Item{"name": "Bo", "tags": []any{"go"}})

	err := ts.RunTransaction(bg(), store, schema, func(ctx context.Context, txn *ts.Txn) error {
		snap, err := txn.Get(ctx, ref)
		if err != nil {
			return err
		}
		// mutating the snapshot must not leak into the store
		snap.Data["name"] = "Hacked"
		return nil
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	snap, _ := store.Read(ref)
	if name, _ := snap.Get("name"); name != "Bo" {
		t.Fatalf("snapshot mutation leaked: %v", name)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	store := newTestStore()
	schema := testSchema(t)
	put(t, store, schema, "users/u1", ts.Item{
		"name":    "Peter Smith",
		"age":     20,
		"tags":    []any{"go", "db"},
		"address": map[string]any{"city": "NYC"},
	})
	put(t, store, schema, "users/u2", ts.Item{"name": "Patty O'Furniture"})

	path := filepath.Join(t.TempDir(), "store.bson")
	if err := store.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	loaded := newTestStore()
	if err := loaded.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("Len: %d", loaded.Len())
	}

	snap, err := loaded.Read(ts.MustRef("users/u1"))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if name, _ := snap.Get("name"); name != "Peter Smith" {
		t.Fatalf("name: %v", name)
	}
	if city, _ := snap.Get("address.city"); city != "NYC" {
		t.Fatalf("address.city: %v", city)
	}
	tags, _ := snap.Get("tags")
	if diff := cmp.Diff([]any{"go", "db"}, tags); diff != "" {
		t.Fatalf("tags (-want +got):\n%s", diff)
	}

	// a loaded store keeps taking transactions
	err = ts.RunTransaction(bg(), loaded, schema, func(ctx context.Context, txn *ts.Txn) error {
		if _, err := txn.Get(ctx, ts.MustRef("users/u1")); err != nil {
			return err
		}
		return txn.Update(ctx, ts.MustRef("users/u1"), "age", ts.Increment(1))
	})
	if err != nil {
		t.Fatalf("txn after load: %v", err)
	}
}
