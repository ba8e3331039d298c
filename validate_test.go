// Write-shape validation on set.
package typedstore_test

import (
	"testing"

	ts "github.com/skeldata/typedstore-go"
)

func TestSet_FullDocument(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")

	assertNoErr(t, txn.Set(bg(), ref, ts.Item{
		"name": "Peter Smith",
		"age":  30,
		"tags": []any{"go", "db"},
		"address": map[string]any{
			"city": "NYC",
		},
	}, nil))
}

func TestSet_MissingRequired(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")

	// name is required on a full set
	assertErrCode(t, txn.Set(bg(), ref, ts.Item{"age": 30}, nil), ts.ErrValidation)

	// but a merge set may supply any subset
	assertNoErr(t, txn.Set(bg(), ref, ts.Item{"age": 30}, &ts.SetOptions{Merge: true}))
}

func TestSet_UnknownAndServerComputed(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")

	assertErrCode(t, txn.Set(bg(), ref,
		ts.Item{"name": "Bo", "nickname": "B"}, nil), ts.ErrValidation)

	// updatedAt is server-computed and not writable
	assertErrCode(t, txn.Set(bg(), ref,
		ts.Item{"name": "Bo", "updatedAt": ts.ServerTimestamp()}, nil), ts.ErrValidation)

	// createdAt carries the writable override
	assertNoErr(t, txn.Set(bg(), ref,
		ts.Item{"name": "Bo", "createdAt": ts.ServerTimestamp()}, nil))

	// nested server-computed fields are rejected too
	assertErrCode(t, txn.Set(bg(), ref, ts.Item{
		"name":    "Bo",
		"address": map[string]any{"zip": "10001"},
	}, nil), ts.ErrValidation)
}

func TestSet_TypeMismatches(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")

	cases := []ts.Item{
		{"name": 42},
		{"name": "Bo", "age": "thirty"},
		{"name": "Bo", "tags": "go"},
		{"name": "Bo", "tags": []any{1, 2}}, // item type is string
		{"name": "Bo", "address": "NYC"},
	}
	for i, data := range cases {
		if err := txn.Set(bg(), ref, data, nil); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestSet_ArraySentinels(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")
	merge := &ts.SetOptions{Merge: true}

	assertNoErr(t, txn.Set(bg(), ref, ts.Item{"tags": ts.ArrayUnion("go")}, merge))
	assertNoErr(t, txn.Set(bg(), ref, ts.Item{"tags": ts.ArrayRemove("db")}, merge))

	// array transforms are rejected on non-array fields
	assertErrCode(t, txn.Set(bg(), ref,
		ts.Item{"age": ts.ArrayUnion(1)}, merge), ts.ErrValidation)

	// typed elements are validated
	assertErrCode(t, txn.Set(bg(), ref,
		ts.Item{"tags": ts.ArrayUnion(42)}, merge), ts.ErrValidation)
}

func TestSet_DeleteSentinelNeedsMerge(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")

	assertErrCode(t, txn.Set(bg(), ref,
		ts.Item{"name": "Bo", "age": ts.DeleteField()}, nil), ts.ErrValidation)

	assertNoErr(t, txn.Set(bg(), ref,
		ts.Item{"age": ts.DeleteField()}, &ts.SetOptions{Merge: true}))
}

func TestSet_NilValues(t *testing.T) {
	txn, _ := newTestTxn(t)
	ref := ts.MustRef("users/u1")

	assertErrCode(t, txn.Set(bg(), ref, nil, nil), ts.ErrValidation)
	assertErrCode(t, txn.Set(bg(), ref,
		ts.Item{"name": "Bo", "age": nil}, nil), ts.ErrValidation)
}
