/*
Package typedstore_test – shared test infrastructure.
*/
package typedstore_test

import (
	"context"
	"testing"

	ts "github.com/skeldata/typedstore-go"
)

func bg() context.Context { return context.Background() }

// userSchema is the schema used across the delegate tests: a recursive
// Post node and a User with a nested address whose zip is server-computed.
func userSchema(t *testing.T) *ts.Schema {
	t.Helper()
	def := &ts.SchemaDef{
		Version: "1",
		Root:    map[string]string{"users": "User"},
		Nodes: map[string]*ts.DocumentDef{
			"User": {
				Fields: ts.FieldMap{
					"name": {Type: ts.TypeString, Required: true},
					"age":  {Type: ts.TypeNumber},
					"tags": {Type: ts.TypeArray, Items: &ts.ItemsDef{Type: ts.TypeString}},
					"address": {Type: ts.TypeObject, Schema: ts.FieldMap{
						"city": {Type: ts.TypeString},
						"zip":  {Type: ts.TypeString, ServerComputed: true},
					}},
					"createdAt": {Type: ts.TypeDate, ServerComputed: true, Writable: true},
					"updatedAt": {Type: ts.TypeDate, ServerComputed: true},
				},
				Collections: map[string]string{"posts": "Post"},
			},
			"Post": {
				Fields: ts.FieldMap{
					"title": {Type: ts.TypeString, Required: true},
					"likes": {Type: ts.TypeNumber},
				},
				// posts can nest replies of the same node type
				Collections: map[string]string{"replies": "Post"},
			},
		},
	}
	s, err := ts.NewSchema(def, ts.WithLogger(ts.NopLogger()))
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

// ─── recording handle ────────────────────────────────────────────────────────

type call struct {
	op      string
	ref     ts.Ref
	data    ts.Item
	opts    *ts.SetOptions
	updates []ts.FieldUpdate
}

// recordingHandle captures every forwarded instruction so tests can verify
// exactly what the delegate sent to the store.
type recordingHandle struct {
	calls []call
	snaps map[string]ts.Snapshot
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{snaps: map[string]ts.Snapshot{}}
}

func (h *recordingHandle) Delete(_ context.Context, ref ts.Ref) error {
	h.calls = append(h.calls, call{op: "delete", ref: ref})
	return nil
}

func (h *recordingHandle) Get(_ context.Context, ref ts.Ref) (ts.Snapshot, error) {
	h.calls = append(h.calls, call{op: "get", ref: ref})
	if snap, ok := h.snaps[ref.Path()]; ok {
		return snap, nil
	}
	return ts.Snapshot{Ref: ref}, nil
}

func (h *recordingHandle) Set(_ context.Context, ref ts.Ref, data ts.Item) error {
	h.calls = append(h.calls, call{op: "set", ref: ref, data: data})
	return nil
}

func (h *recordingHandle) SetWithOptions(_ context.Context, ref ts.Ref, data ts.Item, opts ts.SetOptions) error {
	h.calls = append(h.calls, call{op: "setWithOptions", ref: ref, data: data, opts: &opts})
	return nil
}

func (h *recordingHandle) Update(_ context.Context, ref ts.Ref, updates []ts.FieldUpdate) error {
	h.calls = append(h.calls, call{op: "update", ref: ref, updates: updates})
	return nil
}

func (h *recordingHandle) lastCall(t *testing.T) call {
	t.Helper()
	if len(h.calls) == 0 {
		t.Fatalf("no calls recorded")
	}
	return h.calls[len(h.calls)-1]
}

// ─── assertions ──────────────────────────────────────────────────────────────

func assertErrCode(t *testing.T, err error, code ts.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !ts.IsCode(err, code) {
		t.Fatalf("expected %s error, got: %v", code, err)
	}
}

func assertNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
