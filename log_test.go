// Zap adapter.
package typedstore_test

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	ts "github.com/skeldata/typedstore-go"
)

func TestZapLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	zl := ts.NewZapLogger(zap.New(core))

	zl.Trace("trace msg", map[string]any{"k": "v"})
	zl.Info("info msg", nil)
	zl.Error("error msg", map[string]any{"ref": "users/u1"})

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.DebugLevel || entries[0].Message != "trace msg" {
		t.Fatalf("trace entry: %+v", entries[0].Entry)
	}
	if entries[1].Level != zapcore.InfoLevel {
		t.Fatalf("info entry: %+v", entries[1].Entry)
	}
	if entries[2].Level != zapcore.ErrorLevel {
		t.Fatalf("error entry: %+v", entries[2].Entry)
	}
	// structured context comes through as fields
	found := false
	for _, f := range entries[2].Context {
		if f.Key == "ref" && f.String == "users/u1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("context field missing: %+v", entries[2].Context)
	}
}

func TestSchemaLogsThroughLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	_, err := ts.NewSchema(&ts.SchemaDef{
		Root: map[string]string{"users": "User"},
		Nodes: map[string]*ts.DocumentDef{
			"User": {Fields: ts.FieldMap{"name": {Type: ts.TypeString}}},
		},
	}, ts.WithLogger(ts.NewZapLogger(zap.New(core))))
	assertNoErr(t, err)
	if logs.FilterMessage("schema prepared").Len() != 1 {
		t.Fatalf("expected a schema prepared log entry")
	}
}
