/*
Package typedstore – logging interface.
*/
package typedstore

import (
	"encoding/json"
	"log"

	"go.uber.org/zap"
)

// Logger is the interface callers may supply to schemas and store backends.
// Each method receives a structured context map (may be nil).
type Logger interface {
	Trace(message string, ctx map[string]any)
	Info(message string, ctx map[string]any)
	Error(message string, ctx map[string]any)
	Data(message string, ctx map[string]any)
}

// defaultLogger writes info/error to the standard library logger and silently
// drops trace/data.
type defaultLogger struct{}

func (defaultLogger) Trace(string, map[string]any) {}
func (defaultLogger) Data(string, map[string]any)  {}

func (defaultLogger) Info(msg string, ctx map[string]any) {
	logLine("INFO", msg, ctx)
}

func (defaultLogger) Error(msg string, ctx map[string]any) {
	logLine("ERROR", msg, ctx)
}

func logLine(level, msg string, ctx map[string]any) {
	if ctx == nil {
		log.Printf("[%s] %s", level, msg)
		return
	}
	b, err := json.Marshal(ctx)
	if err != nil {
		log.Printf("[%s] %s %v", level, msg, ctx)
		return
	}
	log.Printf("[%s] %s %s", level, msg, b)
}

// ZapLogger adapts a zap sugared logger to the Logger interface.
type ZapLogger struct {
	S *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger.
func NewZapLogger(l *zap.Logger) ZapLogger {
	return ZapLogger{S: l.Sugar()}
}

func (z ZapLogger) Trace(msg string, ctx map[string]any) { z.S.Debugw(msg, kvPairs(ctx)...) }
func (z ZapLogger) Data(msg string, ctx map[string]any)  { z.S.Debugw(msg, kvPairs(ctx)...) }
func (z ZapLogger) Info(msg string, ctx map[string]any)  { z.S.Infow(msg, kvPairs(ctx)...) }
func (z ZapLogger) Error(msg string, ctx map[string]any) { z.S.Errorw(msg, kvPairs(ctx)...) }

func kvPairs(ctx map[string]any) []any {
	kv := make([]any, 0, len(ctx)*2)
	for k, v := range ctx {
		kv = append(kv, k, v)
	}
	return kv
}

// nopLogger silently discards everything.
type nopLogger struct{}

func (nopLogger) Trace(string, map[string]any) {}
func (nopLogger) Data(string, map[string]any)  {}
func (nopLogger) Info(string, map[string]any)  {}
func (nopLogger) Error(string, map[string]any) {}

// NopLogger returns a Logger that discards all output.
func NopLogger() Logger { return nopLogger{} }
