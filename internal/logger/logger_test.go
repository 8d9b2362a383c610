package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(""))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	scoped := zap.New(core).With(CorrelationID("c-1"))

	ctx := ToContext(context.Background(), scoped)
	From(ctx).Info("hello", Backend("http://b"))

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "c-1", entries[0].ContextMap()["correlation_id"])
	assert.Equal(t, "http://b", entries[0].ContextMap()["backend"])
}

func TestFromFallsBackToProcessLogger(t *testing.T) {
	nop := zap.NewNop()
	Set(nop)
	t.Cleanup(func() { Set(nil) })

	assert.Same(t, nop, From(context.Background()))
	assert.Same(t, nop, L())
}
