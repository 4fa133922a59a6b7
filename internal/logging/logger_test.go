package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("info"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("librapp", "warn", false)
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	t.Run("adds request id", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		FromContext(ctx, base).Info("hello")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "req-123", entries[0].ContextMap()["request_id"])
	})

	t.Run("leaves logger untouched without id", func(t *testing.T) {
		FromContext(context.Background(), base).Info("hello")

		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.NotContains(t, entries[0].ContextMap(), "request_id")
	})

	assert.Equal(t, "", RequestID(context.Background()))
}
