//go:build unit

package zap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	logpkg "github.com/LerianStudio/lib-txflow/v2/txflow/log"
)

func observedLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)

	return &Logger{
		logger:      zap.New(core),
		atomicLevel: zap.NewAtomicLevelAt(level),
	}, logs
}

func TestLogger_LogDispatchesLevels(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger(zapcore.DebugLevel)
	ctx := context.Background()

	logger.Log(ctx, logpkg.LevelDebug, "debug msg")
	logger.Log(ctx, logpkg.LevelInfo, "info msg")
	logger.Log(ctx, logpkg.LevelWarn, "warn msg")
	logger.Log(ctx, logpkg.LevelError, "error msg", logpkg.Err(errors.New("boom")))
	logger.Log(ctx, logpkg.Level(42), "unknown level msg")

	entries := logs.All()
	require.Len(t, entries, 5)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
	// Unknown levels degrade to info.
	assert.Equal(t, zapcore.InfoLevel, entries[4].Level)

	require.Len(t, entries[3].Context, 1)
	assert.Equal(t, "error", entries[3].Context[0].Key)
}

func TestLogger_With(t *testing.T) {
	t.Parallel()

	logger, logs := observedLogger(zapcore.InfoLevel)

	child := logger.With(logpkg.String("component", "engine"))
	child.Log(context.Background(), logpkg.LevelInfo, "hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Len(t, entries[0].Context, 1)
	assert.Equal(t, "component", entries[0].Context[0].Key)
}

func TestLogger_Enabled(t *testing.T) {
	t.Parallel()

	logger, _ := observedLogger(zapcore.WarnLevel)

	assert.True(t, logger.Enabled(logpkg.LevelError))
	assert.True(t, logger.Enabled(logpkg.LevelWarn))
	assert.False(t, logger.Enabled(logpkg.LevelInfo))
	assert.False(t, logger.Enabled(logpkg.LevelDebug))
}

func TestLogger_NilSafe(t *testing.T) {
	t.Parallel()

	var logger *Logger

	// Must not panic.
	logger.Log(context.Background(), logpkg.LevelInfo, "dropped")
	require.NotNil(t, logger.Raw())
	require.NotNil(t, logger.With(logpkg.String("k", "v")))
}

func TestLogger_SyncRespectsContext(t *testing.T) {
	t.Parallel()

	logger, _ := observedLogger(zapcore.InfoLevel)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, logger.Sync(ctx), context.Canceled)

	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_ = logger.Sync(ctx)
}

func TestNew(t *testing.T) {
	t.Parallel()

	logger, level, err := New(Config{
		Environment:     EnvironmentLocal,
		OTelLibraryName: "txflow-test",
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.Equal(t, zapcore.DebugLevel, level.Level())
	assert.Equal(t, level, logger.Level())

	logger, level, err = New(Config{
		Environment:     EnvironmentProduction,
		OTelLibraryName: "txflow-test",
	})
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level.Level())
	require.True(t, logger.Enabled(logpkg.LevelInfo))
	require.False(t, logger.Enabled(logpkg.LevelDebug))

	// Explicit level overrides the environment default.
	_, level, err = New(Config{
		Environment:     EnvironmentProduction,
		Level:           "error",
		OTelLibraryName: "txflow-test",
	})
	require.NoError(t, err)
	assert.Equal(t, zapcore.ErrorLevel, level.Level())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, _, err := New(Config{Environment: EnvironmentLocal})
	require.Error(t, err)

	_, _, err = New(Config{Environment: "weird", OTelLibraryName: "x"})
	require.Error(t, err)

	_, _, err = New(Config{
		Environment:     EnvironmentLocal,
		Level:           "chatty",
		OTelLibraryName: "x",
	})
	require.Error(t, err)
}
