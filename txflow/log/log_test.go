//go:build unit

package log

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	mu     sync.Mutex
	levels []Level
	msgs   []string
	fields [][]Field
}

func (r *recordingLogger) Log(_ context.Context, level Level, msg string, fields ...Field) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.levels = append(r.levels, level)
	r.msgs = append(r.msgs, msg)
	r.fields = append(r.fields, fields)
}

func (r *recordingLogger) With(_ ...Field) Logger { return r }

func (r *recordingLogger) WithGroup(_ string) Logger { return r }

func (r *recordingLogger) Enabled(_ Level) bool { return true }

func (r *recordingLogger) Sync(_ context.Context) error { return nil }

func TestLevel_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "error", LevelError.String())
	require.Equal(t, "warn", LevelWarn.String())
	require.Equal(t, "info", LevelInfo.String())
	require.Equal(t, "debug", LevelDebug.String())
	require.Equal(t, "unknown", Level(42).String())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    Level
		wantErr bool
	}{
		{raw: "debug", want: LevelDebug},
		{raw: "INFO", want: LevelInfo},
		{raw: "warn", want: LevelWarn},
		{raw: "warning", want: LevelWarn},
		{raw: "Error", want: LevelError},
		{raw: "fatal", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		level, err := ParseLevel(tt.raw)

		if tt.wantErr {
			require.Error(t, err, tt.raw)

			continue
		}

		require.NoError(t, err, tt.raw)
		require.Equal(t, tt.want, level, tt.raw)
	}
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	require.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	require.Equal(t, Field{Key: "n", Value: 7}, Int("n", 7))
	require.Equal(t, Field{Key: "b", Value: true}, Bool("b", true))
	require.Equal(t, Field{Key: "d", Value: time.Second}, Duration("d", time.Second))
	require.Equal(t, Field{Key: "a", Value: 3.14}, Any("a", 3.14))
	require.Equal(t, Field{Key: "error", Value: boom}, Err(boom))
}

func TestSafeError(t *testing.T) {
	t.Parallel()

	recorder := &recordingLogger{}
	boom := errors.New("boom")

	SafeError(recorder, context.Background(), "it broke", boom)
	require.Len(t, recorder.msgs, 1)
	require.Equal(t, LevelError, recorder.levels[0])
	require.Equal(t, "it broke", recorder.msgs[0])
	require.Equal(t, []Field{Err(boom)}, recorder.fields[0])

	// Nil error and nil logger are both no-ops.
	SafeError(recorder, context.Background(), "ignored", nil)
	require.Len(t, recorder.msgs, 1)

	SafeError(nil, context.Background(), "ignored", boom)
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NewNop()

	logger.Log(context.Background(), LevelError, "dropped", Err(errors.New("boom")))
	require.Same(t, logger, logger.With(String("k", "v")))
	require.Same(t, logger, logger.WithGroup("group"))
	require.False(t, logger.Enabled(LevelError))
	require.NoError(t, logger.Sync(context.Background()))
}
