package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe/types"
)

func TestLoggersImplementInterface(t *testing.T) {
	t.Helper()
	var _ types.Logger = (*SlogLogger)(nil)
	var _ types.Logger = (*NopLogger)(nil)
}

func TestSlogLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := NewSlog(slog.New(handler))

	logger.Debug("polling unit", "seq", 3)
	logger.Info("session dispatched", "session_id", "s-1")
	logger.Warn("store unavailable", "attempt", 2)
	logger.Error("submission failed", "error", "timeout")

	output := buf.String()
	assert.Contains(t, output, "level=DEBUG")
	assert.Contains(t, output, "seq=3")
	assert.Contains(t, output, "level=INFO")
	assert.Contains(t, output, "session_id=s-1")
	assert.Contains(t, output, "level=WARN")
	assert.Contains(t, output, "attempt=2")
	assert.Contains(t, output, "level=ERROR")
	assert.Contains(t, output, "error=timeout")
}

func TestSlogLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewSlogWriter(buf, "warn", false)
	require.NoError(t, err)

	logger.Debug("debug message")
	logger.Info("info message")
	assert.Empty(t, buf.String())

	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestSlogLogger_With(t *testing.T) {
	buf := &bytes.Buffer{}
	logger, err := NewSlogWriter(buf, "info", true)
	require.NoError(t, err)

	logger.With("session_id", "abc").Info("unit resolved", "seq", 7)

	output := buf.String()
	assert.Contains(t, output, `"session_id":"abc"`)
	assert.Contains(t, output, `"seq":7`)
	assert.Contains(t, output, `"msg":"unit resolved"`)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNop()

	require.NotPanics(t, func() {
		logger.Debug("")
		logger.Info("message", nil)
		logger.Warn("message", "single")
		logger.Error("message", "k1", "v1")
		logger.Fatal("message", "k1", "v1", "k2", "v2")
	})
}
