package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(Config{Level: level, Format: "json", Output: &buf, ServiceName: "posprint"}), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &rec))
	return rec
}

func TestNewJSON(t *testing.T) {
	log, buf := newBuffered("info")

	log.Info("job queued", "kind", "text")

	rec := lastRecord(t, buf)
	assert.Equal(t, "job queued", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "posprint", rec["service"])
	assert.Equal(t, "text", rec["kind"])
	assert.True(t, strings.HasSuffix(rec["time"].(string), "Z"), "time is UTC")
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Format: "TEXT", Output: &buf})

	log.Info("printer online")

	assert.Contains(t, buf.String(), "msg=\"printer online\"")
	assert.NotContains(t, buf.String(), "service=")
}

func TestLevels(t *testing.T) {
	log, buf := newBuffered("warn")

	log.Debug("d")
	log.Info("i")
	assert.Zero(t, buf.Len())

	log.Warn("w")
	log.Error("e")
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
}

func TestScopedLoggers(t *testing.T) {
	log, buf := newBuffered("debug")

	log.WithComponent("scheduler").WithJobID("job-1").WithDevice("cups", "TM-T20").Info("job printed")

	rec := lastRecord(t, buf)
	assert.Equal(t, "scheduler", rec["component"])
	assert.Equal(t, "job-1", rec["job_id"])
	assert.Equal(t, "cups", rec["backend"])
	assert.Equal(t, "TM-T20", rec["device"])

	log.WithDevice("usb", "").Info("no device yet")
	rec = lastRecord(t, buf)
	assert.Equal(t, "usb", rec["backend"])
	assert.NotContains(t, rec, "device")
}

func TestFromContext(t *testing.T) {
	log, buf := newBuffered("info")

	ctx := ContextWithRequestID(context.Background(), "req-9")
	ctx = ContextWithJobID(ctx, "job-3")
	log.FromContext(ctx).Info("request completed")

	rec := lastRecord(t, buf)
	assert.Equal(t, "req-9", rec["request_id"])
	assert.Equal(t, "job-3", rec["job_id"])

	assert.Same(t, log, log.FromContext(context.Background()))
}

func TestPrintf(t *testing.T) {
	log, buf := newBuffered("info")

	log.Printf(context.Background(), "redis: dial tcp %s: connection refused\n", "localhost:6379")

	rec := lastRecord(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "redis: dial tcp localhost:6379: connection refused", rec["msg"])
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Error("dropped")
	assert.False(t, log.Enabled(context.Background(), slog.LevelWarn))
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}
