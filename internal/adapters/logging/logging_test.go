package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/catalogd/internal/ports"
)

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	assert.Same(t, logger, logger.With(ports.F("key", "value")))
	assert.Equal(t, ports.LevelInfo, logger.Level())

	logger.SetLevel(ports.LevelDebug)
	assert.Equal(t, ports.LevelDebug, logger.Level())
}

func TestOrNop(t *testing.T) {
	assert.IsType(t, &NopLogger{}, OrNop(nil))

	console := NewConsoleLogger()
	assert.Same(t, console, OrNop(console))
}

func TestConsoleLogger_TextOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(
		WithOutput(&buf),
		WithLevel(ports.LevelDebug),
		WithTimestamp(false),
	)

	logger.Info(context.Background(), "catalog loaded", ports.F("pkg", "com.example.one"), ports.F("version_code", 3))

	assert.Equal(t, "[INFO] catalog loaded pkg=com.example.one version_code=3\n", buf.String())

	buf.Reset()
	logger.Warn(context.Background(), "catalog not loaded", ports.F("error", "entry not found: x"))
	assert.Equal(t, "[WARN] catalog not loaded error=\"entry not found: x\"\n", buf.String())
}

func TestConsoleLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(
		WithOutput(&buf),
		WithJSONFormat(true),
		WithTimestamp(false),
	)

	logger.Warn(context.Background(), "load failed", ports.Err(assert.AnError))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "load failed", entry["msg"])
	assert.Equal(t, assert.AnError.Error(), entry["error"])
}

func TestConsoleLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(
		WithOutput(&buf),
		WithLevel(ports.LevelWarn),
		WithTimestamp(false),
	)
	ctx := context.Background()

	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	assert.Zero(t, buf.Len())

	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")
	assert.Contains(t, buf.String(), "warn message")
	assert.Contains(t, buf.String(), "error message")
}

func TestConsoleLogger_WithSharesSink(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsoleLogger(
		WithOutput(&buf),
		WithTimestamp(false),
		WithLevelLabel(false),
	)

	child := logger.With(ports.F("component", "registry"))
	child.Info(context.Background(), "child")
	logger.Info(context.Background(), "parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "child component=registry", lines[0])
	assert.Equal(t, "parent", lines[1])

	logger.SetLevel(ports.LevelError)
	assert.Equal(t, ports.LevelError, child.Level())
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer

	logger, err := New(&buf, "debug", "json")
	require.NoError(t, err)
	assert.Equal(t, ports.LevelDebug, logger.Level())

	_, err = New(&buf, "loud", "text")
	assert.Error(t, err)

	_, err = New(&buf, "info", "xml")
	assert.Error(t, err)
}
