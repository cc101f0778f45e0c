package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(level LogLevel) (*MeshLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: level, Format: "json", Output: &buf})
	return l, &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel(" warning "))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
	assert.Equal(t, "WARN", LogLevelWarn.String())
}

func TestMeshLogger_LevelFiltering(t *testing.T) {
	l, buf := newTestLogger(LogLevelWarn)
	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("selector.cache.miss", "query_hash", "abc")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "selector.cache.miss", entries[0]["msg"])
	assert.Equal(t, "abc", entries[0]["query_hash"])
}

func TestMeshLogger_ComponentAndRequest(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf, CustomAttrs: map[string]any{"tenant": "acme"}})
	l := base.WithComponent("orchestrator").WithRequest("req-1")
	l.Info("orchestrator.step.completed", "step", "1")
	base.Info("plain")

	entries := lines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "orchestrator", entries[0]["component"])
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "acme", entries[0]["tenant"])
	assert.NotContains(t, entries[1], "component")
	assert.NotContains(t, entries[1], "request_id")
}

func TestForComponentAndForRequest(t *testing.T) {
	t.Run("mesh logger", func(t *testing.T) {
		base, buf := newTestLogger(LogLevelInfo)
		ForRequest(ForComponent(base, "selector"), "req-9").Info("selector.cache.hit")

		entries := lines(t, buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "selector", entries[0]["component"])
		assert.Equal(t, "req-9", entries[0]["request_id"])
	})

	t.Run("plain slog adapter", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))
		ForRequest(ForComponent(base, "registry"), "req-3").Warn("registry.invoke.timeout", "tool", "slow")

		entries := lines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "registry", entries[0]["component"])
		assert.Equal(t, "req-3", entries[0]["request_id"])
		assert.Equal(t, "slow", entries[0]["tool"])
	})

	t.Run("nil and noop stay silent", func(t *testing.T) {
		assert.Equal(t, NoOpLogger{}, ForComponent(nil, "x"))
		assert.Equal(t, NoOpLogger{}, ForRequest(NoOpLogger{}, "x"))
	})
}

func TestMeshLogger_OddArgs(t *testing.T) {
	l, buf := newTestLogger(LogLevelInfo)
	l.Info("odd", "key")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "key", entries[0]["!BADKEY"])
}

func TestDomainHelpers(t *testing.T) {
	l, buf := newTestLogger(LogLevelDebug)
	LogToolCall(l, "weather", 20*time.Millisecond, errors.New("timeout"))
	LogToolCall(l, "clock", time.Millisecond, nil)
	LogGeneration(l, "synthesis", time.Second, nil)
	LogSelection(l, "ensemble", []string{"clock"}, time.Millisecond, "lexical_weight", 0.7)
	LogExecution(l, 3, 0, 0, time.Second, "synthesis", "template")

	entries := lines(t, buf)
	require.Len(t, entries, 5)

	assert.Equal(t, "tool.call.failed", entries[0]["msg"])
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.Equal(t, "timeout", entries[0]["error"])
	assert.Equal(t, float64(20), entries[0]["duration_ms"])

	assert.Equal(t, "tool.call.completed", entries[1]["msg"])
	assert.Equal(t, "INFO", entries[1]["level"])

	assert.Equal(t, "generation.completed", entries[2]["msg"])
	assert.Equal(t, "DEBUG", entries[2]["level"])

	assert.Equal(t, "selection.completed", entries[3]["msg"])
	assert.Equal(t, []any{"clock"}, entries[3]["tools"])
	assert.Equal(t, 0.7, entries[3]["lexical_weight"])

	assert.Equal(t, "execution.completed", entries[4]["msg"])
	assert.Equal(t, "WARN", entries[4]["level"])
	assert.Equal(t, "template", entries[4]["synthesis"])
}

func TestDomainHelpers_RespectLevel(t *testing.T) {
	l, buf := newTestLogger(LogLevelWarn)
	LogToolCall(l, "clock", time.Millisecond, nil)
	LogGeneration(l, "decompose.intent", time.Millisecond, nil)
	LogGeneration(l, "decompose.intent", time.Millisecond, errors.New("rate limited"))

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "generation.failed", entries[0]["msg"])
}

func TestMeshLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: &buf, Component: "engine"})
	l.Info("engine.catalog.changed", "tools", 2)
	assert.Contains(t, buf.String(), "component=engine")
	assert.Contains(t, buf.String(), "tools=2")
}

func TestSlogAdapterAndOrNoOp(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "k=v")

	assert.Equal(t, NoOpLogger{}, OrNoOp(nil))
	assert.Equal(t, l, OrNoOp(l))
}
