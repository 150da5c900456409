package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_LevelFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		level    LogLevel
		emit     func(Logger)
		expected bool
	}{
		{"debug suppressed at info", LogLevelInfo, func(l Logger) { l.Debug("msg") }, false},
		{"info passes at info", LogLevelInfo, func(l Logger) { l.Info("msg") }, true},
		{"trace suppressed at debug", LogLevelDebug, func(l Logger) { l.Trace("msg") }, false},
		{"trace passes at trace", LogLevelTrace, func(l Logger) { l.Trace("msg") }, true},
		{"warn suppressed at error", LogLevelError, func(l Logger) { l.Warn("msg") }, false},
		{"explicit level honored", LogLevelWarn, func(l Logger) { l.Log(LogLevelError, "msg") }, true},
		{"explicit level filtered", LogLevelWarn, func(l Logger) { l.Log(LogLevelInfo, "msg") }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			tt.emit(NewSlogLogger(&buf, tt.level, time.UTC))
			assert.Equal(t, tt.expected, strings.Contains(buf.String(), "msg=msg"))
		})
	}
}

func TestSlogLogger_TraceLevelName(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelTrace, time.UTC).Trace("notification")

	assert.Contains(t, buf.String(), "level=TRACE")
	assert.NotContains(t, buf.String(), "time=")
}

func TestModuleLogger_NestedModules(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("sessions").Module("memory")
	log.Info("session created", String("device_id", "spk-1"), Uint32("pid", 4242))

	out := buf.String()
	assert.Contains(t, out, "module=sessions.memory")
	assert.Contains(t, out, "device_id=spk-1")
	assert.Contains(t, out, "pid=4242")
}

func TestModuleLogger_WithDoesNotLeakIntoParent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	parent := NewSlogLogger(&buf, LogLevelInfo, time.UTC).Module("devices")
	child := parent.With(String("device_id", "mic-1"))

	child.Info("child")
	parent.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "device_id=mic-1")
	assert.NotContains(t, lines[1], "device_id")
}

func TestModuleLogger_WithContextTraceID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewSlogLogger(&buf, LogLevelInfo, time.UTC)

	log.WithContext(WithTraceID(context.Background(), "abc123")).Info("traced")
	log.WithContext(context.Background()).Info("untraced")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "trace_id=abc123")
	assert.NotContains(t, lines[1], "trace_id")
}

func TestFieldConstructors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Field{Key: "error", Value: nil}, Error(nil))
	assert.Equal(t, assert.AnError.Error(), Error(assert.AnError).Value)
	assert.Equal(t, int64(7), Uint32("pid", 7).Value)

	attr := fieldToAttr(Duration("elapsed", 1500*time.Millisecond))
	assert.Equal(t, "1.5s", attr.Value.String())

	attr = fieldToAttr(Float64("ratio", 0.123456))
	assert.InDelta(t, 0.123, attr.Value.Float64(), 1e-9)
}

func TestCentralLogger_FileOutputIsJSON(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "audiosessions.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: logPath, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("sessions").Debug("app group created", String("app_id", "notepad.exe"))
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(logPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "app group created", record["msg"])
	assert.Equal(t, "sessions", record["module"])
	assert.Equal(t, "notepad.exe", record["app_id"])
}

func TestCentralLogger_ModuleOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	apiPath := filepath.Join(dir, "api.log")
	cl, err := NewCentralLogger(&LoggingConfig{
		Console: &ConsoleOutput{Enabled: false},
		ModuleOutputs: map[string]ModuleOutput{
			"api": {Enabled: true, FilePath: apiPath, Level: "info"},
		},
	})
	require.NoError(t, err)

	cl.Module("api").Info("request served")
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(apiPath) //nolint:gosec // test file path from t.TempDir()
	require.NoError(t, err)
	assert.Contains(t, string(data), "request served")
}

func TestNewCentralLogger_Errors(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(nil)
	require.Error(t, err)

	_, err = NewCentralLogger(&LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}

func TestApplyConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg := &LoggingConfig{FileOutput: &FileOutput{Enabled: true}}
	applyConfigDefaults(cfg)

	assert.Equal(t, DefaultLogLevel, cfg.DefaultLevel)
	require.NotNil(t, cfg.Console)
	assert.True(t, cfg.Console.Enabled)
	assert.Equal(t, DefaultLogPath, cfg.FileOutput.Path)
	assert.NotNil(t, cfg.ModuleOutputs)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, traceLevelValue, parseLogLevel("trace"))
	assert.Equal(t, parseLogLevel("info"), parseLogLevel("bogus"))
	assert.Less(t, parseLogLevel("debug"), parseLogLevel("warn"))
}
