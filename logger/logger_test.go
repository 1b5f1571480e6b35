package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSink struct {
	buf []byte
}

func (s *testSink) Write(buf []byte) (int, error) {
	s.buf = buf
	return len(buf), nil
}

func captureOutput(f func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	f()
	return buf.String()
}

func TestGetLevelFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		want     LogLevel
	}{
		{"none level", "none", LevelNone},
		{"trace level", "trace", LevelTrace},
		{"debug level", "debug", LevelDebug},
		{"info level", "info", LevelInfo},
		{"warn level", "warn", LevelWarn},
		{"warning alias", "warning", LevelWarn},
		{"error level", "error", LevelError},
		{"case insensitive", "DEBUG", LevelDebug},
		{"empty value", "", LevelDebug},
		{"invalid value", "invalid", LevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(LevelEnvKey, tt.envValue)
			assert.Equal(t, tt.want, GetLevelFromEnv())
		})
	}
}

func TestConsoleLoggerLevels(t *testing.T) {
	logger := NewConsoleLogger().(*consoleLogger)
	tests := []struct {
		level            LogLevel
		shouldContain    []string
		shouldNotContain []string
	}{
		{LevelTrace, []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}, nil},
		{LevelDebug, []string{"DEBUG", "INFO", "WARN", "ERROR"}, []string{"TRACE"}},
		{LevelInfo, []string{"INFO", "WARN", "ERROR"}, []string{"TRACE", "DEBUG"}},
		{LevelWarn, []string{"WARN", "ERROR"}, []string{"TRACE", "DEBUG", "INFO"}},
		{LevelError, []string{"ERROR"}, []string{"TRACE", "DEBUG", "INFO", "WARN"}},
	}
	for _, tt := range tests {
		logger.SetLogLevel(tt.level)
		output := captureOutput(func() {
			logger.Trace("trace message")
			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")
		})
		for _, s := range tt.shouldContain {
			assert.Contains(t, output, s)
		}
		for _, s := range tt.shouldNotContain {
			assert.NotContains(t, output, s)
		}
	}
}

func TestConsoleLoggerPrefixAndMetadata(t *testing.T) {
	sink := &testSink{}
	base := NewPlainConsoleLogger(LevelTrace).(*consoleLogger)
	base.SetSink(sink, LevelTrace)
	l := base.WithPrefix("[cache]").WithPrefix("[cache]").With(map[string]interface{}{"op": "Cache.store"})
	captureOutput(func() {
		l.Info("stored %s", "abc")
	})
	assert.Equal(t, `[INFO ] [cache] stored abc {"op":"Cache.store"}`, string(sink.buf))
}

func TestJSONLoggerWithSink(t *testing.T) {
	sink := &testSink{}
	l := NewJSONLoggerWithSink(sink, LevelInfo).(*jsonLogger)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	l.ts = &ts
	l.Debug("ignored")
	assert.Nil(t, sink.buf)

	l.WithPrefix("[fetchcache]").With(map[string]interface{}{"url": "http://x"}).Warn("miss for %s", "http://x")
	require.NotNil(t, sink.buf)
	var entry JSONLogEntry
	require.NoError(t, json.Unmarshal(sink.buf, &entry))
	assert.Equal(t, "WARNING", entry.Severity)
	assert.Equal(t, "miss for http://x", entry.Message)
	assert.Equal(t, "fetchcache", entry.Component)
	assert.Equal(t, "http://x", entry.Metadata["url"])
	assert.True(t, ts.Equal(entry.Timestamp))
}

func TestJSONLoggerComponentMetadata(t *testing.T) {
	l := NewJSONLogger(LevelInfo).With(map[string]interface{}{"component": "kv", "backend": "redis"}).(*jsonLogger)
	assert.Equal(t, "kv", l.component)
	assert.Equal(t, map[string]interface{}{"backend": "redis"}, l.metadata)
}

func TestTestLogger(t *testing.T) {
	l := NewTestLogger()
	child := WithKV(l, "key", "value")
	child.Warn("partial failure for %s", "Cache.store")
	l.Info("hello")
	logs := l.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, "WARNING", logs[0].Severity)
	assert.Equal(t, "partial failure for Cache.store", logs[0].String())
	assert.Len(t, l.Find("WARNING", "Cache.store"), 1)
	assert.Empty(t, l.Find("ERROR", "Cache.store"))
}
