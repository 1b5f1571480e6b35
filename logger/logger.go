package logger

import (
	"io"
	"os"
	"regexp"
	"strings"
)

// LogLevel defines the level of logging
type LogLevel int

const (
	LevelTrace LogLevel = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

// LevelEnvKey is the environment variable consulted by GetLevelFromEnv.
const LevelEnvKey = "KVCACHE_LOG_LEVEL"

type Sink io.Writer

// Logger is an interface for logging
type Logger interface {
	// With will return a new logger using metadata as the base context
	With(metadata map[string]interface{}) Logger
	// WithPrefix will return a new logger with a prefix prepended to the message
	WithPrefix(prefix string) Logger
	// Trace level logging
	Trace(msg string, args ...interface{})
	// Debug level logging
	Debug(msg string, args ...interface{})
	// Info level logging
	Info(msg string, args ...interface{})
	// Warning level logging
	Warn(msg string, args ...interface{})
	// Error level logging
	Error(msg string, args ...interface{})
	// Fatal level logging and exit with code 1
	Fatal(msg string, args ...interface{})
}

var ansiColorStripper = regexp.MustCompile("\x1b\\[[0-9;]*[mK]")

// ParseLevel converts a level name into a LogLevel. Unknown names return LevelDebug and false.
func ParseLevel(val string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "none":
		return LevelNone, true
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	}
	return LevelDebug, false
}

// GetLevelFromEnv returns the level named by KVCACHE_LOG_LEVEL, defaulting to debug.
func GetLevelFromEnv() LogLevel {
	level, _ := ParseLevel(os.Getenv(LevelEnvKey))
	return level
}

// WithKV returns a logger with a single metadata key set.
func WithKV(logger Logger, key string, value any) Logger {
	return logger.With(map[string]interface{}{key: value})
}

func mergeMetadata(base, extra map[string]interface{}) map[string]interface{} {
	kv := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		kv[k] = v
	}
	for k, v := range extra {
		kv[k] = v
	}
	if len(kv) == 0 {
		return nil
	}
	return kv
}
