// Package logging provides the structured slog logger every component in
// this module asks for via ForService, plus NewFileLogger for a host that
// wants lumberjack-backed file rotation instead of the stderr default
// (cmd/convnode-demo's -log-file flag is that host).
package logging

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationPolicy selects how a file logger rotates its backing file.
type RotationPolicy int

const (
	// RotationSize rotates once the file exceeds RotationConfig.MaxSizeBytes.
	RotationSize RotationPolicy = iota
	// RotationDaily keeps size-based rotation and prunes rotated files
	// older than one day (at most 30 kept). It does not rotate on a timer.
	RotationDaily
	// RotationWeekly keeps size-based rotation and prunes rotated files
	// older than seven days (at most 4 kept). It does not rotate on a timer.
	RotationWeekly
)

// RotationConfig controls NewFileLogger's lumberjack-backed rotation.
// Callers own this (it is not read from a global config singleton), which
// keeps the logging package independent of any configuration loader.
type RotationConfig struct {
	Rotation     RotationPolicy
	MaxSizeBytes int64
}

// currentLogLevel is the dynamic level ForService's default logger runs
// at; it defaults to Info (the slog.LevelVar zero value).
var currentLogLevel = new(slog.LevelVar)

// defaultReplaceAttr formats time to second precision and truncates float
// attributes to 2 decimal places, matching the teacher's handler setup.
func defaultReplaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
		a.Value = slog.StringValue(a.Value.Time().Format("2006-01-02T15:04:05Z07:00"))
	}
	if a.Value.Kind() == slog.KindFloat64 {
		truncated := math.Trunc(a.Value.Float64()*100) / 100.0
		a.Value = slog.Float64Value(truncated)
	}
	return a
}

var (
	defaultLoggerOnce sync.Once
	defaultLogger     *slog.Logger
)

// ForService returns a JSON structured logger tagged with a 'service'
// attribute. It lazily builds a default stderr-backed logger on first use
// (sync.Once), so it never returns nil — callers don't need to guard
// against an uninitialized global the way the teacher's Init()-gated
// version required.
func ForService(serviceName string) *slog.Logger {
	defaultLoggerOnce.Do(func() {
		handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level:       currentLogLevel,
			ReplaceAttr: defaultReplaceAttr,
		})
		defaultLogger = slog.New(handler)
	})
	return defaultLogger.With("service", serviceName)
}

// NewFileLogger creates a new slog.Logger instance configured to write JSON logs
// to the specified file path using lumberjack for rotation.
// It includes a 'service' attribute in all logs.
// It returns the logger, a function to close the underlying log writer, and an error if setup fails.
func NewFileLogger(filePath, serviceName string, levelVar *slog.LevelVar, rotation RotationConfig) (*slog.Logger, func() error, error) {
	// Ensure the directory exists (lumberjack doesn't create directories)
	logDir := filepath.Dir(filePath)
	if logDir != "." { // Avoid trying to create the current directory if filePath is just a filename
		if err := os.MkdirAll(logDir, 0o755); err != nil { //nolint:gosec // accept 0o755 for now
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	lj := &lumberjack.Logger{
		Filename: filePath,
		Compress: false, // Compression can be added later if needed
	}

	// Default values
	maxSizeMB := 100
	maxBackups := 3
	maxAge := 28 // days

	configMaxSizeMB := int(rotation.MaxSizeBytes / (1024 * 1024))
	if configMaxSizeMB > 0 {
		maxSizeMB = configMaxSizeMB
	}

	switch rotation.Rotation {
	case RotationDaily:
		maxAge = 1
		maxBackups = 30
	case RotationWeekly:
		maxAge = 7
		maxBackups = 4
	case RotationSize:
		// Size-based rotation uses maxSizeMB derived from config (or default)
	}

	lj.MaxSize = maxSizeMB
	lj.MaxBackups = maxBackups
	lj.MaxAge = maxAge

	if levelVar == nil {
		levelVar = currentLogLevel
	}

	// Create the slog handler using the lumberjack writer
	handler := slog.NewJSONHandler(lj, &slog.HandlerOptions{
		AddSource:   false, // Keep this false unless specifically needed for debugging
		Level:       levelVar,
		ReplaceAttr: defaultReplaceAttr,
	})

	// Create the logger and add the service attribute
	logger := slog.New(handler).With("service", serviceName)

	// Return the logger and the lumberjack closer function
	// Note: lumberjack.Logger.Close() doesn't actually close the file handle
	// immediately in the typical sense, it's more for resource cleanup related
	// to its internal state if needed. The actual file handle management
	// happens internally based on rotation.
	closeFunc := func() error {
		return lj.Close() // Call lumberjack's Close method
	}

	return logger, closeFunc, nil
}
