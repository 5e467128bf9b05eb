// Package logging provides the structured logging facade for SynergyFlow.
// It configures JSON output for structured logs and Text output for
// human-readable logs, and hands out per-service child loggers.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	structuredLogger    *slog.Logger
	humanReadableLogger *slog.Logger
	initMu              sync.Mutex
)

const (
	LevelTrace = slog.Level(-8)
	LevelFatal = slog.Level(12)
)

// Default rotation settings for file loggers.
const (
	defaultLogMaxSizeMB = 100
	defaultLogBackups   = 3
	defaultLogMaxAge    = 28 // days
)

var levelNames = map[slog.Leveler]string{
	LevelTrace: "TRACE",
	LevelFatal: "FATAL",
}

func replaceLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level := a.Value.Any().(slog.Level)
		label, ok := levelNames[level]
		if !ok {
			label = level.String()
		}
		a.Value = slog.StringValue(label)
	}
	return a
}

// Init initializes the logging system with structured and human-readable loggers.
// Safe to call more than once; later calls reconfigure the default loggers.
func Init(level slog.Level) {
	initMu.Lock()
	defer initMu.Unlock()

	structuredLogger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	}))

	humanReadableLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	}))

	slog.SetDefault(structuredLogger)
}

// ForService returns a child of the structured logger tagged with the
// given service name. Returns nil if Init has not been called yet, so
// callers must nil-check before use during early startup.
func ForService(serviceName string) *slog.Logger {
	initMu.Lock()
	defer initMu.Unlock()
	if structuredLogger == nil {
		return nil
	}
	return structuredLogger.With("service", serviceName)
}

// HumanReadable returns the text logger writing to stderr.
func HumanReadable() *slog.Logger {
	initMu.Lock()
	defer initMu.Unlock()
	return humanReadableLogger
}

// NewFileLogger creates a JSON slog logger writing to the given file with
// rotation. It returns the logger, a close function for the underlying
// writer, and an error if the log directory cannot be created.
func NewFileLogger(filePath, serviceName string, level slog.Level) (*slog.Logger, func() error, error) {
	logDir := filepath.Dir(filePath)
	if logDir != "." {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    defaultLogMaxSizeMB,
		MaxBackups: defaultLogBackups,
		MaxAge:     defaultLogMaxAge,
		Compress:   false,
	}

	handler := slog.NewJSONHandler(logWriter, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: replaceLevelNames,
	})

	logger := slog.New(handler).With("service", serviceName)
	return logger, logWriter.Close, nil
}

// --- Convenience functions using the default logger ---

// Debug logs a debug message using the default slog logger.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs an info message using the default slog logger.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs a warning message using the default slog logger.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs an error message using the default slog logger.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}
