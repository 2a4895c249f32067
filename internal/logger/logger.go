package logger

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu     sync.RWMutex
	Logger *slog.Logger
)

// Init initializes the logger to output to stdout with JSON format.
func Init() {
	InitWithWriter(os.Stdout, slog.LevelInfo)
}

// InitWithWriter points the logger at w. Tests use it to silence or capture output.
func InitWithWriter(w io.Writer, level slog.Level) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})
	mu.Lock()
	Logger = slog.New(handler)
	mu.Unlock()
}

func get() *slog.Logger {
	mu.RLock()
	l := Logger
	mu.RUnlock()
	if l == nil {
		Init()
		mu.RLock()
		l = Logger
		mu.RUnlock()
	}
	return l
}

// LogError logs an error with a message and optional key-value pairs
func LogError(msg string, err error, args ...any) {
	attrs := []any{"error", err}
	attrs = append(attrs, args...)
	get().Error(msg, attrs...)
}

// LogInfo logs an informational message with optional key-value pairs
func LogInfo(msg string, args ...any) {
	get().Info(msg, args...)
}

// LogWarn logs a warning message with optional key-value pairs
func LogWarn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// LogDebug logs a debug message with optional key-value pairs
func LogDebug(msg string, args ...any) {
	get().Debug(msg, args...)
}
