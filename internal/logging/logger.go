// Package logging provides structured JSON logging for whogitit using slog:
// one JSON-lines file per session under .whogitit/logs, with
// context-carried session/component attributes prepended to every record.
package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dotsetlabs/whogitit/internal/paths"
	"github.com/dotsetlabs/whogitit/internal/validation"
)

// LogLevelEnvVar controls log level and overrides config when set.
const LogLevelEnvVar = "WHOGITIT_LOG_LEVEL"

type ctxKey int

const (
	sessionIDKey ctxKey = iota
	componentKey
)

var (
	mu               sync.RWMutex
	logger           *slog.Logger
	logFile          *os.File
	logBufWriter     *bufio.Writer
	currentSessionID string
)

// Init opens (creating if needed) .whogitit/logs/<sessionID>.log for
// appending JSON log lines at the given level. On any failure to create the
// log file it falls back to stderr rather than failing the caller; logging
// must never block a capture or finalize operation.
func Init(sessionID, level string) error {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return fmt.Errorf("invalid session ID for logging: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()

	closeLocked()

	lvl := parseLevel(level)

	repoRoot, err := paths.RepoRoot()
	if err != nil {
		repoRoot = "."
	}

	logsPath := filepath.Join(repoRoot, paths.LogsDir)
	if err := os.MkdirAll(logsPath, 0o750); err != nil {
		logger = newLogger(os.Stderr, lvl)
		return nil
	}

	logFilePath := filepath.Join(logsPath, sessionID+".log")
	f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // sessionID validated above
	if err != nil {
		logger = newLogger(os.Stderr, lvl)
		return nil
	}

	logFile = f
	logBufWriter = bufio.NewWriterSize(f, 8192)
	logger = newLogger(logBufWriter, lvl)
	currentSessionID = sessionID
	return nil
}

// Close flushes and closes the current log file. Safe to call multiple times.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	currentSessionID = ""
}

func closeLocked() {
	if logBufWriter != nil {
		_ = logBufWriter.Flush()
		logBufWriter = nil
	}
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func getSessionID() string {
	mu.RLock()
	defer mu.RUnlock()
	return currentSessionID
}

// WithSession attaches a session ID to ctx for automatic inclusion in logs.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// WithComponent attaches a component name (e.g. "analyzer", "notes") to ctx.
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// Debug logs at DEBUG level with context values automatically extracted.
func Debug(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelDebug, msg, attrs...) }

// Info logs at INFO level with context values automatically extracted.
func Info(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelInfo, msg, attrs...) }

// Warn logs at WARN level with context values automatically extracted.
func Warn(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelWarn, msg, attrs...) }

// Error logs at ERROR level with context values automatically extracted.
func Error(ctx context.Context, msg string, attrs ...any) { log(ctx, slog.LevelError, msg, attrs...) }

func log(ctx context.Context, level slog.Level, msg string, attrs ...any) {
	l := getLogger()

	var all []any
	if sid := getSessionID(); sid != "" {
		all = append(all, slog.String("session_id", sid))
	} else if ctx != nil {
		if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
			all = append(all, slog.String("session_id", v))
		}
	}
	if ctx != nil {
		if v, ok := ctx.Value(componentKey).(string); ok && v != "" {
			all = append(all, slog.String("component", v))
		}
	}
	all = append(all, attrs...)

	if ctx == nil {
		ctx = context.Background()
	}
	l.Log(ctx, level, msg, all...)
}
