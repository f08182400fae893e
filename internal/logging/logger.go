package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName    = "drivesync.log"
	logMaxSizeMB   = 50
	logMaxBackups  = 3
	logMaxAgeDays  = 14
	logDirPerm     = 0o755
	componentField = "component"
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses human-readable text.
func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stdout)
}

// NewFileLogger behaves like NewLogger but also tees output into a
// rotating log file under logDir. An empty logDir means stdout only.
func NewFileLogger(env, logDir string) (*slog.Logger, error) {
	return newFileLogger(env, logDir, os.Stdout)
}

// NewStdioLogger is NewFileLogger for processes whose stdout carries a
// protocol: console output goes to stderr.
func NewStdioLogger(env, logDir string) (*slog.Logger, error) {
	return newFileLogger(env, logDir, os.Stderr)
}

func newFileLogger(env, logDir string, console io.Writer) (*slog.Logger, error) {
	if logDir == "" {
		return newLogger(env, console), nil
	}

	if err := os.MkdirAll(logDir, logDirPerm); err != nil {
		return nil, err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFileName),
		MaxSize:    logMaxSizeMB,
		MaxBackups: logMaxBackups,
		MaxAge:     logMaxAgeDays,
		Compress:   true,
	}

	return newLogger(env, io.MultiWriter(console, file)), nil
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String(componentField, component))
}

func newLogger(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
