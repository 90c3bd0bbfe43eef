// Package logger wires the process-wide structured loggers used across the
// Karana planner daemon. It exposes a default application logger plus a
// dedicated audit channel whose entries survive restarts via size-based
// rotation.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls the audit log channel.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	appLogger   *slog.Logger
	auditLogger *slog.Logger
	once        sync.Once
	sinks       []io.Closer
	initErr     error
)

// Init configures the global logger instances. The first call wins; later
// calls return the outcome of the first.
func Init(cfg Config) error {
	once.Do(func() {
		opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: true}
		handler, err := newHandler(cfg.Format, cfg.OutputPaths, opts)
		if err != nil {
			initErr = err
			return
		}
		appLogger = slog.New(handler)
		auditLogger = appLogger

		if cfg.Audit.Enabled {
			audit, err := newAuditLogger(cfg.Audit)
			if err != nil {
				initErr = err
				return
			}
			auditLogger = audit
		}
	})
	if initErr != nil {
		return initErr
	}
	if appLogger == nil {
		return errors.New("logger already initialised")
	}
	return nil
}

func newHandler(format string, outputs []string, opts *slog.HandlerOptions) (slog.Handler, error) {
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}
	writers := make([]io.Writer, 0, len(outputs))
	for _, out := range outputs {
		writer, closer, err := openSink(out)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			sinks = append(sinks, closer)
		}
		writers = append(writers, writer)
	}

	writer := writers[0]
	if len(writers) > 1 {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(writer, opts), nil
	}
	return slog.NewJSONHandler(writer, opts), nil
}

func newAuditLogger(cfg AuditConfig) (*slog.Logger, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path cannot be empty when enabled")
	}
	writer, err := newRotateWriter(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	if err != nil {
		return nil, err
	}
	sinks = append(sinks, writer)
	return slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo})), nil
}

func openSink(path string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", path, err)
		}
		return file, file, nil
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the structured application logger.
func L() *slog.Logger {
	if appLogger == nil {
		_ = Init(Config{})
	}
	return appLogger
}

// Audit returns the audit logger. It falls back to the application logger
// when no audit channel was configured.
func Audit() *slog.Logger {
	if auditLogger == nil {
		return L()
	}
	return auditLogger
}

// Named returns a child logger scoped to the given component.
func Named(name string) *slog.Logger {
	return L().WithGroup(name)
}

// Sync closes every file-backed sink opened during Init.
func Sync() error {
	var err error
	for _, sink := range sinks {
		err = errors.Join(err, sink.Close())
	}
	sinks = nil
	return err
}
