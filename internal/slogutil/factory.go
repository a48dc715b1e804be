package slogutil

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"lsgw/internal/config"
	"lsgw/internal/paths"
)

// LoggerFactory builds the gateway logger and per-backend stderr sinks.
// Precedence for levels: CLI flag > config > info.
type LoggerFactory struct {
	root     string
	cfg      *config.Config
	cliLevel *slog.Level

	mu      sync.Mutex
	closers []io.Closer
}

// NewLoggerFactory creates a factory. cliLevel is nil when no flag was given.
func NewLoggerFactory(root string, cfg *config.Config, cliLevel *slog.Level) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &LoggerFactory{root: root, cfg: cfg, cliLevel: cliLevel}
}

// GatewayLogger logs to stderr and, when logging.file is configured, also to
// that file with rotation.
func (f *LoggerFactory) GatewayLogger() *slog.Logger {
	level := f.level(f.cfg.Logging.Level)
	stderr := NewHandler(os.Stderr, &slog.HandlerOptions{Level: level})

	if f.cfg.Logging.File == "" {
		return slog.New(stderr)
	}
	w, err := OpenLogWriter(f.cfg.Logging.File, f.cfg.Logging.MaxSize, f.cfg.Logging.MaxBackups)
	if err != nil {
		logger := slog.New(stderr)
		logger.Warn("Cannot open log file, logging to stderr only", "path", f.cfg.Logging.File, "error", err)
		return logger
	}
	f.track(w)
	return NewTeeLogger(stderr, NewHandler(w, &slog.HandlerOptions{Level: level}))
}

// BackendStderr returns the sink for a process backend's stderr. It
// falls back to io.Discard when the workspace has no writable logs dir.
func (f *LoggerFactory) BackendStderr(backendID string) io.Writer {
	if f.root == "" || f.level(f.cfg.Logging.Backend) == LevelSilent {
		return io.Discard
	}
	if _, err := paths.EnsureLogsDir(f.root); err != nil {
		return io.Discard
	}
	w, err := OpenLogWriter(paths.GetBackendLogPath(f.root, backendID), f.cfg.Logging.MaxSize, f.cfg.Logging.MaxBackups)
	if err != nil {
		return io.Discard
	}
	f.track(w)
	return w
}

func (f *LoggerFactory) level(configured string) slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if configured != "" {
		return LevelFromString(configured)
	}
	return slog.LevelInfo
}

func (f *LoggerFactory) track(c io.Closer) {
	f.mu.Lock()
	f.closers = append(f.closers, c)
	f.mu.Unlock()
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
