// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for the benchmark harness.
//
// The harness runs as two processes cooperating over a pipe: a parent
// orchestrator and, per benchmark, a short-lived worker child. Both use
// this package so that progress lines, GC trace pass-through, and error
// diagnostics share one format. The parent defaults to human-readable
// text on stderr; the worker always logs JSON, since its stderr is
// captured and attached to WorkerCrashed/BenchmarkFailed errors rather
// than shown directly to a terminal.
//
// # Basic usage
//
//	logger := logging.Default()
//	logger.Info("collection started", "benchmark", name, "max_iterations", n)
//	logger.Error("worker crashed", "benchmark", name, "exit_code", code)
//
// # File logging
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.benchforge/logs",
//	    Service: "orchestrator",
//	})
//	defer logger.Close()
//
// # Thread safety
//
// Logger is safe for concurrent use; mutable state (file handle, sink)
// is protected by a mutex.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for verbose execution tracing (per-batch adaptive decisions, GC line parses).
	LevelDebug Level = iota
	// LevelInfo is for normal operational events (collection start/stop, convergence).
	LevelInfo
	// LevelWarn is for recoverable anomalies (dropped GC trace line, filter matched a large set).
	LevelWarn
	// LevelError is for operation failures (worker crash, timeout).
	LevelError
)

// String returns "DEBUG", "INFO", "WARN", "ERROR", or "UNKNOWN".
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. The zero value logs Debug+ (LevelDebug is the
// zero Level) as text to stderr.
type Config struct {
	// Level sets the minimum level; messages below it are discarded.
	Level Level

	// LogDir enables file logging in addition to stderr. Files are named
	// "{Service}_{YYYY-MM-DD}.log" and are always JSON. Supports a leading
	// "~" for home-directory expansion.
	LogDir string

	// Service tags every record, e.g. "orchestrator" or "worker".
	Service string

	// JSON switches the stderr handler to JSON. File output is always JSON
	// regardless of this setting.
	JSON bool

	// Quiet disables the stderr handler (file/sink output still happens).
	Quiet bool

	// Sink, if set, additionally receives every record that passes the
	// level filter. Used by tests (BufferedSink) and by callers that want
	// to forward diagnostics somewhere other than stderr/file.
	Sink Sink
}

// Sink receives log records alongside the stderr/file handlers.
//
// Export is called from a new goroutine per record with a one-second
// context timeout, so it does not block the logging call; implementations
// must be safe for concurrent use.
type Sink interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is the structured record passed to a Sink.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// Logger wraps slog.Logger with optional file output and a Sink hook.
type Logger struct {
	slog   *slog.Logger
	config Config
	file   *os.File
	sink   Sink
	mu     sync.Mutex
}

// New builds a Logger from config. Call Close when done to flush the sink
// and close any log file.
func New(config Config) *Logger {
	var handlers []slog.Handler

	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	if !config.Quiet {
		var h slog.Handler
		if config.JSON {
			h = slog.NewJSONHandler(os.Stderr, opts)
		} else {
			h = slog.NewTextHandler(os.Stderr, opts)
		}
		handlers = append(handlers, h)
	}

	logger := &Logger{config: config, sink: config.Sink}

	if config.LogDir != "" {
		logDir := expandPath(config.LogDir)
		if err := os.MkdirAll(logDir, 0750); err == nil {
			service := config.Service
			if service == "" {
				service = "benchforge"
			}
			name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
			if f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640); err == nil {
				logger.file = f
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	logger.slog = slog.New(handler)
	return logger
}

// Default returns an Info-level, text-to-stderr Logger tagged "benchforge".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "benchforge"})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child Logger carrying additional attributes on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(args...),
		config: l.config,
		file:   l.file,
		sink:   l.sink,
	}
}

// Slog exposes the underlying slog.Logger for callers needing LogAttrs.
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Close flushes the sink and syncs/closes the log file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error

	if l.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.sink.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush sink: %w", err))
		}
		if err := l.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}

	if l.file != nil {
		if err := l.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.sink != nil && level >= l.config.Level {
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   msg,
			Service:   l.config.Service,
			Attrs:     argsToMap(args),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.sink.Export(ctx, entry)
		}()
	}
}

// multiHandler fans a record out to several slog handlers (stderr + file).
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

func argsToMap(args []any) map[string]any {
	result := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// NopSink discards every entry.
type NopSink struct{}

func (NopSink) Export(context.Context, LogEntry) error { return nil }
func (NopSink) Flush(context.Context) error             { return nil }
func (NopSink) Close() error                            { return nil }

var _ Sink = NopSink{}

// BufferedSink collects entries in memory; useful in tests.
type BufferedSink struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedSink() *BufferedSink {
	return &BufferedSink{entries: make([]LogEntry, 0, 16)}
}

func (s *BufferedSink) Export(_ context.Context, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *BufferedSink) Flush(context.Context) error { return nil }
func (s *BufferedSink) Close() error                { return nil }

// Entries returns a copy of the collected entries.
func (s *BufferedSink) Entries() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// WriterSink writes entries to an io.Writer, one line per entry.
type WriterSink struct {
	w  io.Writer
	mu sync.Mutex
}

func NewWriterSink(w io.Writer) *WriterSink { return &WriterSink{w: w} }

func (s *WriterSink) Export(_ context.Context, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "[%s] %s: %s %v\n",
		entry.Timestamp.Format(time.RFC3339), entry.Level, entry.Message, entry.Attrs)
	return err
}

func (s *WriterSink) Flush(context.Context) error { return nil }
func (s *WriterSink) Close() error                { return nil }
