package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/juju/lumberjack/v2"
)

// LogFileName is the name of the rotating log file under log_dir.
const LogFileName = "snapsync.log"

// snapHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
//
// Every record goes to file. Records below consoleLevel are kept off the console.
type snapHandler struct {
	file         io.Writer
	console      io.Writer
	consoleLevel slog.Level
	runID        string
	attrs        []slog.Attr
}

func (h *snapHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *snapHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	ts := r.Time.UTC().Format("2006-01-02T15:04:05Z")
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", ts, r.Level.String(), h.runID, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	if h.file != nil {
		if _, err := h.file.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	if h.console != nil && r.Level >= h.consoleLevel {
		if _, err := h.console.Write(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

func (h *snapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &snapHandler{
		file:         h.file,
		console:      h.console,
		consoleLevel: h.consoleLevel,
		runID:        h.runID,
		attrs:        append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *snapHandler) WithGroup(string) slog.Handler { return h }

// withRunID returns a logger whose lines carry runID. Loggers not backed by
// snapHandler get it as an attribute instead.
func withRunID(l *slog.Logger, runID string) *slog.Logger {
	h, ok := l.Handler().(*snapHandler)
	if !ok {
		return l.With("run", runID)
	}
	clone := *h
	clone.runID = runID
	return slog.New(&clone)
}

// newLogger creates a structured logger that writes to logDir/snapsync.log,
// rotated by size, and to console. Debug records reach the console only when
// verbose is set. The returned io.Closer closes the log file.
func newLogger(logDir, runID string, verbose bool, console io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, LogFileName),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		Compress:   true,
	}

	consoleLevel := slog.LevelInfo
	if verbose {
		consoleLevel = slog.LevelDebug
	}
	handler := &snapHandler{file: file, console: console, consoleLevel: consoleLevel, runID: runID}
	return slog.New(handler), file, nil
}

// slogAdapter wraps *slog.Logger to satisfy the snap.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
