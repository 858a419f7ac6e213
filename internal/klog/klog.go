// Package klog builds the kernel's slog logger on top of a hal.Logger line
// sink.
package klog

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"ember/hal"
)

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("klog: unknown level %q", s)
}

// New returns a text logger that writes each record as one line to sink.
func New(sink hal.Logger, level slog.Leveler, attrs ...any) *slog.Logger {
	h := slog.NewTextHandler(&lineWriter{sink: sink}, &slog.HandlerOptions{Level: level})
	return slog.New(h).With(attrs...)
}

// lineWriter forwards complete lines to a hal.Logger.
type lineWriter struct {
	mu   sync.Mutex
	sink hal.Logger
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.sink.WriteLineBytes(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}
