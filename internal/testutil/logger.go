// Package testutil provides logging helpers for tests.
package testutil

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
)

// NewTestLogger returns a debug logger that writes to t.Log, so output only
// shows on failure or with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// LogBuffer keeps a copy of everything a capture logger wrote.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// String returns the captured records in text form.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewCaptureLogger is NewTestLogger that also records into the returned
// buffer for assertions.
func NewCaptureLogger(t testing.TB) (*slog.Logger, *LogBuffer) {
	t.Helper()
	lb := &LogBuffer{}
	return slog.New(slog.NewTextHandler(testWriter{t: t, copy: lb}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})), lb
}

type testWriter struct {
	t    testing.TB
	copy *LogBuffer
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	if w.copy != nil {
		w.copy.mu.Lock()
		w.copy.buf.Write(p)
		w.copy.mu.Unlock()
	}
	w.t.Log(string(p))
	return len(p), nil
}
