// Package stream provides writers used to relay a child process's output.
package stream

import (
	"io"
	"sync"
)

// Flusher is implemented by writers that buffer output.
type Flusher interface {
	Flush() error
}

// LineWriter forwards writes to an underlying writer one line at a time.
//
// Every Write is split at line terminators (\n, \r\n or a lone \r), with the
// terminator kept on its chunk. Chunks are forwarded unmodified and in order,
// and the underlying writer is flushed once per Write. LineWriter tracks
// whether the next byte starts a fresh line; when a prefix is configured it is
// written before each chunk that starts one.
type LineWriter struct {
	mu          sync.Mutex
	w           io.Writer
	prefix      []byte
	atLineStart bool
	// pendingCR is set when the last chunk ended in \r, so a \n opening the
	// next Write completes that \r\n rather than starting a new line.
	pendingCR bool
}

// Option configures a LineWriter.
type Option func(*LineWriter)

// WithPrefix sets a marker written at the start of every output line.
// An empty prefix leaves output untouched.
func WithPrefix(prefix string) Option {
	return func(lw *LineWriter) {
		lw.prefix = []byte(prefix)
	}
}

// NewLineWriter wraps w.
func NewLineWriter(w io.Writer, opts ...Option) *LineWriter {
	lw := &LineWriter{w: w, atLineStart: true}
	for _, opt := range opts {
		opt(lw)
	}
	return lw
}

// Write implements io.Writer.
func (lw *LineWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	written := 0
	for _, chunk := range SplitLines(p) {
		completesCRLF := lw.pendingCR && chunk[0] == '\n'
		if len(lw.prefix) > 0 && lw.atLineStart && !completesCRLF {
			if _, err := lw.w.Write(lw.prefix); err != nil {
				return written, err
			}
		}
		n, err := lw.w.Write(chunk)
		written += n
		if err != nil {
			return written, err
		}
		if n < len(chunk) {
			return written, io.ErrShortWrite
		}
		lw.atLineStart = endsWithTerminator(chunk)
		lw.pendingCR = chunk[len(chunk)-1] == '\r'
	}

	if err := lw.flush(); err != nil {
		return written, err
	}
	return written, nil
}

// Flush flushes the underlying writer if it buffers.
func (lw *LineWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.flush()
}

func (lw *LineWriter) flush() error {
	if f, ok := lw.w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// AtLineStart reports whether the last forwarded chunk ended a line.
func (lw *LineWriter) AtLineStart() bool {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.atLineStart
}

// IsTerminal always reports false so callers never emit terminal control
// sequences through the writer.
func (lw *LineWriter) IsTerminal() bool {
	return false
}

// SplitLines splits p after every line terminator. The returned chunks alias
// p and concatenate back to exactly p. A trailing partial line is returned as
// the last chunk; empty input yields no chunks.
func SplitLines(p []byte) [][]byte {
	var chunks [][]byte
	start := 0
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '\n':
			chunks = append(chunks, p[start:i+1])
			start = i + 1
		case '\r':
			if i+1 < len(p) && p[i+1] == '\n' {
				i++
			}
			chunks = append(chunks, p[start:i+1])
			start = i + 1
		}
	}
	if start < len(p) {
		chunks = append(chunks, p[start:])
	}
	return chunks
}

func endsWithTerminator(chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	last := chunk[len(chunk)-1]
	return last == '\n' || last == '\r'
}
