// Package output writes findings as line-delimited JSON.
//
// Each call to Write emits one JSON array followed by a newline. Writes are
// serialized, so concurrent scan units never interleave within a line. The
// file is opened in append mode and never truncated.
package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/lotus-scan/lotus/pkg/finding"
	"github.com/lotus-scan/lotus/pkg/jsonutil"
)

// Writer appends finding lines to a file or stream.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	lines  int
}

// Open appends to path, creating it if needed.
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output %s: %w", path, err)
	}
	return &Writer{w: bufio.NewWriter(f), closer: f}, nil
}

// New wraps an arbitrary stream such as stdout. Close does not close it.
func New(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits findings as one line. An empty slice writes nothing.
func (w *Writer) Write(findings []finding.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	line, err := jsonutil.Marshal(findings)
	if err != nil {
		return fmt.Errorf("encode findings: %w", err)
	}
	return w.WriteLine(line)
}

// WriteLine emits a pre-encoded JSON value followed by a newline and flushes.
func (w *Writer) WriteLine(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := w.w.Write(line); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	w.lines++
	return nil
}

// Lines returns how many lines were written.
func (w *Writer) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	err := w.w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
		w.closer = nil
	}
	return err
}
