// Package iohelper provides bounded body reading and lossy text decoding for
// HTTP responses handed to scripts.
package iohelper

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultMaxBodySize caps how much of a response body is kept (10MB)
	DefaultMaxBodySize int64 = 10 * 1024 * 1024

	// drainLimit bounds how much is discarded to allow keep-alive reuse
	drainLimit int64 = 64 * 1024
)

// ReadBody reads at most maxSize bytes from r. A nil reader yields an empty body.
func ReadBody(r io.Reader, maxSize int64) ([]byte, error) {
	if r == nil {
		return []byte{}, nil
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// Lossy decodes b as UTF-8, replacing invalid sequences with U+FFFD.
func Lossy(b []byte) string {
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), b)
	if err != nil {
		// The UTF-8 decoder replaces rather than fails; keep the raw bytes anyway.
		return string(b)
	}
	return string(out)
}

// DrainAndClose discards what is left of r and closes it when possible.
// It always returns nil so it can be deferred.
func DrainAndClose(r io.Reader) error {
	if r == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(r, drainLimit))
	if rc, ok := r.(io.ReadCloser); ok {
		rc.Close()
	}
	return nil
}
