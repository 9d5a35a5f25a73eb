// Package jsonutil wraps github.com/go-json-experiment/json for the few
// places that encode or decode JSON: finding lines, CLI JSON flags and
// request files.
package jsonutil

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Marshal returns the compact JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Valid reports whether data is a valid JSON value.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// DecodeLines decodes one JSON value per non-blank line of r, calling fn for
// each. Line numbers in errors are 1-based.
func DecodeLines[T any](r io.Reader, fn func(line int, v T) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	n := 0
	for sc.Scan() {
		n++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if err := fn(n, v); err != nil {
			return err
		}
	}
	return sc.Err()
}
