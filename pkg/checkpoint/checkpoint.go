// Package checkpoint persists per-kind scan progress so an interrupted scan
// can resume.
//
// The file is plain text, one KEY=value pair per line:
//
//	HTTP_SCAN_ID=0
//	URL_SCAN_ID=40
//	HOST_SCAN_ID=3
//	PATH_SCAN_ID=0
//	CUSTOM_SCAN_ID=0
//
// Each value is the number of leading targets of that kind whose script
// sweeps all completed. Unknown keys are ignored and malformed values read
// as 0. A missing file means every cursor starts at 0.
package checkpoint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/lotus-scan/lotus/pkg/target"
)

// DefaultFile is written on interrupt when no resume file was given.
const DefaultFile = "resume.cfg"

var keys = map[target.Kind]string{
	target.FullHTTP: "HTTP_SCAN_ID",
	target.URL:      "URL_SCAN_ID",
	target.Host:     "HOST_SCAN_ID",
	target.Path:     "PATH_SCAN_ID",
	target.Custom:   "CUSTOM_SCAN_ID",
}

// Key returns the file key for kind.
func Key(k target.Kind) string { return keys[k] }

// Cursors maps each kind to its resume index.
type Cursors map[target.Kind]int

// Get returns the cursor for k, 0 when absent.
func (c Cursors) Get(k target.Kind) int { return c[k] }

// Parse reads cursors from r.
func Parse(r io.Reader) (Cursors, error) {
	byKey := make(map[string]target.Kind, len(keys))
	for k, name := range keys {
		byKey[name] = k
	}

	c := Cursors{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		kind, known := byKey[strings.TrimSpace(name)]
		if !known {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			n = 0
		}
		c[kind] = n
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return c, nil
}

// Encode renders every kind in fixed order.
func (c Cursors) Encode() []byte {
	var buf bytes.Buffer
	for _, k := range target.Kinds {
		fmt.Fprintf(&buf, "%s=%d\n", keys[k], c[k])
	}
	return buf.Bytes()
}

// Load reads path. A missing file yields empty cursors and no error.
func Load(path string) (Cursors, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Cursors{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Save writes c to path through a temp file and rename.
func Save(path string, c Cursors) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(c.Encode()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Tracker advances cursors as targets complete out of order. A cursor only
// moves over a contiguous run of completed indices, so it never skips a
// target that is still running and never moves backwards.
type Tracker struct {
	mu     sync.Mutex
	cursor map[target.Kind]int
	done   map[target.Kind]map[int]struct{}
}

// NewTracker starts from the loaded cursors.
func NewTracker(start Cursors) *Tracker {
	t := &Tracker{
		cursor: make(map[target.Kind]int, len(target.Kinds)),
		done:   make(map[target.Kind]map[int]struct{}, len(target.Kinds)),
	}
	for k, v := range start {
		if v > 0 {
			t.cursor[k] = v
		}
	}
	return t
}

// Start returns the first index of kind that still needs scanning.
func (t *Tracker) Start(k target.Kind) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor[k]
}

// Complete records that every script of target idx finished.
func (t *Tracker) Complete(k target.Kind, idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.cursor[k]
	if idx < cur {
		return
	}
	pending := t.done[k]
	if pending == nil {
		pending = make(map[int]struct{})
		t.done[k] = pending
	}
	pending[idx] = struct{}{}

	for {
		if _, ok := pending[cur]; !ok {
			break
		}
		delete(pending, cur)
		cur++
	}
	t.cursor[k] = cur
}

// Cursors returns a snapshot.
func (t *Tracker) Cursors() Cursors {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := make(Cursors, len(target.Kinds))
	for _, k := range target.Kinds {
		c[k] = t.cursor[k]
	}
	return c
}
