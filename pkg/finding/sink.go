package finding

import (
	"sync"

	"github.com/lotus-scan/lotus/pkg/jsonutil"
)

// Sink is the per-unit, append-only finding accumulator. Inner fuzz workers
// of the same unit may add concurrently.
type Sink struct {
	mu    sync.Mutex
	items []Finding
}

// NewSink returns an empty sink.
func NewSink() *Sink { return &Sink{} }

// Add appends f.
func (s *Sink) Add(f Finding) {
	s.mu.Lock()
	s.items = append(s.items, f)
	s.mu.Unlock()
}

// Len returns the number of findings.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Findings returns a copy in insertion order.
func (s *Sink) Findings() []Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Finding, len(s.items))
	copy(out, s.items)
	return out
}

// MarshalLine encodes the sink as one JSON array, without a newline.
// It returns nil for an empty sink.
func (s *Sink) MarshalLine() ([]byte, error) {
	items := s.Findings()
	if len(items) == 0 {
		return nil, nil
	}
	return jsonutil.Marshal(items)
}
