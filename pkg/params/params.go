// Package params manipulates the query parameters of a target URL without
// disturbing the ones a script does not touch. Order, duplicates and the
// original encoding of untouched pairs are preserved; only the value being
// replaced is re-encoded.
package params

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/lotus-scan/lotus/pkg/encoding"
)

// Param is one decoded query pair.
type Param struct {
	Name  string
	Value string
}

// Variant is a full URL with one parameter rewritten.
type Variant struct {
	Name string
	URL  string
}

type pair struct {
	rawKey   string
	rawValue string
	hasValue bool
	key      string
}

func (p pair) String() string {
	if !p.hasValue {
		return p.rawKey
	}
	return p.rawKey + "=" + p.rawValue
}

// Message is a mutable view over one URL. It is safe for concurrent use.
type Message struct {
	mu    sync.RWMutex
	u     *url.URL
	pairs []pair
}

// Parse builds a Message from an absolute URL.
func Parse(raw string) (*Message, error) {
	m := &Message{}
	if err := m.SetURL(raw); err != nil {
		return nil, err
	}
	return m, nil
}

// SetURL replaces the current URL.
func (m *Message) SetURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	}

	m.mu.Lock()
	m.u = u
	m.pairs = splitQuery(u.RawQuery)
	m.mu.Unlock()
	return nil
}

func splitQuery(raw string) []pair {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, "&")
	out := make([]pair, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		k, v, has := strings.Cut(part, "=")
		out = append(out, pair{rawKey: k, rawValue: v, hasValue: has, key: unescape(k)})
	}
	return out
}

func unescape(s string) string {
	if d, err := url.QueryUnescape(s); err == nil {
		return d
	}
	return s
}

func joinQuery(pairs []pair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.String()
	}
	return strings.Join(parts, "&")
}

func (m *Message) render(pairs []pair) string {
	u := *m.u
	u.RawQuery = joinQuery(pairs)
	u.ForceQuery = false
	return u.String()
}

// URL returns the current URL.
func (m *Message) URL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.render(m.pairs)
}

// Path returns the escaped path, "/" when empty.
func (m *Message) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p := m.u.EscapedPath(); p != "" {
		return p
	}
	return "/"
}

// Host returns host[:port].
func (m *Message) Host() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.u.Host
}

// RawQuery returns the query text without the leading "?".
func (m *Message) RawQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return joinQuery(m.pairs)
}

// Params returns decoded pairs in URL order.
func (m *Message) Params() []Param {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Param, len(m.pairs))
	for i, p := range m.pairs {
		out[i] = Param{Name: p.key, Value: unescape(p.rawValue)}
	}
	return out
}

// SetParam returns the URL with every pair named name given payload. With
// replace the old value is dropped, otherwise payload is appended to it. A
// missing parameter is added at the end. The Message itself is unchanged.
func (m *Message) SetParam(name, payload string, replace bool) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pairs := make([]pair, len(m.pairs))
	copy(pairs, m.pairs)

	found := false
	for i := range pairs {
		if pairs[i].key != name {
			continue
		}
		found = true
		pairs[i] = withValue(pairs[i], payload, replace)
	}
	if !found {
		pairs = append(pairs, pair{rawKey: encoding.URLEncode(name), key: name, hasValue: true, rawValue: encoding.URLEncode(payload)})
	}
	return m.render(pairs)
}

// SetAllParams returns one variant per distinct parameter name, in URL order.
func (m *Message) SetAllParams(payload string, replace bool) []Variant {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool, len(m.pairs))
	var out []Variant
	for _, p := range m.pairs {
		if seen[p.key] {
			continue
		}
		seen[p.key] = true

		pairs := make([]pair, len(m.pairs))
		copy(pairs, m.pairs)
		for i := range pairs {
			if pairs[i].key == p.key {
				pairs[i] = withValue(pairs[i], payload, replace)
			}
		}
		out = append(out, Variant{Name: p.key, URL: m.render(pairs)})
	}
	return out
}

func withValue(p pair, payload string, replace bool) pair {
	enc := encoding.URLEncode(payload)
	if replace {
		p.rawValue = enc
	} else {
		p.rawValue += enc
	}
	p.hasValue = true
	return p
}

// Join resolves ref against the current URL.
func (m *Message) Join(ref string) (string, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	base := *m.u
	base.RawQuery = joinQuery(m.pairs)
	return base.ResolveReference(r).String(), nil
}
