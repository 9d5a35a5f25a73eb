// Package encoding provides the string codecs exposed to scripts.
package encoding

import (
	"fmt"
	"sort"
	"strings"
)

// Encoder transforms a payload and, where possible, reverses it.
type Encoder interface {
	Name() string
	Encode(payload string) (string, error)
	Decode(encoded string) (string, error)
}

// codec adapts a pair of functions to Encoder.
type codec struct {
	name   string
	encode func(string) string
	decode func(string) (string, error)
}

func (c codec) Name() string                    { return c.name }
func (c codec) Encode(p string) (string, error) { return c.encode(p), nil }
func (c codec) Decode(s string) (string, error) { return c.decode(s) }

var registry = make(map[string]Encoder)

// Register adds enc under its lower-cased name, replacing any previous one.
func Register(enc Encoder) {
	registry[strings.ToLower(enc.Name())] = enc
}

// Get returns the encoder called name, or nil.
func Get(name string) Encoder {
	return registry[strings.ToLower(strings.TrimSpace(name))]
}

// List returns registered names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode runs the named encoder.
func Encode(name, payload string) (string, error) {
	enc := Get(name)
	if enc == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownEncoder, name)
	}
	return enc.Encode(payload)
}

// Decode runs the named decoder.
func Decode(name, encoded string) (string, error) {
	enc := Get(name)
	if enc == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownEncoder, name)
	}
	return enc.Decode(encoded)
}

// Chain applies encoders left to right. Unknown names are an error.
func Chain(payload string, names ...string) (string, error) {
	out := payload
	for _, name := range names {
		var err error
		if out, err = Encode(name, out); err != nil {
			return "", err
		}
	}
	return out, nil
}
