// Package target defines the five target kinds a scan iterates and the
// immutable target values handed to scan units.
package target

import (
	"strconv"
	"strings"
)

// Kind tags a target list. The numeric values are the SCAN_TYPE integers
// scripts declare.
type Kind int

const (
	FullHTTP Kind = iota + 1
	URL
	Host
	Path
	Custom
)

// Kinds lists every kind in fan-out order.
var Kinds = []Kind{FullHTTP, URL, Host, Path, Custom}

func (k Kind) String() string {
	switch k {
	case FullHTTP:
		return "full_http"
	case URL:
		return "url"
	case Host:
		return "host"
	case Path:
		return "path"
	case Custom:
		return "custom"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the five kinds.
func (k Kind) Valid() bool { return k >= FullHTTP && k <= Custom }

// ParseKind accepts a kind name (any case, "-" or "_") or its number.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		k := Kind(n)
		return k, k.Valid()
	}
	switch strings.ReplaceAll(s, "-", "_") {
	case "full_http", "fullhttp", "http", "request":
		return FullHTTP, true
	case "url", "urls":
		return URL, true
	case "host", "hosts":
		return Host, true
	case "path", "paths":
		return Path, true
	case "custom":
		return Custom, true
	}
	return 0, false
}

// Request is a pre-parsed HTTP request target.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// Target is one dispatched value. Exactly one of Value, Request or Data is
// meaningful, depending on Kind.
type Target struct {
	Kind    Kind
	Value   string   // URL, host or path URL
	Request *Request // FullHTTP
	Data    any      // Custom
}

// String returns a short label for logs.
func (t Target) String() string {
	switch {
	case t.Request != nil:
		return t.Request.Method + " " + t.Request.URL
	case t.Kind == Custom:
		return "custom"
	default:
		return t.Value
	}
}

// Set holds the target lists of a scan, keyed by kind.
type Set map[Kind][]Target

// Add appends a target to its kind's list.
func (s Set) Add(t Target) {
	s[t.Kind] = append(s[t.Kind], t)
}

// Total returns the number of targets across kinds.
func (s Set) Total() int {
	n := 0
	for _, ts := range s {
		n += len(ts)
	}
	return n
}
