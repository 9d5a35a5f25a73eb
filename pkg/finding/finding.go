package finding

import (
	"fmt"

	"github.com/lotus-scan/lotus/pkg/jsonutil"
)

// Vulnerability is the common finding shape. Every field is optional.
type Vulnerability struct {
	Risk          string `json:"risk,omitempty"`
	Name          string `json:"name,omitempty"`
	Description   string `json:"description,omitempty"`
	URL           string `json:"url,omitempty"`
	Parameter     string `json:"parameter,omitempty"`
	AttackPayload string `json:"attack_payload,omitempty"`
	Evidence      string `json:"evidence,omitempty"`
}

// MatcherKind tags a piece of CVE evidence.
type MatcherKind string

const (
	RawResponse     MatcherKind = "RawResponse"
	ResponseHeaders MatcherKind = "ResponseHeaders"
	ResponseBody    MatcherKind = "ResponseBody"
	StatusCode      MatcherKind = "StatusCode"
	General         MatcherKind = "General"
)

// ParseMatcherKind accepts the exact tag names.
func ParseMatcherKind(s string) (MatcherKind, error) {
	switch k := MatcherKind(s); k {
	case RawResponse, ResponseHeaders, ResponseBody, StatusCode, General:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMatcher, s)
}

// Matcher is one tagged evidence entry, serialized as {"<Kind>": value}.
type Matcher struct {
	Kind  MatcherKind
	Value any
}

func (m Matcher) MarshalJSON() ([]byte, error) {
	return jsonutil.Marshal(map[string]any{string(m.Kind): m.Value})
}

// CVE is a finding tied to a known vulnerability identifier.
type CVE struct {
	Name        string    `json:"name,omitempty"`
	Description string    `json:"description,omitempty"`
	URL         string    `json:"url,omitempty"`
	Risk        string    `json:"risk,omitempty"`
	Matchers    []Matcher `json:"matchers,omitempty"`
}

// Finding is exactly one of Vuln, CVE or Raw.
type Finding struct {
	Vuln *Vulnerability
	CVE  *CVE
	Raw  any
}

// NewVuln wraps a Vulnerability.
func NewVuln(v Vulnerability) Finding { return Finding{Vuln: &v} }

// NewCVE wraps a CVE.
func NewCVE(c CVE) Finding { return Finding{CVE: &c} }

// IsZero reports whether no variant is set. Such a finding cannot be
// encoded.
func (f Finding) IsZero() bool { return f.Vuln == nil && f.CVE == nil && f.Raw == nil }

// NewRaw wraps an arbitrary JSON-encodable value.
func NewRaw(v any) Finding { return Finding{Raw: v} }

// Kind returns "Vuln", "CVE" or "Raw".
func (f Finding) Kind() string {
	switch {
	case f.Vuln != nil:
		return "Vuln"
	case f.CVE != nil:
		return "CVE"
	default:
		return "Raw"
	}
}

// Title returns the finding name, if it has one.
func (f Finding) Title() string {
	switch {
	case f.Vuln != nil:
		return f.Vuln.Name
	case f.CVE != nil:
		return f.CVE.Name
	}
	return ""
}

// Location returns the finding URL, if it has one.
func (f Finding) Location() string {
	switch {
	case f.Vuln != nil:
		return f.Vuln.URL
	case f.CVE != nil:
		return f.CVE.URL
	}
	return ""
}

// Severity returns the normalized risk.
func (f Finding) Severity() Severity {
	switch {
	case f.Vuln != nil:
		return ParseSeverity(f.Vuln.Risk)
	case f.CVE != nil:
		return ParseSeverity(f.CVE.Risk)
	}
	return Unknown
}

func (f Finding) MarshalJSON() ([]byte, error) {
	switch {
	case f.Vuln != nil:
		return jsonutil.Marshal(map[string]any{"Vuln": f.Vuln})
	case f.CVE != nil:
		return jsonutil.Marshal(map[string]any{"CVE": f.CVE})
	case f.Raw != nil:
		return jsonutil.Marshal(f.Raw)
	}
	return nil, ErrEmptyFinding
}
