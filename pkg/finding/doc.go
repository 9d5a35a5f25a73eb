// Package finding holds the structured results scripts report.
//
// A Finding is a tagged variant: a Vulnerability, a CVE with its matcher
// evidence, or an arbitrary JSON value. Each scan unit owns one Sink; when
// the unit succeeds with a non-empty sink, the sink becomes exactly one
// JSON-array line of output.
//
// Serialized form:
//
//	[{"Vuln":{"name":"x","url":"http://t/"}},{"CVE":{"name":"CVE-2021-1","matchers":[{"StatusCode":200}]}}]
//
// Absent optional fields are omitted.
package finding
