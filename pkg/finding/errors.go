package finding

import "errors"

// Sentinel errors for finding construction.
// Callers should use errors.Is() to check for these.
var (
	// ErrUnknownMatcher indicates a CVE matcher tag outside the known set.
	ErrUnknownMatcher = errors.New("finding: unknown matcher kind")

	// ErrEmptyFinding indicates a finding with no variant set.
	ErrEmptyFinding = errors.New("finding: empty finding")
)
