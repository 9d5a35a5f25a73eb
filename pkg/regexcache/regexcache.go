// Package regexcache caches compiled PCRE-style expressions.
//
// Scripts call is_match with the same handful of patterns thousands of times
// per scan, so each pattern is compiled once. The engine is regexp2, which
// supports backreferences and lookaround that Go's RE2 engine rejects.
package regexcache

import (
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

// MatchTimeout bounds a single match so catastrophic backtracking cannot
// stall a scan unit.
const MatchTimeout = 5 * time.Second

var cache sync.Map // pattern -> *regexp2.Regexp

// Get returns the compiled pattern, compiling it on first use.
func Get(pattern string) (*regexp2.Regexp, error) {
	if re, ok := cache.Load(pattern); ok {
		return re.(*regexp2.Regexp), nil
	}

	re, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = MatchTimeout

	actual, _ := cache.LoadOrStore(pattern, re)
	return actual.(*regexp2.Regexp), nil
}

// IsMatch reports whether text contains a match of pattern.
func IsMatch(pattern, text string) (bool, error) {
	re, err := Get(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text)
}

// FindAll returns every non-overlapping match of pattern in text.
func FindAll(pattern, text string) ([]string, error) {
	re, err := Get(pattern)
	if err != nil {
		return nil, err
	}

	var out []string
	m, err := re.FindStringMatch(text)
	for m != nil && err == nil {
		out = append(out, m.String())
		m, err = re.FindNextMatch(m)
	}
	return out, err
}
