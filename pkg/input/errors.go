package input

import "errors"

var (
	// ErrNoTargets means the input held nothing to scan.
	ErrNoTargets = errors.New("input: no targets")

	// ErrRead indicates the input file or stdin could not be read.
	ErrRead = errors.New("input: read failed")

	// ErrMissingURL marks a request line without a url.
	ErrMissingURL = errors.New("input: request has no url")
)
