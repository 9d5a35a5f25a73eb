package encoding

import "errors"

// ErrUnknownEncoder is returned for names missing from the registry.
var ErrUnknownEncoder = errors.New("encoding: unknown encoder")
