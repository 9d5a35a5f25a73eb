package params

import "errors"

// ErrInvalidURL is returned for URLs that are not absolute or do not parse.
var ErrInvalidURL = errors.New("params: invalid url")
