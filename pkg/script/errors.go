package script

import "errors"

// Sentinel errors for script outcomes.
// Callers should use errors.Is() to check for these.
var (
	// ErrLoad indicates the script could not be compiled or its top-level
	// statements failed.
	ErrLoad = errors.New("script: load failed")

	// ErrRuntime indicates main raised a runtime error or returned an
	// error value.
	ErrRuntime = errors.New("script: runtime error")

	// ErrNoMain indicates the script defines no main function. It is not
	// counted as a script error.
	ErrNoMain = errors.New("script: no main function")

	// ErrNoFunction indicates a call to a function the script does not
	// define at top level.
	ErrNoFunction = errors.New("script: no such top-level function")

	// ErrNoScripts indicates the script path held no scripts.
	ErrNoScripts = errors.New("script: no scripts found")
)
