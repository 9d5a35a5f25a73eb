package main

import (
	"fmt"
	"io"

	"github.com/lotus-scan/lotus/pkg/ui"
)

// printError writes a styled error line. Commands return 1 after it
// instead of calling os.Exit so deferred cleanup still runs.
func printError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", ui.ErrorStyle.Render("[ERROR]"), msg)
}

// failf prints a formatted error and returns exit code 1.
func failf(w io.Writer, format string, args ...any) int {
	printError(w, fmt.Sprintf(format, args...))
	return 1
}

// failUsage prints an error followed by a usage hint and returns 1.
func failUsage(w io.Writer, msg, usage string) int {
	printError(w, msg)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:", usage)
	return 1
}
