package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/lotus-scan/lotus/pkg/script"
	"github.com/lotus-scan/lotus/pkg/target"
)

const newUsage = "lotus new [--type url|host|path|full_http|custom] [--name NAME] [--risk RISK] [-o FILE]"

func runNew(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kindName := fs.String("type", "url", "Scan type of the script")
	name := fs.String("name", "", "Finding name used by the script")
	risk := fs.String("risk", "", "Finding risk (default: medium)")
	desc := fs.String("description", "", "Finding description")
	outFile := fs.String("output", "", "Write the script to FILE (default: stdout)")
	fs.StringVar(outFile, "o", "", "Output (alias)")
	force := fs.Bool("force", false, "Overwrite FILE if it exists")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage:", newUsage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}
	if fs.NArg() > 0 {
		return failUsage(stderr, fmt.Sprintf("unexpected argument %q", fs.Arg(0)), newUsage)
	}

	kind, ok := target.ParseKind(*kindName)
	if !ok {
		return failUsage(stderr, fmt.Sprintf("unknown scan type %q", *kindName), newUsage)
	}

	src, err := script.NewStarter(script.StarterOptions{
		Name:        *name,
		Kind:        kind,
		Risk:        *risk,
		Description: *desc,
	})
	if err != nil {
		return failf(stderr, "%v", err)
	}

	if *outFile == "" {
		_, _ = stdout.Write(src)
		return 0
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if *force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(*outFile, flags, 0o644)
	if err != nil {
		return failf(stderr, "create %s: %v", *outFile, err)
	}
	if _, err := f.Write(src); err != nil {
		f.Close()
		return failf(stderr, "write %s: %v", *outFile, err)
	}
	if err := f.Close(); err != nil {
		return failf(stderr, "write %s: %v", *outFile, err)
	}
	fmt.Fprintf(stderr, "Wrote %s script to %s\n", kind, *outFile)
	return 0
}
