package main

import (
	"fmt"
	"io"
	"os"

	"github.com/lotus-scan/lotus/pkg/ui"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	switch args[0] {
	case "scan":
		return runScan(args[1:], stdout, stderr)
	case "new":
		return runNew(args[1:], stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintf(stdout, "lotus %s\n", ui.Version)
		return 0
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		printError(stderr, fmt.Sprintf("unknown command %q", args[0]))
		fmt.Fprintln(stderr)
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	ui.PrintBanner(w)
	fmt.Fprintln(w, "Usage: lotus <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %s  %s\n", ui.StatValueStyle.Render("scan   "), "Run scripts against URLs, hosts, paths or custom input")
	fmt.Fprintf(w, "  %s  %s\n", ui.StatValueStyle.Render("new    "), "Write a starter script")
	fmt.Fprintf(w, "  %s  %s\n", ui.StatValueStyle.Render("version"), "Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  cat urls.txt | lotus scan scripts/ -o findings.jsonl")
	fmt.Fprintln(w, "  lotus scan --urls hosts.txt --workers 20 scripts/host/")
	fmt.Fprintln(w, "  lotus new --type url --name reflected-xss -o xss.tengo")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'lotus <command> -h' for the flags of a command.")
}
