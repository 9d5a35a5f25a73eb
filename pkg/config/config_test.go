package config

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func parse(t *testing.T, args ...string) *Scan {
	t.Helper()
	s, err := ParseScan(args, io.Discard)
	if err != nil {
		t.Fatalf("ParseScan(%v) failed: %v", args, err)
	}
	return s
}

// TestScanDefaults verifies default values are set correctly
func TestScanDefaults(t *testing.T) {
	s := parse(t, "scripts/")

	if s.ScriptPath != "scripts/" {
		t.Errorf("ScriptPath: got %q, want 'scripts/'", s.ScriptPath)
	}
	if s.Workers != 10 {
		t.Errorf("Workers default: got %d, want 10", s.Workers)
	}
	if s.FuzzWorkers != 15 {
		t.Errorf("FuzzWorkers default: got %d, want 15", s.FuzzWorkers)
	}
	if s.ScriptWorkers != 10 {
		t.Errorf("ScriptWorkers default: got %d, want 10", s.ScriptWorkers)
	}
	if s.Timeout != 10*time.Second {
		t.Errorf("Timeout default: got %v, want 10s", s.Timeout)
	}
	if s.Redirects != 10 {
		t.Errorf("Redirects default: got %d, want 10", s.Redirects)
	}
	if s.RequestsLimit != 5000 {
		t.Errorf("RequestsLimit default: got %d, want 5000", s.RequestsLimit)
	}
	if s.Delay != 5*time.Second {
		t.Errorf("Delay default: got %v, want 5s", s.Delay)
	}
	if s.ExitAfterErrors != 2000 {
		t.Errorf("ExitAfterErrors default: got %d, want 2000", s.ExitAfterErrors)
	}
}

// TestScanAliases verifies short and long spellings share a variable
func TestScanAliases(t *testing.T) {
	s := parse(t, "-w", "3", "-sw", "2", "-t", "4", "-r", "1", "-p", "socks5://127.0.0.1:9050", "-o", "out.jsonl", "x.tengo")

	if s.Workers != 3 {
		t.Errorf("Workers via -w: got %d, want 3", s.Workers)
	}
	if s.ScriptWorkers != 2 {
		t.Errorf("ScriptWorkers via -sw: got %d, want 2", s.ScriptWorkers)
	}
	if s.Timeout != 4*time.Second {
		t.Errorf("Timeout via -t: got %v, want 4s", s.Timeout)
	}
	if s.Redirects != 1 {
		t.Errorf("Redirects via -r: got %d, want 1", s.Redirects)
	}
	if s.Proxy != "socks5://127.0.0.1:9050" {
		t.Errorf("Proxy via -p: got %q", s.Proxy)
	}
	if s.Output != "out.jsonl" {
		t.Errorf("Output via -o: got %q", s.Output)
	}

	s = parse(t, "--workers", "7", "--scripts-worker", "5", "x.tengo")
	if s.Workers != 7 || s.ScriptWorkers != 5 {
		t.Errorf("long flags: got workers=%d scripts-worker=%d", s.Workers, s.ScriptWorkers)
	}
}

// TestScanPositionalAnywhere verifies the script path may precede flags
func TestScanPositionalAnywhere(t *testing.T) {
	s := parse(t, "scripts/", "--requests-limit", "1", "--delay", "0")
	if s.ScriptPath != "scripts/" {
		t.Errorf("ScriptPath: got %q", s.ScriptPath)
	}
	if s.RequestsLimit != 1 || s.Delay != 0 {
		t.Errorf("flags after positional ignored: limit=%d delay=%v", s.RequestsLimit, s.Delay)
	}

	s = parse(t, "-w", "2", "scripts/", "--verbose")
	if s.Workers != 2 || !s.Verbose || s.ScriptPath != "scripts/" {
		t.Errorf("flags around positional: %+v", s)
	}

	_, err := ParseScan([]string{"a.tengo", "b.tengo"}, io.Discard)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("second positional: got %v, want ErrInvalidConfig", err)
	}
}

// TestScanJSONFlags verifies --headers and --env-vars decoding
func TestScanJSONFlags(t *testing.T) {
	s := parse(t, "--headers", `{"Cookie":"a=b","X-Test":"1"}`, "--env-vars", `{"token":"abc","ids":[1,2]}`, "x.tengo")

	if s.Headers["Cookie"] != "a=b" || s.Headers["X-Test"] != "1" {
		t.Errorf("Headers: got %v", s.Headers)
	}
	env, ok := s.EnvVars.(map[string]any)
	if !ok {
		t.Fatalf("EnvVars: got %T, want map", s.EnvVars)
	}
	if env["token"] != "abc" {
		t.Errorf("EnvVars token: got %v", env["token"])
	}

	_, err := ParseScan([]string{"--headers", "[1]", "x.tengo"}, io.Discard)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("bad headers: got %v, want ErrInvalidConfig", err)
	}
}

// TestScanValidation verifies range checks
func TestScanValidation(t *testing.T) {
	_, err := ParseScan(nil, io.Discard)
	if !errors.Is(err, ErrMissingRequired) {
		t.Errorf("no script path: got %v, want ErrMissingRequired", err)
	}

	tests := [][]string{
		{"-w", "0", "x.tengo"},
		{"--requests-limit", "0", "x.tengo"},
		{"--exit-after-errors", "-1", "x.tengo"},
		{"-t", "0", "x.tengo"},
	}
	for _, args := range tests {
		if _, err := ParseScan(args, io.Discard); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%v: got %v, want ErrInvalidConfig", args, err)
		}
	}

	// A zero error budget is legal: it refuses every unit.
	s := parse(t, "--exit-after-errors", "0", "x.tengo")
	if s.ExitAfterErrors != 0 {
		t.Errorf("ExitAfterErrors: got %d, want 0", s.ExitAfterErrors)
	}
}

// TestScanConfigFile verifies the YAML file fills only unset flags
func TestScanConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lotus.yaml")
	data := `
workers: 42
timeout: 3
proxy: http://127.0.0.1:8080
headers:
  Cookie: session=1
verbose: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s := parse(t, "--config", path, "-w", "5", "x.tengo")

	if s.Workers != 5 {
		t.Errorf("explicit -w must win over file: got %d", s.Workers)
	}
	if s.Timeout != 3*time.Second {
		t.Errorf("Timeout from file: got %v", s.Timeout)
	}
	if s.Proxy != "http://127.0.0.1:8080" {
		t.Errorf("Proxy from file: got %q", s.Proxy)
	}
	if s.Headers["Cookie"] != "session=1" {
		t.Errorf("Headers from file: got %v", s.Headers)
	}
	if !s.Verbose {
		t.Error("Verbose from file: got false")
	}
}

func TestScanConfigFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("no-such-flag: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := ParseScan([]string{"--config", path, "x.tengo"}, io.Discard)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("got %v, want ErrInvalidConfig", err)
	}
}

func TestIsUsage(t *testing.T) {
	_, err := ParseScan([]string{"-h"}, io.Discard)
	if !IsUsage(err) {
		t.Errorf("-h: got %v, want flag.ErrHelp", err)
	}
}
