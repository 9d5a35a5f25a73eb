package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lotus-scan/lotus/pkg/jsonutil"
)

// Scan holds every option of the scan command
type Scan struct {
	// Scripts
	ScriptPath  string // Directory of *.tengo scripts or a single script
	FuzzWorkers int    // Default inner fuzz concurrency (default: 15)

	// Execution settings
	Workers         int           // Outer concurrency per target kind (default: 10)
	ScriptWorkers   int           // Scripts run at once against one target (default: 10)
	Timeout         time.Duration // Default per-request timeout (default: 10s)
	Redirects       int           // Default redirect cap (default: 10)
	RequestsLimit   int           // Requests allowed before a cool-down (default: 5000)
	Delay           time.Duration // Cool-down length (default: 5s)
	Rate            float64       // Optional requests/second smoothing (0 = off)
	ExitAfterErrors int           // Script error budget (default: 2000)

	// Network
	Proxy   string            // Default proxy URL
	Headers map[string]string // Default request headers

	// Input
	URLs         string // File of targets (empty = stdin)
	Requests     string // JSON lines of full HTTP requests
	InputHandler string // Script whose parse_input(lines) builds custom targets
	EnvVars      any    // JSON value bound as ENV in every script

	// Output and state
	Output     string // Findings file (empty = stdout)
	Resume     string // Resume checkpoint file
	LogFile    string // Debug log destination
	ConfigFile string // YAML file applied under the command line
	Verbose    bool   // Print every sent request
	Silent     bool   // No banner, no progress bar
	NoColor    bool   // Disable colored output

	// Integrations
	MetricsAddr  string // Serve Prometheus metrics on this address
	OTelEndpoint string // OTLP/gRPC trace collector
	OOBServer    string // Interactsh server; enables the OOB capability
	Browser      bool   // Enable the headless Browser capability
	ChromePath   string // Chrome/Chromium binary (default: auto-detect)

	timeoutSec int
	delaySec   int
	headers    string
	envVars    string
}

// Default returns a Scan with the CLI defaults.
func Default() *Scan {
	return &Scan{
		Workers:         10,
		FuzzWorkers:     15,
		ScriptWorkers:   10,
		Timeout:         10 * time.Second,
		Redirects:       10,
		RequestsLimit:   5000,
		Delay:           5 * time.Second,
		ExitAfterErrors: 2000,
	}
}

// Register binds every scan flag to s on fs. Short and long spellings share
// one variable.
func (s *Scan) Register(fs *flag.FlagSet) {
	d := Default()

	// === EXECUTION ===
	fs.IntVar(&s.Workers, "workers", d.Workers, "Concurrent scan units per target kind")
	fs.IntVar(&s.Workers, "w", d.Workers, "Workers (alias)")
	fs.IntVar(&s.FuzzWorkers, "fuzz-workers", d.FuzzWorkers, "Default inner fuzz concurrency")
	fs.IntVar(&s.ScriptWorkers, "scripts-worker", d.ScriptWorkers, "Scripts run at once per target")
	fs.IntVar(&s.ScriptWorkers, "sw", d.ScriptWorkers, "Scripts worker (alias)")
	fs.IntVar(&s.timeoutSec, "timeout", int(d.Timeout/time.Second), "Request timeout in seconds")
	fs.IntVar(&s.timeoutSec, "t", int(d.Timeout/time.Second), "Timeout (alias)")
	fs.IntVar(&s.Redirects, "redirects", d.Redirects, "Maximum redirects to follow")
	fs.IntVar(&s.Redirects, "r", d.Redirects, "Redirects (alias)")
	fs.IntVar(&s.RequestsLimit, "requests-limit", d.RequestsLimit, "Requests sent before sleeping --delay seconds")
	fs.IntVar(&s.delaySec, "delay", int(d.Delay/time.Second), "Seconds to sleep once --requests-limit is reached")
	fs.Float64Var(&s.Rate, "rate", 0, "Smooth traffic to this many requests per second (0 = off)")
	fs.IntVar(&s.ExitAfterErrors, "exit-after-errors", d.ExitAfterErrors, "Stop starting scripts after this many script errors")

	// === NETWORK ===
	fs.StringVar(&s.Proxy, "proxy", "", "HTTP or SOCKS proxy URL")
	fs.StringVar(&s.Proxy, "p", "", "Proxy (alias)")
	fs.StringVar(&s.headers, "headers", "", `Default headers as JSON, e.g. {"Cookie":"a=b"}`)

	// === INPUT ===
	fs.StringVar(&s.URLs, "urls", "", "File of targets (default: stdin)")
	fs.StringVar(&s.Requests, "requests", "", "JSON lines of {method,url,headers,body} requests")
	fs.StringVar(&s.InputHandler, "input-handler", "", "Script that turns input lines into custom targets")
	fs.StringVar(&s.envVars, "env-vars", "", "JSON value exposed to scripts as ENV")

	// === OUTPUT ===
	fs.StringVar(&s.Output, "output", "", "Findings file (default: stdout)")
	fs.StringVar(&s.Output, "o", "", "Output (alias)")
	fs.StringVar(&s.Resume, "resume", "", "Resume checkpoint file")
	fs.StringVar(&s.LogFile, "log", "", "Write debug logs to this file")
	fs.StringVar(&s.ConfigFile, "config", "", "YAML file of defaults for unset flags")
	fs.BoolVar(&s.Verbose, "verbose", false, "Print every sent request")
	fs.BoolVar(&s.Verbose, "v", false, "Verbose (alias)")
	fs.BoolVar(&s.Silent, "silent", false, "No banner or progress bar")
	fs.BoolVar(&s.NoColor, "no-color", false, "Disable colored output")

	// === INTEGRATIONS ===
	fs.StringVar(&s.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.StringVar(&s.OTelEndpoint, "otel-endpoint", "", "OTLP/gRPC endpoint for scan traces")
	fs.StringVar(&s.OOBServer, "oob-server", "", "Interactsh server for out-of-band checks")
	fs.BoolVar(&s.Browser, "browser", false, "Enable the headless browser capability")
	fs.StringVar(&s.ChromePath, "chrome-path", "", "Chrome or Chromium binary")
}

// ParseScan parses the scan command line. The script path is the single
// positional argument and may appear before, between or after flags.
func ParseScan(args []string, stderr io.Writer) (*Scan, error) {
	s := Default()
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	s.Register(fs)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: lotus scan [flags] <script_path>")
		fs.PrintDefaults()
	}

	rest := args
	for {
		if err := fs.Parse(rest); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			break
		}
		if s.ScriptPath != "" {
			return nil, fmt.Errorf("%w: unexpected argument %q", ErrInvalidConfig, fs.Arg(0))
		}
		s.ScriptPath = fs.Arg(0)
		rest = fs.Args()[1:]
	}

	if s.ConfigFile != "" {
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		if err := applyFile(fs, s.ConfigFile, explicit); err != nil {
			return nil, err
		}
	}

	if err := s.finish(); err != nil {
		return nil, err
	}
	return s, nil
}

// applyFile sets every flag named in the YAML file that the command line did
// not set. Keys are long flag names; maps and lists are passed on as JSON.
func applyFile(fs *flag.FlagSet, path string, explicit map[string]bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if fs.Lookup(name) == nil {
			return fmt.Errorf("%w: %s: unknown option %q", ErrInvalidConfig, path, name)
		}
		if explicit[name] || explicit[aliasOf(fs, name)] {
			continue
		}
		raw, err := flagValue(values[name])
		if err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalidConfig, path, name, err)
		}
		if err := fs.Set(name, raw); err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrInvalidConfig, path, name, err)
		}
	}
	return nil
}

// aliasOf returns the other spelling bound to the same variable, if any.
func aliasOf(fs *flag.FlagSet, name string) string {
	target := fs.Lookup(name)
	alias := ""
	fs.VisitAll(func(f *flag.Flag) {
		if f.Name != name && f.Value == target.Value {
			alias = f.Name
		}
	})
	return alias
}

func flagValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]any, []any:
		b, err := jsonutil.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return fmt.Sprint(v), nil
	}
}

func (s *Scan) finish() error {
	s.Timeout = time.Duration(s.timeoutSec) * time.Second
	s.Delay = time.Duration(s.delaySec) * time.Second

	if s.headers != "" {
		if err := jsonutil.Unmarshal([]byte(s.headers), &s.Headers); err != nil {
			return fmt.Errorf("%w: --headers must be a JSON object of strings: %v", ErrInvalidConfig, err)
		}
	}
	if s.envVars != "" {
		if err := jsonutil.Unmarshal([]byte(s.envVars), &s.EnvVars); err != nil {
			return fmt.Errorf("%w: --env-vars is not valid JSON: %v", ErrInvalidConfig, err)
		}
	}
	return s.Validate()
}

// Validate checks option ranges.
func (s *Scan) Validate() error {
	var problems []string
	if s.ScriptPath == "" {
		return fmt.Errorf("%w: script_path", ErrMissingRequired)
	}
	if s.Workers <= 0 {
		problems = append(problems, "workers must be > 0")
	}
	if s.FuzzWorkers <= 0 {
		problems = append(problems, "fuzz-workers must be > 0")
	}
	if s.ScriptWorkers <= 0 {
		problems = append(problems, "scripts-worker must be > 0")
	}
	if s.Timeout <= 0 {
		problems = append(problems, "timeout must be > 0")
	}
	if s.Redirects < 0 {
		problems = append(problems, "redirects must be >= 0")
	}
	if s.RequestsLimit <= 0 {
		problems = append(problems, "requests-limit must be > 0")
	}
	if s.Delay < 0 {
		problems = append(problems, "delay must be >= 0")
	}
	if s.Rate < 0 {
		problems = append(problems, "rate must be >= 0")
	}
	if s.ExitAfterErrors < 0 {
		problems = append(problems, "exit-after-errors must be >= 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// IsUsage reports whether err only means help was requested.
func IsUsage(err error) bool { return errors.Is(err, flag.ErrHelp) }
