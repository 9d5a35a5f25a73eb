// Package script hosts the Tengo scripts a scan runs.
//
// A Program is compiled once per process. Every scan unit and every inner
// fuzz call runs in its own clone of the compiled program, with the
// capability surface bound into its globals just before it runs, so nothing
// a script sets at run time is visible to any other unit.
//
// Go cannot call a Tengo closure directly. Each program is therefore
// compiled with a short dispatch trailer: the host sets __lotus_invoke__ to
// the name of a top-level function, runs the clone, and reads the return
// value back from __lotus_result__. Top-level statements run on every
// dispatch and should only define values.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/lotus-scan/lotus/pkg/target"
)

// Ext is the script file extension.
const Ext = tengo.SourceFileExtDefault

const (
	invokeVar = "__lotus_invoke__"
	itemVar   = "__lotus_item__"
	resultVar = "__lotus_result__"

	maxAllocs    = 50_000_000
	probeTimeout = 5 * time.Second
)

// modules are the Tengo stdlib modules scripts may import. No os, no
// file or process access; I/O goes through the capability surface.
var modules = stdlib.GetModuleMap("text", "fmt", "math", "times", "json", "rand", "base64", "hex", "enum")

// globalNames are bound by the host. Scripts must not redeclare them.
var globalNames = []string{
	// per-unit
	"SCRIPT_PATH", "FUZZ_WORKERS", "TARGET_HOST", "INPUT_DATA", "ENV", "HttpMessage",
	// http
	"http",
	// matching and html
	"Matcher", "is_match", "generate_css_selector", "html_parse", "html_search", "XSSGenerator",
	// codecs
	"base64encode", "base64decode", "urlencode", "urldecode", "htmlencode", "htmldecode", "encode", "decode",
	// findings and fuzzing
	"Reports", "LuaThreader", "Threader", "ParamScan",
	// logging
	"log_info", "log_warn", "log_error", "log_debug", "println",
	// helpers
	"sleep", "readfile", "pathjoin", "join_script_dir", "str_contains", "str_startswith",
	// integrations
	"OOB", "Browser",
	// dispatch
	invokeVar, itemVar, resultVar,
}

var reserved = func() map[string]bool {
	m := make(map[string]bool, len(globalNames))
	for _, n := range globalNames {
		m[n] = true
	}
	return m
}()

// Program is one compiled script.
type Program struct {
	// Path identifies the script in logs and findings.
	Path string

	compiled *tengo.Compiled
	err      error

	kind    target.Kind
	hasKind bool
	hasMain bool

	// funcs maps the function objects of the compiled program to their
	// top-level names, so a function value passed back by the script can be
	// dispatched by name.
	funcs map[*tengo.CompiledFunction]string
	arity map[string]int
}

// Compile compiles src. A script that fails to load still yields a Program;
// its Err is reported by every Run.
func Compile(path string, src []byte) *Program {
	p := &Program{Path: path}
	if err := p.compile(src); err != nil {
		p.err = fmt.Errorf("%w: %s: %v", ErrLoad, path, err)
	}
	return p
}

func newScript(src []byte) *tengo.Script {
	s := tengo.NewScript(src)
	s.SetImports(modules)
	s.SetMaxAllocs(maxAllocs)
	for _, name := range globalNames {
		_ = s.Add(name, nil)
	}
	return s
}

func (p *Program) compile(src []byte) error {
	first, err := newScript(src).Compile()
	if err != nil {
		return err
	}

	var names []string
	for _, v := range first.GetAll() {
		if !reserved[v.Name()] {
			names = append(names, v.Name())
		}
	}
	sort.Strings(names)

	full := make([]byte, 0, len(src)+256)
	full = append(full, src...)
	full = append(full, trailer(names)...)
	compiled, err := newScript(full).Compile()
	if err != nil {
		return err
	}

	probe := compiled.Clone()
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	if err := probe.RunContext(ctx); err != nil {
		return fmt.Errorf("top-level statements: %w", err)
	}

	p.funcs = make(map[*tengo.CompiledFunction]string)
	p.arity = make(map[string]int)
	for _, name := range names {
		fn, ok := probe.Get(name).Object().(*tengo.CompiledFunction)
		if !ok {
			continue
		}
		if _, dup := p.funcs[fn]; !dup {
			p.funcs[fn] = name
		}
		n := fn.NumParameters
		if fn.VarArgs {
			n = -1
		}
		p.arity[name] = n
	}
	if n, ok := p.arity["main"]; ok && (n == 0 || n == -1) {
		p.hasMain = true
	}
	p.kind, p.hasKind = scanType(probe.Get("SCAN_TYPE").Object())
	p.compiled = compiled
	return nil
}

// trailer dispatches on __lotus_invoke__. main takes no argument, every
// other function takes the fuzz item.
func trailer(names []string) string {
	var b strings.Builder
	b.WriteString("\n")
	first := true
	for _, name := range names {
		if first {
			b.WriteString("if ")
			first = false
		} else {
			b.WriteString(" else if ")
		}
		fmt.Fprintf(&b, "%s == %q {\n", invokeVar, name)
		if name == "main" {
			fmt.Fprintf(&b, "\t%s = main()\n}", resultVar)
		} else {
			fmt.Fprintf(&b, "\t%s = %s(%s)\n}", resultVar, name, itemVar)
		}
	}
	b.WriteString("\n")
	return b.String()
}

func scanType(o tengo.Object) (target.Kind, bool) {
	switch v := o.(type) {
	case *tengo.Int:
		k := target.Kind(v.Value)
		return k, k.Valid()
	case *tengo.String:
		return target.ParseKind(v.Value)
	}
	return 0, false
}

// Err returns the load error, if any.
func (p *Program) Err() error { return p.err }

// HasMain reports whether the script defines main().
func (p *Program) HasMain() bool { return p.hasMain }

// ScanType returns the declared SCAN_TYPE.
func (p *Program) ScanType() (target.Kind, bool) { return p.kind, p.hasKind }

// Matches reports whether the program is dispatched for targets of kind k.
// A script that failed to load matches every kind so that each of its
// units records the failure.
func (p *Program) Matches(k target.Kind) bool {
	if p.err != nil {
		return true
	}
	return p.hasKind && p.kind == k
}

// Dir is the directory join_script_dir resolves against.
func (p *Program) Dir() string { return filepath.Dir(p.Path) }

// HasFunction reports whether name is a top-level function.
func (p *Program) HasFunction(name string) bool {
	_, ok := p.arity[name]
	return ok
}

// LoadFile reads and compiles one script.
func LoadFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	return Compile(path, data), nil
}

// LoadPath loads a single script or every *.tengo file of a directory, in
// name order. Read errors are fatal; compile errors are kept on the
// returned programs.
func LoadPath(path string) ([]*Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read scripts %s: %w", path, err)
	}
	if !info.IsDir() {
		p, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		return []*Program{p}, nil
	}

	files, err := filepath.Glob(filepath.Join(path, "*"+Ext))
	if err != nil {
		return nil, fmt.Errorf("read scripts %s: %w", path, err)
	}
	var progs []*Program
	for _, f := range files {
		p, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		progs = append(progs, p)
	}
	if len(progs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoScripts, path)
	}
	return progs, nil
}
