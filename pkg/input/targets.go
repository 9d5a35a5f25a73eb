// Package input turns operator input into the five target lists of a scan.
package input

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/lotus-scan/lotus/pkg/jsonutil"
	"github.com/lotus-scan/lotus/pkg/target"
)

// Handler rewrites raw input lines into custom target values.
type Handler func(lines []string) ([]any, error)

// Source consolidates all target input methods
type Source struct {
	File     string    // From --urls
	Stdin    io.Reader // Used when File is empty; nil means no stdin
	Requests string    // From --requests, JSON lines of full requests
	Handler  Handler   // From --input-handler
}

// Load reads every configured input. With a Handler the raw lines become
// Custom targets only; otherwise they are split into URL, Host and Path
// lists. It returns ErrNoTargets when nothing is left to scan.
func (s *Source) Load() (target.Set, error) {
	set := target.Set{}

	lines, err := s.lines()
	if err != nil {
		return nil, err
	}

	if s.Handler != nil {
		if len(lines) > 0 {
			values, err := s.Handler(lines)
			if err != nil {
				return nil, fmt.Errorf("input handler: %w", err)
			}
			for _, v := range values {
				set.Add(target.Target{Kind: target.Custom, Data: v})
			}
		}
	} else {
		for k, ts := range Derive(lines) {
			set[k] = ts
		}
	}

	if s.Requests != "" {
		reqs, err := LoadRequests(s.Requests)
		if err != nil {
			return nil, err
		}
		set[target.FullHTTP] = append(set[target.FullHTTP], reqs...)
	}

	if set.Total() == 0 {
		return nil, ErrNoTargets
	}
	return set, nil
}

func (s *Source) lines() ([]string, error) {
	if s.File != "" {
		f, err := os.Open(s.File)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRead, err)
		}
		defer f.Close()
		return ReadLines(f)
	}
	if s.Stdin != nil {
		return ReadLines(s.Stdin)
	}
	return nil, nil
}

// ReadLines returns the trimmed lines of r, skipping blanks and # comments.
func ReadLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return lines, nil
}

// Derive splits input lines into URL, Host and Path targets. Each list is
// deduplicated and keeps first-seen order. A line that is not an http(s)
// URL is taken as a bare host.
func Derive(lines []string) target.Set {
	urls := newList(target.URL)
	hosts := newList(target.Host)
	paths := newList(target.Path)

	for _, line := range lines {
		u, err := url.Parse(line)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			hosts.add(strings.TrimSuffix(line, "/"))
			continue
		}
		urls.add(line)
		hosts.add(u.Host)

		p := u.EscapedPath()
		if p == "" {
			p = "/"
		}
		paths.add(u.Scheme + "://" + u.Host + p)
	}

	set := target.Set{}
	for _, l := range []*list{urls, hosts, paths} {
		if len(l.items) > 0 {
			set[l.kind] = l.items
		}
	}
	return set
}

type list struct {
	kind  target.Kind
	seen  map[string]bool
	items []target.Target
}

func newList(k target.Kind) *list {
	return &list{kind: k, seen: make(map[string]bool)}
}

func (l *list) add(v string) {
	if v == "" || l.seen[v] {
		return
	}
	l.seen[v] = true
	l.items = append(l.items, target.Target{Kind: l.kind, Value: v})
}

// LoadRequests reads one {method,url,headers,body} object per line.
func LoadRequests(path string) ([]target.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	defer f.Close()

	var out []target.Target
	err = jsonutil.DecodeLines(f, func(line int, req target.Request) error {
		if req.URL == "" {
			return fmt.Errorf("line %d: %w", line, ErrMissingURL)
		}
		if req.Method == "" {
			req.Method = "GET"
		}
		req.Method = strings.ToUpper(req.Method)
		r := req
		out = append(out, target.Target{Kind: target.FullHTTP, Value: r.URL, Request: &r})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("requests %s: %w", path, err)
	}
	return out, nil
}

// PipedStdin returns os.Stdin when it is a pipe or file, nil for a terminal.
func PipedStdin() io.Reader {
	stat, err := os.Stdin.Stat()
	if err != nil || (stat.Mode()&os.ModeCharDevice) != 0 {
		return nil
	}
	return os.Stdin
}
