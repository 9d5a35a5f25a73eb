package script

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/d5/tengo/v2"
)

// ParamScan holds the cooperative per-parameter flags scripts share across
// the fuzz calls of one unit.
type ParamScan struct {
	tengo.ObjectImpl

	mu        sync.Mutex
	finds     bool
	acceptNil bool
}

func (p *ParamScan) TypeName() string { return "param-scan" }

func (p *ParamScan) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return "ParamScan{finds: " + boolString(p.finds) + ", accept_nil: " + boolString(p.acceptNil) + "}"
}

// Copy returns p itself; clones of a unit share one record.
func (p *ParamScan) Copy() tengo.Object { return p }

func (p *ParamScan) Equals(o tengo.Object) bool { return o == p }

func (p *ParamScan) IndexGet(index tengo.Object) (tengo.Object, error) {
	key, ok := index.(*tengo.String)
	if !ok {
		return nil, tengo.ErrInvalidIndexType
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch key.Value {
	case "finds":
		return boolean(p.finds), nil
	case "accept_nil":
		return boolean(p.acceptNil), nil
	}
	return tengo.UndefinedValue, nil
}

func (p *ParamScan) IndexSet(index, value tengo.Object) error {
	key, ok := index.(*tengo.String)
	if !ok {
		return tengo.ErrInvalidIndexType
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch key.Value {
	case "finds":
		p.finds = !value.IsFalsy()
	case "accept_nil":
		p.acceptNil = !value.IsFalsy()
	default:
		return tengo.ErrInvalidIndexValueType
	}
	return nil
}

// Finds reports the finds flag.
func (p *ParamScan) Finds() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finds
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func joinArgs(args []tengo.Object) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i], _ = tengo.ToString(a)
	}
	return strings.Join(parts, " ")
}

func (u *unit) logFuncs() map[string]tengo.Object {
	logAt := func(name string, level slog.Level, echo func(string)) tengo.Object {
		return fn(name, func(args ...tengo.Object) (tengo.Object, error) {
			msg := joinArgs(args)
			u.logger.Log(u.ctx, level, msg)
			if echo != nil {
				echo(msg)
			}
			return nil, nil
		})
	}
	p := u.env.Progress
	return map[string]tengo.Object{
		"log_debug": logAt("log_debug", slog.LevelDebug, nil),
		"log_info":  logAt("log_info", slog.LevelInfo, nil),
		"log_warn":  logAt("log_warn", slog.LevelWarn, p.Warn),
		"log_error": logAt("log_error", slog.LevelError, p.Error),
		"println": fn("println", func(args ...tengo.Object) (tengo.Object, error) {
			if p == nil {
				u.logger.Info(joinArgs(args))
				return nil, nil
			}
			p.Println(joinArgs(args))
			return nil, nil
		}),
	}
}

func (u *unit) helperFuncs() map[string]tengo.Object {
	twoStrings := func(name string, f func(a, b string) bool) tengo.Object {
		return fn(name, func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 2, 2); err != nil {
				return nil, err
			}
			a, err := argString(args, 0, "s")
			if err != nil {
				return nil, err
			}
			b, err := argString(args, 1, "sub")
			if err != nil {
				return nil, err
			}
			return boolean(f(a, b)), nil
		})
	}

	return map[string]tengo.Object{
		"sleep": fn("sleep", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			d, err := argSeconds(args[0], "seconds")
			if err != nil {
				return nil, err
			}
			return nil, sleepContext(u.ctx, d)
		}),
		"readfile": fn("readfile", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			path, err := argString(args, 0, "path")
			if err != nil {
				return nil, err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return errValue(err.Error()), nil
			}
			return str(string(data)), nil
		}),
		"pathjoin": fn("pathjoin", func(args ...tengo.Object) (tengo.Object, error) {
			parts := make([]string, len(args))
			for i := range args {
				s, err := argString(args, i, "part")
				if err != nil {
					return nil, err
				}
				parts[i] = s
			}
			return str(filepath.Join(parts...)), nil
		}),
		"join_script_dir": fn("join_script_dir", func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 1); err != nil {
				return nil, err
			}
			rel, err := argString(args, 0, "path")
			if err != nil {
				return nil, err
			}
			return str(filepath.Join(u.prog.Dir(), rel)), nil
		}),
		"str_contains":   twoStrings("str_contains", strings.Contains),
		"str_startswith": twoStrings("str_startswith", strings.HasPrefix),
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (u *unit) oobModule() *tengo.ImmutableMap {
	c := u.env.OOB
	return module(map[string]tengo.CallableFunc{
		"url": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 0, 0); err != nil {
				return nil, err
			}
			return str(c.URL()), nil
		},
		"poll": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 0, 0); err != nil {
				return nil, err
			}
			if _, err := c.Poll(u.ctx); err != nil {
				u.logger.Debug("oob poll failed", slog.String("error", err.Error()))
				return errValue(err.Error()), nil
			}
			seen := c.GetInteractions()
			arr := make([]tengo.Object, len(seen))
			for i, in := range seen {
				arr[i] = &tengo.Map{Value: map[string]tengo.Object{
					"id":             str(in.ID),
					"full_id":        str(in.FullID),
					"type":           str(string(in.Type)),
					"protocol":       str(in.Protocol),
					"q_type":         str(in.QType),
					"remote_address": str(in.RemoteAddress),
					"timestamp":      &tengo.Time{Value: in.Timestamp},
					"raw_request":    str(in.RawRequest),
					"raw_response":   str(in.RawResponse),
				}}
			}
			return &tengo.Array{Value: arr}, nil
		},
	})
}

func (u *unit) browserModule() *tengo.ImmutableMap {
	b := u.env.Browser
	return module(map[string]tengo.CallableFunc{
		"open": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 1, 2); err != nil {
				return nil, err
			}
			rawURL, err := argString(args, 0, "url")
			if err != nil {
				return nil, err
			}
			var wait time.Duration
			if len(args) == 2 {
				if wait, err = argSeconds(args[1], "wait_seconds"); err != nil {
					return nil, err
				}
			}
			page, err := b.Open(u.ctx, rawURL, wait)
			if err != nil {
				u.logger.Debug("browser open failed", slog.String("url", rawURL), slog.String("error", err.Error()))
				return errValue(err.Error()), nil
			}
			alerts := make([]tengo.Object, len(page.Dialogs))
			for i, d := range page.Dialogs {
				alerts[i] = &tengo.ImmutableMap{Value: map[string]tengo.Object{
					"type":    str(d.Type),
					"message": str(d.Message),
				}}
			}
			return &tengo.Map{Value: map[string]tengo.Object{
				"url":    str(page.URL),
				"html":   str(page.HTML),
				"title":  str(page.Title),
				"alerts": &tengo.Array{Value: alerts},
			}}, nil
		},
	})
}
