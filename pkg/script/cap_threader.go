package script

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/d5/tengo/v2"

	"github.com/lotus-scan/lotus/pkg/workerpool"
)

// threader is the unit's inner fuzz executor. Its stop flag is shared by
// every clone of the unit, so stop_scan called from inside one fn
// invocation stops dispatch in all of them.
type threader struct {
	u       *unit
	stopped atomic.Bool

	mu     sync.Mutex
	groups map[*workerpool.Group]struct{}
}

func (u *unit) threaderModule() *tengo.ImmutableMap {
	t := &threader{u: u, groups: make(map[*workerpool.Group]struct{})}
	return module(map[string]tengo.CallableFunc{
		"run_scan":  t.runScan,
		"stop_scan": t.stopScan,
		"is_stop": func(args ...tengo.Object) (tengo.Object, error) {
			if err := wantArgs(args, 0, 0); err != nil {
				return nil, err
			}
			return boolean(t.halted()), nil
		},
	})
}

func (t *threader) halted() bool {
	return t.stopped.Load() || t.u.env.Paused() || t.u.ctx.Err() != nil
}

func (t *threader) stopScan(args ...tengo.Object) (tengo.Object, error) {
	if t.stopped.CompareAndSwap(false, true) {
		t.u.logger.Debug("inner scan stopped")
	}
	t.mu.Lock()
	for g := range t.groups {
		g.Stop()
	}
	t.mu.Unlock()
	return nil, nil
}

// runScan calls fn(item) for every item with at most workers calls in
// flight and returns once the dispatched calls have finished. Errors in fn
// are logged and do not stop the scan.
func (t *threader) runScan(args ...tengo.Object) (tengo.Object, error) {
	if err := wantArgs(args, 2, 3); err != nil {
		return nil, err
	}
	items, err := elements(args[0], "items")
	if err != nil {
		return nil, err
	}
	name, err := t.u.funcName(args[1])
	if err != nil {
		return nil, err
	}
	workers := t.u.env.FuzzWorkers
	if len(args) == 3 && args[2] != tengo.UndefinedValue {
		if workers, err = argInt(args, 2, "workers"); err != nil {
			return nil, err
		}
	}

	g := workerpool.New(workers).WithLogger(t.u.logger)
	t.mu.Lock()
	t.groups[g] = struct{}{}
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		delete(t.groups, g)
		t.mu.Unlock()
	}()

	ctx := t.u.ctx
	var failed atomic.Int64
	for _, item := range items {
		if t.halted() {
			break
		}
		item := item.Copy()
		if !g.Go(func() {
			res, err := t.u.invoke(ctx, name, item)
			if err == nil {
				if e, ok := res.(*tengo.Error); ok {
					err = errors.New(e.String())
				}
			}
			if err != nil && ctx.Err() == nil {
				failed.Add(1)
				t.u.logger.Debug("fuzz call failed",
					slog.String("fn", name),
					slog.String("error", err.Error()))
			}
		}) {
			break
		}
	}
	g.Wait()
	if n := failed.Load(); n > 0 {
		t.u.logger.Warn("fuzz calls failed", slog.String("fn", name), slog.Int64("failed", n))
	}
	return nil, nil
}
