// Package workerpool provides the bounded fan-out used by the scan scheduler
// and by scripts' inner fuzzing.
//
// A Group runs at most N tasks at once. Dispatch blocks while the group is
// full, so the caller's iteration order is the dispatch order. Once Stop is
// called, further dispatches are refused and tasks already running finish.
package workerpool

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Group is a bounded set of goroutines with a cooperative stop flag.
type Group struct {
	slots   chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool

	running   atomic.Int64
	peak      atomic.Int64
	completed atomic.Int64

	logger *slog.Logger
}

// New creates a group that runs at most workers tasks concurrently.
// Non-positive values mean 1.
func New(workers int) *Group {
	if workers <= 0 {
		workers = 1
	}
	return &Group{
		slots:  make(chan struct{}, workers),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger used for recovered panics.
func (g *Group) WithLogger(l *slog.Logger) *Group {
	if l != nil {
		g.logger = l
	}
	return g
}

// Go waits for a free slot and runs task in a new goroutine. It returns
// false, without running task, when the group was stopped before a slot
// became available.
func (g *Group) Go(task func()) bool {
	if g.stopped.Load() {
		return false
	}
	g.slots <- struct{}{}
	if g.stopped.Load() {
		<-g.slots
		return false
	}

	g.wg.Add(1)
	n := g.running.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				g.logger.Error("worker panic recovered",
					slog.String("panic", fmt.Sprint(r)),
					slog.String("stack", string(debug.Stack())))
			}
			g.running.Add(-1)
			g.completed.Add(1)
			<-g.slots
			g.wg.Done()
		}()
		task()
	}()
	return true
}

// Stop refuses further dispatches. It is idempotent.
func (g *Group) Stop() { g.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (g *Group) Stopped() bool { return g.stopped.Load() }

// Wait blocks until every dispatched task returned.
func (g *Group) Wait() { g.wg.Wait() }

// Cap returns the concurrency bound.
func (g *Group) Cap() int { return cap(g.slots) }

// Running returns the number of tasks in flight.
func (g *Group) Running() int { return int(g.running.Load()) }

// Peak returns the highest number of tasks ever in flight at once.
func (g *Group) Peak() int { return int(g.peak.Load()) }

// Completed returns the number of tasks that returned.
func (g *Group) Completed() int { return int(g.completed.Load()) }

// ForEach dispatches fn for every item in order, stopping early when the
// group is stopped, and waits for the dispatched calls. It returns how many
// items were dispatched.
func ForEach[T any](g *Group, items []T, fn func(int, T)) int {
	n := 0
	for i, item := range items {
		i, item := i, item
		if !g.Go(func() { fn(i, item) }) {
			break
		}
		n++
	}
	g.Wait()
	return n
}
