package workerpool

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGroup_BoundsConcurrency(t *testing.T) {
	g := New(4)
	var cur, maxSeen atomic.Int64

	items := make([]int, 20)
	n := ForEach(g, items, func(int, int) {
		c := cur.Add(1)
		for {
			m := maxSeen.Load()
			if c <= m || maxSeen.CompareAndSwap(m, c) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		cur.Add(-1)
	})

	assert.Equal(t, 20, n)
	assert.Equal(t, 20, g.Completed())
	assert.LessOrEqual(t, maxSeen.Load(), int64(4))
	assert.LessOrEqual(t, g.Peak(), 4)
	assert.Equal(t, 0, g.Running())
}

func TestGroup_StopSkipsLaterDispatches(t *testing.T) {
	g := New(1)
	var ran atomic.Int64

	n := ForEach(g, make([]int, 10), func(i int, _ int) {
		ran.Add(1)
		if i == 2 {
			g.Stop()
			g.Stop() // idempotent
		}
	})

	// With one slot, item 3 waits for item 2 to finish, which stops the group.
	assert.Equal(t, 3, n)
	assert.Equal(t, int64(3), ran.Load())
	assert.True(t, g.Stopped())
	assert.False(t, g.Go(func() { t.Error("must not run") }))
}

func TestGroup_RecoversPanics(t *testing.T) {
	g := New(2)
	assert.True(t, g.Go(func() { panic("boom") }))
	var ok atomic.Bool
	assert.True(t, g.Go(func() { ok.Store(true) }))
	g.Wait()
	assert.True(t, ok.Load())
	assert.Equal(t, 2, g.Completed())
}

func TestNew_ClampsWorkers(t *testing.T) {
	assert.Equal(t, 1, New(0).Cap())
	assert.Equal(t, 7, New(7).Cap())
}
