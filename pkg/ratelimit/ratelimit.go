// Package ratelimit provides the scan-wide request governor.
//
// The governor is a throttle, not a semaphore: it counts requests issued
// since the last cool-down, and once the count reaches the limit the next
// caller sleeps for the configured delay and restarts the count at one.
// Nothing is ever released. Operators tune Limit and Sleep against this
// behaviour, so it must stay exactly as is.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Config holds governor configuration
type Config struct {
	// Limit is the number of requests allowed before a cool-down (must be > 0)
	Limit int

	// Sleep is the cool-down taken once Limit is reached
	Sleep time.Duration

	// RequestsPerSecond optionally smooths traffic after the throttle (0 = off)
	RequestsPerSecond float64

	// Burst for the smoothing limiter (default: 1)
	Burst int
}

// DefaultConfig mirrors the CLI defaults.
func DefaultConfig() Config {
	return Config{
		Limit: 5000,
		Sleep: 5 * time.Second,
	}
}

// Option configures a Governor.
type Option func(*Governor)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithNotify sets the callback used for the user-visible saturation message.
// It is called while the budget lock is held, so the message is ordered
// before the reset that follows the sleep.
func WithNotify(fn func(sleep time.Duration)) Option {
	return func(g *Governor) {
		g.notify = fn
	}
}

// Governor enforces the global request budget.
type Governor struct {
	mu       sync.Mutex
	limit    int
	inFlight int
	sleep    time.Duration

	smooth *rate.Limiter
	notify func(time.Duration)
	logger *slog.Logger

	acquired atomic.Int64
	trips    atomic.Int64
}

// New creates a governor. A non-positive Limit is treated as 1.
func New(cfg Config, opts ...Option) *Governor {
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Sleep < 0 {
		cfg.Sleep = 0
	}

	g := &Governor{
		limit:  cfg.Limit,
		sleep:  cfg.Sleep,
		logger: slog.Default(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.smooth = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Acquire is called before every HTTP send. It only returns an error when ctx
// is cancelled during a cool-down or smoothing wait.
func (g *Governor) Acquire(ctx context.Context) error {
	g.mu.Lock()
	if g.inFlight >= g.limit {
		g.trips.Add(1)
		if g.notify != nil {
			g.notify(g.sleep)
		}
		g.logger.Debug("request budget exhausted",
			slog.Int("limit", g.limit),
			slog.Duration("sleep", g.sleep))
		g.mu.Unlock()

		if err := sleepCtx(ctx, g.sleep); err != nil {
			return err
		}

		g.mu.Lock()
		g.inFlight = 1
		g.mu.Unlock()
	} else {
		g.inFlight++
		g.mu.Unlock()
	}

	g.acquired.Add(1)

	if g.smooth != nil {
		return g.smooth.Wait(ctx)
	}
	return nil
}

// InFlight returns the current budget counter.
func (g *Governor) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Limit returns the configured limit.
func (g *Governor) Limit() int { return g.limit }

// Trips returns how many times the cool-down branch was taken.
func (g *Governor) Trips() int64 { return g.trips.Load() }

// Acquired returns the total number of successful acquisitions.
func (g *Governor) Acquired() int64 { return g.acquired.Load() }

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
