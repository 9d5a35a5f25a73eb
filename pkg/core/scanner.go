// Package core schedules scan units: every script against every target of
// the kind the script declares.
//
// The five target kinds fan out in parallel. Within a kind, units are
// dispatched target-major through one bounded worker group, so the
// checkpoint cursor of a kind can advance as soon as all scripts of a
// target finished. Dispatch stops when the scan is paused, its context is
// cancelled, or the script error budget is exhausted; units already
// running are drained.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/lotus-scan/lotus/pkg/checkpoint"
	"github.com/lotus-scan/lotus/pkg/finding"
	"github.com/lotus-scan/lotus/pkg/httpclient"
	"github.com/lotus-scan/lotus/pkg/metrics"
	"github.com/lotus-scan/lotus/pkg/output"
	"github.com/lotus-scan/lotus/pkg/script"
	"github.com/lotus-scan/lotus/pkg/target"
	"github.com/lotus-scan/lotus/pkg/tracing"
	"github.com/lotus-scan/lotus/pkg/ui"
	"github.com/lotus-scan/lotus/pkg/workerpool"
	"github.com/lotus-scan/lotus/pkg/xss"
)

// kindParallelism bounds how many target kinds fan out at once.
const kindParallelism = 4

// Config holds scheduling settings.
type Config struct {
	// Workers bounds concurrent units within one target kind.
	Workers int

	// ScriptWorkers bounds concurrent scripts against one target.
	ScriptWorkers int

	// FuzzWorkers is the default run_scan concurrency inside scripts.
	FuzzWorkers int

	// ExitAfterErrors is the script error budget. Once that many units
	// failed, no new unit starts. Zero refuses every unit.
	ExitAfterErrors int

	// Vars is bound into every script as ENV.
	Vars any

	// Resume holds the cursors of a previous run; targets below them are
	// skipped.
	Resume checkpoint.Cursors
}

// DefaultConfig returns the CLI defaults.
func DefaultConfig() Config {
	return Config{
		Workers:         10,
		ScriptWorkers:   10,
		FuzzWorkers:     15,
		ExitAfterErrors: 2000,
	}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClient sets the HTTP client every unit gets a Sender from.
func WithClient(c *httpclient.Client) Option {
	return func(s *Scanner) { s.client = c }
}

// WithOutput sets where finding lines go. Without it findings are counted
// but not written.
func WithOutput(w *output.Writer) Option {
	return func(s *Scanner) { s.out = w }
}

// WithProgress sets the sideband for user-visible lines.
func WithProgress(p *ui.Progress) Option {
	return func(s *Scanner) { s.progress = p }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Scanner) { s.metrics = r }
}

// WithTracing sets the span provider.
func WithTracing(p *tracing.Provider) Option {
	return func(s *Scanner) {
		if p != nil {
			s.tracing = p
		}
	}
}

// WithOOB enables the OOB capability.
func WithOOB(c script.OOBClient) Option {
	return func(s *Scanner) { s.oob = c }
}

// WithBrowser enables the Browser capability.
func WithBrowser(b script.BrowserClient) Option {
	return func(s *Scanner) { s.browser = b }
}

// WithXSS sets the payload generator shared by all units.
func WithXSS(g *xss.Generator) Option {
	return func(s *Scanner) {
		if g != nil {
			s.xss = g
		}
	}
}

// Scanner runs scans. One Scanner runs one scan at a time.
type Scanner struct {
	cfg Config

	client   *httpclient.Client
	out      *output.Writer
	progress *ui.Progress
	metrics  *metrics.Recorder
	tracing  *tracing.Provider
	oob      script.OOBClient
	browser  script.BrowserClient
	xss      *xss.Generator
	logger   *slog.Logger

	paused     atomic.Bool
	errors     atomic.Int64
	budgetOnce sync.Once
}

// Summary describes a finished scan.
type Summary struct {
	ScanID string

	Units    int64 // units that ran
	Errors   int64 // units counted against the error budget
	NoMain   int64 // units whose script has no main
	Findings int64
	Lines    int64 // output lines written

	// Cursors are the resume cursors reached by this scan.
	Cursors checkpoint.Cursors

	// Interrupted is set when dispatch stopped early because of a pause,
	// a cancelled context or an exhausted error budget.
	Interrupted bool

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// New creates a Scanner. Non-positive worker counts fall back to 1.
func New(cfg Config, opts ...Option) *Scanner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ScriptWorkers <= 0 {
		cfg.ScriptWorkers = 1
	}
	if cfg.FuzzWorkers <= 0 {
		cfg.FuzzWorkers = DefaultConfig().FuzzWorkers
	}
	if cfg.ExitAfterErrors < 0 {
		cfg.ExitAfterErrors = 0
	}
	s := &Scanner{
		cfg:     cfg,
		tracing: tracing.Noop(),
		xss:     xss.New(xss.DefaultConfig()),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = httpclient.New(httpclient.DefaultConfig(), httpclient.WithLogger(s.logger))
	}
	return s
}

// Pause stops the dispatch of new units. Running units finish, and scripts
// polling Threader.is_stop see the pause. It is idempotent.
func (s *Scanner) Pause() {
	if s.paused.CompareAndSwap(false, true) {
		s.logger.Info("scan paused")
	}
}

// Paused reports whether Pause was called.
func (s *Scanner) Paused() bool { return s.paused.Load() }

// Errors returns the number of units counted against the error budget.
func (s *Scanner) Errors() int64 { return s.errors.Load() }

// refuse reports whether new units must not start.
func (s *Scanner) refuse(ctx context.Context) bool {
	if s.paused.Load() || ctx.Err() != nil {
		return true
	}
	if s.errors.Load() >= int64(s.cfg.ExitAfterErrors) {
		s.budgetOnce.Do(func() {
			s.logger.Warn("error budget exhausted, draining",
				slog.Int("exit_after_errors", s.cfg.ExitAfterErrors))
			s.progress.Warn(fmt.Sprintf("%d script errors, no new scans will start", s.errors.Load()))
		})
		return true
	}
	return false
}

// scan is the state of one Run.
type scan struct {
	*Scanner
	id      string
	logger  *slog.Logger
	tracker *checkpoint.Tracker
	lines   chan []byte

	units    atomic.Int64
	noMain   atomic.Int64
	findings atomic.Int64
	written  atomic.Int64
	stopped  atomic.Bool
}

// Run scans targets with progs and returns once every dispatched unit has
// finished. It returns an error only if ctx was cancelled; paused and
// budget-limited scans return their summary with Interrupted set.
func (s *Scanner) Run(ctx context.Context, targets target.Set, progs []*script.Program) (Summary, error) {
	sum := Summary{StartTime: time.Now()}
	if len(progs) == 0 {
		return sum, script.ErrNoScripts
	}

	sc := &scan{
		Scanner: s,
		id:      uuid.NewString(),
		tracker: checkpoint.NewTracker(s.cfg.Resume),
		lines:   make(chan []byte, s.cfg.Workers*2),
	}
	sc.logger = s.logger.With(slog.String("scan_id", sc.id))
	sum.ScanID = sc.id

	ctx, span := s.tracing.StartScan(ctx, sc.id)
	defer span.End()

	byKind := sc.plan(targets, progs)

	// Result collector: units finish concurrently, lines are written in
	// completion order.
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for line := range sc.lines {
			if s.out == nil {
				continue
			}
			if err := s.out.WriteLine(line); err != nil {
				panic(fmt.Sprintf("lotus: %v", err))
			}
			sc.written.Add(1)
		}
	}()

	kinds := workerpool.New(kindParallelism).WithLogger(sc.logger)
	for _, k := range target.Kinds {
		list := targets[k]
		matching := byKind[k]
		if len(list) == 0 || len(matching) == 0 {
			continue
		}
		kinds.Go(func() { sc.runKind(ctx, k, list, matching) })
	}
	kinds.Wait()
	close(sc.lines)
	collectorWg.Wait()

	sum.EndTime = time.Now()
	sum.Duration = sum.EndTime.Sub(sum.StartTime)
	sum.Units = sc.units.Load()
	sum.Errors = s.errors.Load()
	sum.NoMain = sc.noMain.Load()
	sum.Findings = sc.findings.Load()
	sum.Lines = sc.written.Load()
	sum.Cursors = sc.tracker.Cursors()
	sum.Interrupted = sc.stopped.Load()

	sc.logger.Info("scan finished",
		slog.Int64("units", sum.Units),
		slog.Int64("errors", sum.Errors),
		slog.Int64("findings", sum.Findings),
		slog.Duration("duration", sum.Duration))

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("scan %s: %w", sc.id, err)
	}
	return sum, nil
}

// plan groups the scripts by the kind they run against and sizes the
// progress total. Scripts that loaded but declare no SCAN_TYPE are
// reported once and never run.
func (sc *scan) plan(targets target.Set, progs []*script.Program) map[target.Kind][]*script.Program {
	for _, p := range progs {
		if p.Err() != nil {
			continue
		}
		if _, ok := p.ScanType(); !ok {
			sc.logger.Warn("script declares no SCAN_TYPE, skipped", slog.String("script", p.Path))
			sc.progress.Warn(fmt.Sprintf("%s: no SCAN_TYPE, skipped", p.Path))
		}
	}

	byKind := make(map[target.Kind][]*script.Program, len(target.Kinds))
	for _, k := range target.Kinds {
		for _, p := range progs {
			if p.Matches(k) {
				byKind[k] = append(byKind[k], p)
			}
		}
		pending := len(targets[k]) - sc.tracker.Start(k)
		if pending > 0 {
			sc.progress.AddTotal(pending * len(byKind[k]))
		}
	}
	return byKind
}

// runKind dispatches the units of one kind in target-major order.
func (sc *scan) runKind(ctx context.Context, k target.Kind, list []target.Target, progs []*script.Program) {
	start := sc.tracker.Start(k)
	if start > 0 {
		sc.logger.Info("resuming",
			slog.String("kind", k.String()),
			slog.Int("skipped", min(start, len(list))))
	}

	g := workerpool.New(sc.cfg.Workers).WithLogger(sc.logger)
	defer g.Wait()

	for idx := start; idx < len(list); idx++ {
		t := list[idx]
		slots := make(chan struct{}, sc.cfg.ScriptWorkers)

		// The dispatcher holds one count until every script of the target
		// was dispatched; a target cut short is never marked complete.
		var (
			remaining atomic.Int64
			cut       atomic.Bool
		)
		remaining.Store(int64(len(progs)) + 1)
		done := func() {
			if remaining.Add(-1) == 0 && !cut.Load() {
				sc.tracker.Complete(k, idx)
			}
		}

		for j, p := range progs {
			// Units never dispatched leave the progress total.
			undispatched := len(progs) - j + (len(list)-idx-1)*len(progs)
			if sc.refuse(ctx) {
				sc.stopped.Store(true)
				sc.progress.AddTotal(-undispatched)
				g.Stop()
				return
			}
			ok := g.Go(func() {
				defer done()
				slots <- struct{}{}
				defer func() { <-slots }()
				// The budget may have run out while this unit waited.
				if sc.refuse(ctx) {
					cut.Store(true)
					sc.stopped.Store(true)
					sc.progress.AddTotal(-1)
					return
				}
				sc.runUnit(ctx, k, t, p)
			})
			if !ok {
				sc.stopped.Store(true)
				sc.progress.AddTotal(-undispatched)
				return
			}
		}
		done()
	}
}

// runUnit runs one script against one target and records the outcome.
func (sc *scan) runUnit(ctx context.Context, k target.Kind, t target.Target, p *script.Program) {
	ctx, span := sc.tracing.StartUnit(ctx, p.Path, k.String(), t.String())
	sink := finding.NewSink()
	env := &script.Env{
		Target:      t,
		Sender:      sc.client.NewSender(),
		Sink:        sink,
		FuzzWorkers: sc.cfg.FuzzWorkers,
		Vars:        sc.cfg.Vars,
		Logger:      sc.logger,
		Progress:    sc.progress,
		XSS:         sc.xss,
		OOB:         sc.oob,
		Browser:     sc.browser,
		Paused:      sc.Paused,
	}

	err := p.Run(ctx, env)
	var line []byte
	if err == nil {
		line, err = encode(sink)
	}
	tracing.EndUnit(span, err)

	switch {
	case err == nil:
		sc.units.Add(1)
		sc.metrics.Unit(k.String(), metrics.OutcomeOK)
		sc.progress.Done(false)
		sc.emit(sink.Findings(), line)

	case errors.Is(err, script.ErrNoMain):
		sc.units.Add(1)
		sc.noMain.Add(1)
		sc.metrics.Unit(k.String(), metrics.OutcomeNoMain)
		sc.progress.Done(false)
		sc.logger.Warn("script has no main", slog.String("script", p.Path))

	case ctx.Err() != nil:
		// Cancelled with the scan; not the script's fault.
		sc.metrics.Unit(k.String(), metrics.OutcomeSkipped)
		sc.progress.AddTotal(-1)
		sc.logger.Debug("unit cancelled",
			slog.String("script", p.Path),
			slog.String("target", t.String()))

	default:
		sc.units.Add(1)
		n := sc.errors.Add(1)
		sc.metrics.Unit(k.String(), metrics.OutcomeError)
		sc.metrics.ScriptError()
		sc.progress.Done(true)
		sc.progress.Error(fmt.Sprintf("%s (%s): %v", p.Path, t, err))
		sc.logger.Error("script failed",
			slog.String("script", p.Path),
			slog.String("target", t.String()),
			slog.Int64("errors", n),
			slog.String("error", err.Error()))
	}
}

// encode renders the unit's findings as one output line. An empty sink
// yields no line.
func encode(sink *finding.Sink) ([]byte, error) {
	if sink.Len() == 0 {
		return nil, nil
	}
	line, err := sink.MarshalLine()
	if err != nil {
		return nil, fmt.Errorf("encode findings: %w", err)
	}
	return line, nil
}

// emit queues an encoded line and accounts for its findings.
func (sc *scan) emit(items []finding.Finding, line []byte) {
	if line == nil {
		return
	}
	for _, f := range items {
		sc.findings.Add(1)
		sc.metrics.Finding(f.Kind())
		sc.progress.Finding(string(f.Severity()), f.Title(), f.Location())
	}
	sc.lines <- line
}
