package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lotus-scan/lotus/pkg/checkpoint"
	"github.com/lotus-scan/lotus/pkg/cli"
	"github.com/lotus-scan/lotus/pkg/config"
	"github.com/lotus-scan/lotus/pkg/core"
	"github.com/lotus-scan/lotus/pkg/headless"
	"github.com/lotus-scan/lotus/pkg/httpclient"
	"github.com/lotus-scan/lotus/pkg/input"
	"github.com/lotus-scan/lotus/pkg/metrics"
	"github.com/lotus-scan/lotus/pkg/oob"
	"github.com/lotus-scan/lotus/pkg/output"
	"github.com/lotus-scan/lotus/pkg/ratelimit"
	"github.com/lotus-scan/lotus/pkg/script"
	"github.com/lotus-scan/lotus/pkg/tracing"
	"github.com/lotus-scan/lotus/pkg/ui"
)

// scanStdin is replaced in tests.
var scanStdin = input.PipedStdin

func runScan(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.ParseScan(args, stderr)
	if err != nil {
		if config.IsUsage(err) {
			return 0
		}
		return failUsage(stderr, err.Error(), "lotus scan [flags] <script_path>")
	}

	ui.SetNoColor(cfg.NoColor || ui.ColorDisabledByEnv())

	logger, closeLog, err := setupLogger(cfg.LogFile, stderr)
	if err != nil {
		return failf(stderr, "%v", err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	if !cfg.Silent {
		ui.PrintBanner(stderr)
	}
	progress := ui.NewProgress(stderr, !cfg.Silent && ui.StderrIsTerminal())

	// === METRICS AND TRACING ===
	var rec *metrics.Recorder
	if cfg.MetricsAddr != "" {
		rec, err = metrics.New()
		if err != nil {
			return failf(stderr, "metrics: %v", err)
		}
		srv, err := rec.Serve(cfg.MetricsAddr, logger)
		if err != nil {
			return failf(stderr, "%v", err)
		}
		defer srv.Close()
		logger.Info("serving metrics", "addr", srv.Addr())
	}

	tp, err := tracing.New(tracing.Options{
		Endpoint: cfg.OTelEndpoint,
		Version:  ui.Version,
		Insecure: true,
	})
	if err != nil {
		return failf(stderr, "tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	// === TRANSPORT ===
	gov := ratelimit.New(ratelimit.Config{
		Limit:             cfg.RequestsLimit,
		Sleep:             cfg.Delay,
		RequestsPerSecond: cfg.Rate,
	},
		ratelimit.WithLogger(logger),
		ratelimit.WithNotify(func(sleep time.Duration) {
			rec.RateLimitSleep()
			progress.Warn(fmt.Sprintf("rate limit reached, sleeping %d seconds", int(sleep/time.Second)))
		}),
	)

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.Timeout
	httpCfg.Redirects = cfg.Redirects
	httpCfg.Proxy = cfg.Proxy
	httpCfg.Headers = httpclient.WithDefaultUserAgent(cfg.Headers)
	client := httpclient.New(httpCfg,
		httpclient.WithGovernor(gov),
		httpclient.WithLogger(logger),
		httpclient.WithHooks(requestHooks(cfg.Verbose, progress, rec)),
	)

	// === SCRIPTS ===
	progs, err := script.LoadPath(cfg.ScriptPath)
	if err != nil {
		return failf(stderr, "%v", err)
	}
	for _, p := range progs {
		if p.Err() != nil {
			progress.Warn(p.Err().Error())
		}
	}
	logger.Info("loaded scripts", "count", len(progs), "path", cfg.ScriptPath)

	// === STATE AND OUTPUT ===
	resumeFile := cfg.Resume
	var cursors checkpoint.Cursors
	if resumeFile != "" {
		cursors, err = checkpoint.Load(resumeFile)
		if err != nil {
			return failf(stderr, "%v", err)
		}
	}

	out := output.New(stdout)
	if cfg.Output != "" {
		out, err = output.Open(cfg.Output)
		if err != nil {
			return failf(stderr, "%v", err)
		}
	}
	defer out.Close()

	// === INTEGRATIONS ===
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithClient(client),
		core.WithOutput(out),
		core.WithProgress(progress),
		core.WithMetrics(rec),
		core.WithTracing(tp),
	}

	if cfg.OOBServer != "" {
		oc, err := oob.NewInteractshClient(oob.InteractshConfig{ServerURL: cfg.OOBServer}, client.NewSender())
		if err != nil {
			return failf(stderr, "%v", err)
		}
		if err := oc.Register(context.Background()); err != nil {
			return failf(stderr, "oob: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := oc.Close(ctx); err != nil {
				logger.Debug("oob deregister", "error", err)
			}
		}()
		opts = append(opts, core.WithOOB(oc))
		logger.Info("oob enabled", "url", oc.URL())
	}

	if cfg.Browser {
		bcfg := headless.DefaultConfig()
		bcfg.ChromiumPath = cfg.ChromePath
		bcfg.Proxy = cfg.Proxy
		bcfg.Headers = cfg.Headers
		bcfg.UserAgent = httpCfg.Headers["User-Agent"]
		b := headless.NewBrowser(bcfg)
		defer b.Close()
		opts = append(opts, core.WithBrowser(b))
	}

	scanner := core.New(core.Config{
		Workers:         cfg.Workers,
		ScriptWorkers:   cfg.ScriptWorkers,
		FuzzWorkers:     cfg.FuzzWorkers,
		ExitAfterErrors: cfg.ExitAfterErrors,
		Vars:            cfg.EnvVars,
		Resume:          cursors,
	}, opts...)

	ctx, cancel := cli.SignalContext(scanner.Pause)
	defer cancel()

	// === TARGETS ===
	src := input.Source{
		File:     cfg.URLs,
		Requests: cfg.Requests,
	}
	if cfg.URLs == "" {
		src.Stdin = scanStdin()
	}
	if cfg.InputHandler != "" {
		h, err := inputHandler(ctx, cfg, client, logger, progress)
		if err != nil {
			return failf(stderr, "%v", err)
		}
		src.Handler = h
	}
	targets, err := src.Load()
	if err != nil {
		return failf(stderr, "%v", err)
	}

	// === SCAN ===
	progress.Start(0)
	sum, err := scanner.Run(ctx, targets, progs)
	progress.Stop()

	interrupted := sum.Interrupted
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			return failf(stderr, "%v", err)
		}
		interrupted = true
	}

	if resumeFile == "" && interrupted {
		resumeFile = checkpoint.DefaultFile
	}
	if resumeFile != "" {
		if err := checkpoint.Save(resumeFile, sum.Cursors); err != nil {
			printError(stderr, err.Error())
		} else if interrupted {
			fmt.Fprintf(stderr, "Resume state saved to %s\n", resumeFile)
		}
	}

	if !cfg.Silent {
		printSummary(stderr, sum, gov)
	}
	return 0
}

// setupLogger sends debug logs to path, or only warnings to stderr when
// path is empty.
func setupLogger(path string, stderr io.Writer) (*slog.Logger, func(), error) {
	if path == "" {
		h := slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})
		return slog.New(h), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	h := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), func() { f.Close() }, nil
}

func requestHooks(verbose bool, progress *ui.Progress, rec *metrics.Recorder) httpclient.Hooks {
	hooks := httpclient.Hooks{
		AfterSend: func(_ *httpclient.Response, err error, elapsed time.Duration) {
			outcome := metrics.OutcomeOK
			if err != nil {
				outcome = string(httpclient.Classify(err))
			}
			rec.HTTPRequest(outcome, elapsed)
		},
	}
	if verbose {
		hooks.BeforeSend = func(_, url string) {
			progress.Println("Sent HTTP request: " + url)
		}
	}
	return hooks
}

// inputHandler loads the --input-handler script and wraps its parse_input.
func inputHandler(ctx context.Context, cfg *config.Scan, client *httpclient.Client, logger *slog.Logger, progress *ui.Progress) (input.Handler, error) {
	p, err := script.LoadFile(cfg.InputHandler)
	if err != nil {
		return nil, err
	}
	if p.Err() != nil {
		return nil, p.Err()
	}
	if !p.HasFunction(script.InputHandler) {
		return nil, fmt.Errorf("%s: no %s function", cfg.InputHandler, script.InputHandler)
	}
	env := &script.Env{
		Sender:      client.NewSender(),
		FuzzWorkers: cfg.FuzzWorkers,
		Vars:        cfg.EnvVars,
		Logger:      logger,
		Progress:    progress,
	}
	return func(lines []string) ([]any, error) {
		return p.ParseInput(ctx, env, lines)
	}, nil
}

func printSummary(w io.Writer, sum core.Summary, gov *ratelimit.Governor) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d  %s %d  %s %d  %s %d  %s %s\n",
		ui.StatLabelStyle.Render("units"), sum.Units,
		ui.StatLabelStyle.Render("findings"), sum.Findings,
		ui.StatLabelStyle.Render("errors"), sum.Errors,
		ui.StatLabelStyle.Render("rate-limit sleeps"), gov.Trips(),
		ui.StatLabelStyle.Render("duration"), sum.Duration.Round(time.Millisecond))
	if sum.Interrupted {
		fmt.Fprintln(w, ui.WarnStyle.Render("scan interrupted before every target was dispatched"))
	}
}
