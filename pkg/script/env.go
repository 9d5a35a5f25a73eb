package script

import (
	"context"
	"log/slog"
	"time"

	"github.com/lotus-scan/lotus/pkg/finding"
	"github.com/lotus-scan/lotus/pkg/headless"
	"github.com/lotus-scan/lotus/pkg/httpclient"
	"github.com/lotus-scan/lotus/pkg/oob"
	"github.com/lotus-scan/lotus/pkg/target"
	"github.com/lotus-scan/lotus/pkg/ui"
	"github.com/lotus-scan/lotus/pkg/xss"
)

// OOBClient is the out-of-band interaction service behind the OOB
// capability.
type OOBClient interface {
	URL() string
	Poll(ctx context.Context) ([]oob.Interaction, error)
	GetInteractions() []oob.Interaction
}

// BrowserClient is the headless browser behind the Browser capability.
type BrowserClient interface {
	Open(ctx context.Context, url string, wait time.Duration) (*headless.PageResult, error)
}

// Env is everything one scan unit binds into its script. Target, Sender
// and Sink belong to the unit; the rest is shared by the scan.
type Env struct {
	Target target.Target
	Sender *httpclient.Sender
	Sink   *finding.Sink

	// FuzzWorkers is the default run_scan concurrency.
	FuzzWorkers int

	// Vars is bound as ENV.
	Vars any

	Logger   *slog.Logger
	Progress *ui.Progress
	XSS      *xss.Generator

	// Optional integrations; nil leaves the global undefined.
	OOB     OOBClient
	Browser BrowserClient

	// Paused reports the scan-wide pause flag. Threader.is_stop observes it.
	Paused func() bool
}

func (e *Env) withDefaults() *Env {
	out := *e
	if out.Sender == nil {
		out.Sender = httpclient.New(httpclient.DefaultConfig()).NewSender()
	}
	if out.Sink == nil {
		out.Sink = finding.NewSink()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.XSS == nil {
		out.XSS = xss.New(xss.DefaultConfig())
	}
	if out.FuzzWorkers <= 0 {
		out.FuzzWorkers = 15
	}
	if out.Paused == nil {
		out.Paused = func() bool { return false }
	}
	return &out
}
