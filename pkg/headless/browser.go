// Package headless drives a shared headless Chrome used to confirm that a
// reflected payload actually executes.
package headless

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Config holds headless browser configuration
type Config struct {
	ChromiumPath string
	Proxy        string
	Headers      map[string]string
	PageTimeout  time.Duration
	// Wait is how long a page may run scripts after load.
	Wait      time.Duration
	NoSandbox bool
	UserAgent string
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		PageTimeout: 30 * time.Second,
		Wait:        2 * time.Second,
		NoSandbox:   true,
	}
}

// Dialog is one JavaScript dialog the page opened.
type Dialog struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PageResult holds the result of visiting a page with headless browser
type PageResult struct {
	URL     string   `json:"url"`
	HTML    string   `json:"html"`
	Title   string   `json:"title"`
	Dialogs []Dialog `json:"alerts"`
}

// Browser launches Chrome on first use and opens one tab per Open call.
type Browser struct {
	cfg Config

	once        sync.Once
	startErr    error
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewBrowser creates a Browser. Chrome is not started until Open.
func NewBrowser(cfg Config) *Browser {
	d := DefaultConfig()
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = d.PageTimeout
	}
	if cfg.Wait < 0 {
		cfg.Wait = 0
	}
	return &Browser{cfg: cfg}
}

func (b *Browser) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.IgnoreCertErrors,
	)
	if b.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.cfg.ChromiumPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ChromiumPath))
	}
	if b.cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(b.cfg.Proxy))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	return opts
}

func (b *Browser) start() error {
	b.once.Do(func() {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), b.allocatorOptions()...)
		ctx, cancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(ctx); err != nil {
			cancel()
			allocCancel()
			b.startErr = fmt.Errorf("%w: %v", ErrLaunch, err)
			return
		}
		b.allocCancel, b.ctx, b.cancel = allocCancel, ctx, cancel
	})
	return b.startErr
}

// Open loads targetURL in a new tab, accepts every dialog it raises and
// returns the rendered document. wait overrides Config.Wait when > 0.
func (b *Browser) Open(ctx context.Context, targetURL string, wait time.Duration) (*PageResult, error) {
	if err := b.start(); err != nil {
		return nil, err
	}
	if wait <= 0 {
		wait = b.cfg.Wait
	}

	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.cfg.PageTimeout+wait)
	defer cancelTimeout()

	// Closing the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	result := &PageResult{URL: targetURL}
	var mu sync.Mutex

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		mu.Lock()
		result.Dialogs = append(result.Dialogs, Dialog{Type: string(e.Type), Message: e.Message})
		mu.Unlock()
		go func() {
			_ = chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true))
		}()
	})

	var html, title string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(b.cfg.Headers) == 0 {
				return nil
			}
			headers := make(network.Headers, len(b.cfg.Headers))
			for k, v := range b.cfg.Headers {
				headers[k] = v
			}
			return network.SetExtraHTTPHeaders(headers).Do(ctx)
		}),
		chromedp.Navigate(targetURL),
		chromedp.Sleep(wait),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	mu.Lock()
	defer mu.Unlock()
	result.HTML = html
	result.Title = title
	if err != nil {
		return result, fmt.Errorf("headless: open %s: %w", targetURL, err)
	}
	return result, nil
}

// Close shuts Chrome down, killing it if a graceful exit takes too long.
func (b *Browser) Close() error {
	if b.cancel == nil {
		return nil
	}

	var proc *os.Process
	if c := chromedp.FromContext(b.ctx); c != nil && c.Browser != nil {
		proc = c.Browser.Process()
	}

	done := make(chan struct{})
	go func() {
		b.cancel()
		b.allocCancel()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if proc != nil {
			_ = proc.Kill()
		}
	}
	return nil
}
