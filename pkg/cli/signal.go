// Package cli holds process-level helpers shared by the commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context for a scan that drains on interrupt.
//
// The first SIGINT/SIGTERM calls onPause, which should stop new work from
// being dispatched. The second cancels the context, aborting sleeps and
// in-flight requests. A third exits the process with status 1.
//
// Usage:
//
//	ctx, cancel := cli.SignalContext(scanner.Pause)
//	defer cancel()
func SignalContext(onPause func()) (context.Context, context.CancelFunc) {
	return signalContextWithNotifier(onPause, nil, nil, os.Stderr)
}

// signalContextWithNotifier is the internal implementation for testing.
// sigChan, if non-nil, overrides the real signal channel.
// exitFn, if non-nil, overrides os.Exit for testing.
func signalContextWithNotifier(
	onPause func(),
	sigChan chan os.Signal,
	exitFn func(int),
	w io.Writer,
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	ownChannel := sigChan == nil
	if ownChannel {
		sigChan = make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	}

	if exitFn == nil {
		exitFn = os.Exit
	}

	go func() {
		defer func() {
			if ownChannel {
				signal.Stop(sigChan)
			}
		}()

		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Interrupt received, waiting for running scripts (Ctrl+C again to abort)...")
		if onPause != nil {
			onPause()
		}

		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		fmt.Fprintln(w, "Aborting in-flight requests...")
		cancel()

		<-sigChan
		exitFn(1)
	}()

	return ctx, cancel
}
