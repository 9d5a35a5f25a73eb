package cli

import (
	"io"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

func TestSignalContext_FirstSignalPauses(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	paused := make(chan struct{})
	ctx, cancel := signalContextWithNotifier(func() { close(paused) }, sigChan, nil, io.Discard)
	defer cancel()

	sigChan <- os.Interrupt

	select {
	case <-paused:
	case <-time.After(2 * time.Second):
		t.Fatal("pause was not called after first signal")
	}
	if ctx.Err() != nil {
		t.Fatal("context cancelled after first signal")
	}
}

func TestSignalContext_SecondSignalCancels(t *testing.T) {
	sigChan := make(chan os.Signal, 2)
	ctx, cancel := signalContextWithNotifier(nil, sigChan, nil, io.Discard)
	defer cancel()

	sigChan <- os.Interrupt
	sigChan <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after second signal")
	}
}

func TestSignalContext_ThirdSignalExits(t *testing.T) {
	sigChan := make(chan os.Signal, 3)
	var exitCode atomic.Int32
	exitCode.Store(-1)
	exited := make(chan struct{})

	_, cancel := signalContextWithNotifier(nil, sigChan, func(code int) {
		exitCode.Store(int32(code))
		close(exited)
	}, io.Discard)
	defer cancel()

	sigChan <- os.Interrupt
	sigChan <- os.Interrupt
	sigChan <- os.Interrupt

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("exit was not called after third signal")
	}
	if got := exitCode.Load(); got != 1 {
		t.Errorf("exit code = %d, want 1", got)
	}
}

func TestSignalContext_ManualCancel(t *testing.T) {
	sigChan := make(chan os.Signal, 1)
	var paused atomic.Bool
	ctx, cancel := signalContextWithNotifier(func() { paused.Store(true) }, sigChan, nil, io.Discard)

	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context was not cancelled after manual cancel")
	}
	if paused.Load() {
		t.Error("pause called without a signal")
	}
}
