// Package process captures process-level failures: panics that reach a
// guarded goroutine, errors returned from goroutines started with Go, and
// termination signals.
//
// Go has no global uncaught-panic hook, so capture boundaries are explicit:
//
//	func main() {
//	    engine := kuyo.Init(cfg, kuyo.WithAdapter(process.Factory()))
//	    adapter := engine.Adapter().(*process.Adapter)
//	    defer adapter.Guard()
//	    ...
//	}
package process

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/internal/runtimeinfo"
)

// Name is the platform name stamped on events.
const Name = "process"

// Option configures the adapter.
type Option func(*Adapter)

// WithSignals sets the signals that are captured before the process exits
// (default: SIGTERM and os.Interrupt).
func WithSignals(sigs ...os.Signal) Option {
	return func(a *Adapter) {
		a.signals = sigs
	}
}

// WithFlushTimeout bounds the flush performed before a guarded panic or a
// termination signal continues (default: 2s).
func WithFlushTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.flushTimeout = d
		}
	}
}

// WithoutReraise stops the watcher from re-delivering a caught signal.
// The process then keeps running after the signal is captured.
func WithoutReraise() Option {
	return func(a *Adapter) {
		a.reraise = false
	}
}

// Factory returns an AdapterFactory for kuyo.WithAdapter.
func Factory(opts ...Option) kuyo.AdapterFactory {
	return func(c kuyo.Capturer) kuyo.Adapter {
		return New(c, opts...)
	}
}

// Adapter is the process-hosted adapter.
type Adapter struct {
	c            kuyo.Capturer
	signals      []os.Signal
	flushTimeout time.Duration
	reraise      bool

	mu    sync.Mutex
	sigCh chan os.Signal
	stop  chan struct{}
	done  chan struct{}
}

var (
	_ kuyo.Adapter    = (*Adapter)(nil)
	_ kuyo.Teardowner = (*Adapter)(nil)
)

// New creates an adapter reporting to c.
func New(c kuyo.Capturer, opts ...Option) *Adapter {
	a := &Adapter{
		c:            c,
		signals:      []os.Signal{syscall.SIGTERM, os.Interrupt},
		flushTimeout: 2 * time.Second,
		reraise:      true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

// Setup starts the signal watcher. Calling it again while watching does
// nothing.
func (a *Adapter) Setup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sigCh != nil || len(a.signals) == 0 {
		return
	}

	a.sigCh = make(chan os.Signal, 1)
	a.stop = make(chan struct{})
	a.done = make(chan struct{})
	signal.Notify(a.sigCh, a.signals...)
	go a.watch(a.sigCh, a.stop, a.done)

	a.logf("Running in process environment, watching %v", a.signals)
}

// Teardown stops the signal watcher.
func (a *Adapter) Teardown() {
	a.mu.Lock()
	sigCh, stop, done := a.sigCh, a.stop, a.done
	a.sigCh, a.stop, a.done = nil, nil, nil
	a.mu.Unlock()

	if sigCh == nil {
		return
	}
	signal.Stop(sigCh)
	close(stop)
	<-done
	a.logf("Process adapter torn down")
}

func (a *Adapter) watch(sigCh chan os.Signal, stop, done chan struct{}) {
	defer close(done)
	select {
	case sig := <-sigCh:
		a.handleSignal(sigCh, sig)
	case <-stop:
	}
}

func (a *Adapter) handleSignal(sigCh chan os.Signal, sig os.Signal) {
	a.CaptureMessage("Process received "+sig.String(), kuyo.LevelWarning, map[string]any{
		"source": "signal",
		"signal": sig.String(),
	})
	a.flush()

	signal.Stop(sigCh)
	a.mu.Lock()
	if a.sigCh == sigCh {
		a.sigCh, a.stop, a.done = nil, nil, nil
	}
	a.mu.Unlock()

	if !a.reraise {
		return
	}
	if p, err := os.FindProcess(os.Getpid()); err == nil {
		_ = p.Signal(sig)
	}
}

// Guard captures a panic in the calling goroutine, flushes, and panics
// again with the same value. It must be deferred directly:
//
//	defer adapter.Guard()
func (a *Adapter) Guard() {
	r := recover()
	if r == nil {
		return
	}
	a.CaptureException(kuyo.NewPanicError(r), map[string]any{
		"source": "panic",
		"fatal":  true,
	})
	a.flush()
	panic(r)
}

// Go runs fn on a new goroutine. An error returned by fn is captured;
// a panic is captured and re-raised, which terminates the process.
func (a *Adapter) Go(fn func() error) {
	go func() {
		defer a.Guard()
		if err := fn(); err != nil {
			a.CaptureException(err, map[string]any{"source": "goroutine"})
		}
	}()
}

// Context describes the runtime and the main module build.
func (a *Adapter) Context() map[string]any {
	ctx := runtimeinfo.Detect()
	if build := runtimeinfo.Build(); build != nil {
		ctx["build"] = build
	}
	return ctx
}

func (a *Adapter) CaptureException(err error, extra map[string]any) {
	a.c.CaptureException(err, kuyo.TagExtra(extra, Name))
}

func (a *Adapter) CaptureMessage(message string, level kuyo.Level, extra map[string]any) {
	a.c.CaptureMessage(message, level, kuyo.TagExtra(extra, Name))
}

func (a *Adapter) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), a.flushTimeout)
	defer cancel()
	if err := a.c.Flush(ctx); err != nil {
		a.logf("Flush failed: %v", err)
	}
}

func (a *Adapter) logf(format string, args ...any) {
	if !a.c.Config().Debug {
		return
	}
	a.c.Logger().Printf("[Kuyo:process] "+format, args...)
}
