// Package slogcapture captures error records logged through the process
// default slog logger. Setup chains a capturing handler in front of the
// previous default handler, so existing log output is unchanged; Teardown
// restores the previous logger, log writer and log flags.
package slogcapture

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/internal/runtimeinfo"
)

// Name is the platform name stamped on events.
const Name = "slog"

// Option configures the adapter.
type Option func(*Adapter)

// WithLevel sets the minimum record level that is captured
// (default: slog.LevelError).
func WithLevel(level slog.Leveler) Option {
	return func(a *Adapter) {
		if level != nil {
			a.threshold = level
		}
	}
}

// Factory returns an AdapterFactory for kuyo.WithAdapter.
func Factory(opts ...Option) kuyo.AdapterFactory {
	return func(c kuyo.Capturer) kuyo.Adapter {
		return New(c, opts...)
	}
}

// Adapter installs a capturing slog default handler.
type Adapter struct {
	c         kuyo.Capturer
	threshold slog.Leveler

	mu         sync.Mutex
	installed  atomic.Bool
	prevLogger *slog.Logger
	prevWriter io.Writer
	prevFlags  int
}

var (
	_ kuyo.Adapter    = (*Adapter)(nil)
	_ kuyo.Teardowner = (*Adapter)(nil)
)

// New creates an adapter reporting to c.
func New(c kuyo.Capturer, opts ...Option) *Adapter {
	a := &Adapter{c: c, threshold: slog.LevelError}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

// Setup makes a capturing logger the slog default. Calling it again while
// installed does nothing.
func (a *Adapter) Setup() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installed.Load() {
		return
	}

	a.prevLogger = slog.Default()
	a.prevWriter = log.Writer()
	a.prevFlags = log.Flags()

	next := a.prevLogger.Handler()
	builtin := isDefaultHandler(next)
	if builtin {
		// slog's built-in handler writes through the log package, which
		// SetDefault is about to point back at us.
		logger := log.New(a.prevWriter, log.Prefix(), a.prevFlags)
		next = newBuiltinHandler(logger, logLoggerLevel())
	}

	slog.SetDefault(slog.New(&handler{next: next, a: a}))
	if builtin {
		// Plain log output keeps its own writer and flags.
		log.SetOutput(a.prevWriter)
		log.SetFlags(a.prevFlags)
	}
	a.installed.Store(true)
	a.logf("Default slog handler installed")
}

// Teardown restores the logger, log writer and log flags saved by Setup.
func (a *Adapter) Teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.installed.Load() {
		return
	}
	a.installed.Store(false)

	slog.SetDefault(a.prevLogger)
	log.SetOutput(a.prevWriter)
	log.SetFlags(a.prevFlags)
	a.prevLogger, a.prevWriter = nil, nil
	a.logf("Default slog handler restored")
}

// Context describes the runtime and the capture threshold.
func (a *Adapter) Context() map[string]any {
	ctx := runtimeinfo.Detect()
	ctx["slog"] = map[string]any{"threshold": a.threshold.Level().String()}
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

// captureRecord turns a record into an event. A record carrying an error
// attribute becomes an exception event; anything else a message event.
func (a *Adapter) captureRecord(ctx context.Context, r slog.Record, attrs []slog.Attr) {
	extra := make(map[string]any, len(attrs)+r.NumAttrs()+2)
	for k, v := range kuyo.ExtraFromContext(ctx) {
		extra[k] = v
	}

	var recErr error
	collect := func(attr slog.Attr) bool {
		v := attr.Value.Resolve()
		if err, ok := v.Any().(error); ok && recErr == nil {
			recErr = err
			return true
		}
		extra[attr.Key] = v.Any()
		return true
	}
	for _, attr := range attrs {
		collect(attr)
	}
	r.Attrs(collect)
	extra["source"] = "slog"

	if recErr != nil {
		extra["logMessage"] = r.Message
		a.CaptureException(recErr, extra)
		return
	}
	a.CaptureMessage(r.Message, levelFor(r.Level), extra)
}

func (a *Adapter) logf(format string, args ...any) {
	if !a.c.Config().Debug {
		return
	}
	a.c.Logger().Printf("[Kuyo:slog] "+format, args...)
}

// levelFor maps slog levels onto event levels.
func levelFor(l slog.Level) kuyo.Level {
	switch {
	case l >= slog.LevelError:
		return kuyo.LevelError
	case l >= slog.LevelWarn:
		return kuyo.LevelWarning
	default:
		return kuyo.LevelInfo
	}
}

func isDefaultHandler(h slog.Handler) bool {
	return fmt.Sprintf("%T", h) == "*slog.defaultHandler"
}

// handler captures records at or above the threshold and passes every
// record on to next.
type handler struct {
	next  slog.Handler
	a     *Adapter
	attrs []slog.Attr
}

var _ slog.Handler = (*handler)(nil)

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.a.threshold.Level() || h.next.Enabled(ctx, level)
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.a.threshold.Level() && h.a.installed.Load() {
		h.a.captureRecord(ctx, r, h.attrs)
	}
	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{next: h.next.WithAttrs(attrs), a: h.a, attrs: merged}
}

func (h *handler) WithGroup(name string) slog.Handler {
	return &handler{next: h.next.WithGroup(name), a: h.a, attrs: h.attrs}
}
