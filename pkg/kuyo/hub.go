// hub.go provides the swappable process-wide engine handle and the package-level API.

package kuyo

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
)

// AdapterFactory builds the adapter Init registers on a new engine.
type AdapterFactory func(c Capturer) Adapter

// InitOption configures Hub.Init.
type InitOption func(*initOptions)

type initOptions struct {
	adapter AdapterFactory
	engine  []Option
}

// WithAdapter selects the adapter registered by Init.
func WithAdapter(f AdapterFactory) InitOption {
	return func(o *initOptions) {
		o.adapter = f
	}
}

// WithEngineOptions passes options through to New.
func WithEngineOptions(opts ...Option) InitOption {
	return func(o *initOptions) {
		o.engine = append(o.engine, opts...)
	}
}

// Hub holds at most one engine. Init and Destroy are serialized; capture
// calls on an empty hub log a warning and do nothing.
type Hub struct {
	mu     sync.RWMutex
	engine *Engine
	logger *log.Logger
}

// NewHub creates an empty hub. A nil logger writes to stderr.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Hub{logger: logger}
}

// DefaultHub backs the package-level functions.
var DefaultHub = NewHub(nil)

// Init creates an engine for cfg, registers the configured adapter and makes
// the engine current. A previously current engine is destroyed first.
//
// No adapter is registered unless WithAdapter is passed: without one no
// runtime hooks are installed and events report PlatformUnknown.
func (h *Hub) Init(cfg Config, opts ...InitOption) *Engine {
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.engine != nil {
		h.engine.Destroy()
		h.engine = nil
	}

	e := New(cfg, o.engine...)
	if o.adapter != nil {
		e.UseAdapter(o.adapter(e))
	} else {
		h.logger.Printf("[Kuyo] No adapter registered; events report platform %q. Pass WithAdapter to Init.", PlatformUnknown)
	}
	h.engine = e
	return e
}

// Engine returns the current engine, or nil before Init / after Destroy.
func (h *Hub) Engine() *Engine {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.engine
}

// Destroy destroys and forgets the current engine.
func (h *Hub) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.engine != nil {
		h.engine.Destroy()
		h.engine = nil
	}
}

// CaptureException forwards to the current engine.
func (h *Hub) CaptureException(err error, extra map[string]any) {
	e := h.current()
	if e == nil {
		return
	}
	e.CaptureException(err, extra)
}

// CaptureMessage forwards to the current engine.
func (h *Hub) CaptureMessage(message string, level Level, extra map[string]any) {
	e := h.current()
	if e == nil {
		return
	}
	e.CaptureMessage(message, level, extra)
}

// Flush flushes the current engine, if any.
func (h *Hub) Flush(ctx context.Context) error {
	e := h.Engine()
	if e == nil {
		return nil
	}
	return e.Flush(ctx)
}

// WithKuyo wraps the application root handler with the active adapter's
// capture boundary. Without a framework adapter app is returned unchanged.
func (h *Hub) WithKuyo(app http.Handler) http.Handler {
	w := h.routeWrapper()
	if w == nil {
		return app
	}
	return w.WrapApp(app)
}

// WithKuyoPage wraps a page handler.
func (h *Hub) WithKuyoPage(name string, page http.Handler) http.Handler {
	w := h.routeWrapper()
	if w == nil {
		return page
	}
	return w.WrapRoute(name, page)
}

// WithKuyoAPI wraps an error-returning API handler.
func (h *Hub) WithKuyoAPI(handler APIHandler) APIHandler {
	w := h.routeWrapper()
	if w == nil {
		return handler
	}
	return w.WrapAPIRoute(handler)
}

func (h *Hub) current() *Engine {
	e := h.Engine()
	if e == nil {
		h.logger.Printf("[Kuyo] SDK not initialized. Call Init() first.")
	}
	return e
}

func (h *Hub) routeWrapper() RouteWrapper {
	e := h.current()
	if e == nil {
		return nil
	}
	w, ok := e.Adapter().(RouteWrapper)
	if !ok {
		h.logger.Printf("[Kuyo] Framework adapter not found. Register one with WithAdapter.")
		return nil
	}
	return w
}

// Init initializes the default hub.
func Init(cfg Config, opts ...InitOption) *Engine {
	return DefaultHub.Init(cfg, opts...)
}

// Current returns the default hub's engine, or nil.
func Current() *Engine {
	return DefaultHub.Engine()
}

// CaptureException captures err on the default hub.
func CaptureException(err error, extra map[string]any) {
	DefaultHub.CaptureException(err, extra)
}

// CaptureMessage captures message on the default hub.
func CaptureMessage(message string, level Level, extra map[string]any) {
	DefaultHub.CaptureMessage(message, level, extra)
}

// Flush flushes the default hub.
func Flush(ctx context.Context) error {
	return DefaultHub.Flush(ctx)
}

// Destroy destroys the default hub's engine.
func Destroy() {
	DefaultHub.Destroy()
}

// WithKuyo wraps app using the default hub's adapter.
func WithKuyo(app http.Handler) http.Handler {
	return DefaultHub.WithKuyo(app)
}

// WithKuyoPage wraps a page handler using the default hub's adapter.
func WithKuyoPage(name string, page http.Handler) http.Handler {
	return DefaultHub.WithKuyoPage(name, page)
}

// WithKuyoAPI wraps an API handler using the default hub's adapter.
func WithKuyoAPI(handler APIHandler) APIHandler {
	return DefaultHub.WithKuyoAPI(handler)
}
