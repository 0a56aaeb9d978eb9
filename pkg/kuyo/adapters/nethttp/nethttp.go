// Package nethttp is the framework adapter for net/http and gorilla/mux.
// Its wrappers capture failures at the application, page and API route
// boundaries and then re-raise them unchanged, so the server's own panic
// handling and error responses still apply.
package nethttp

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/internal/runtimeinfo"
)

// Name is the platform name stamped on events.
const Name = "nethttp"

// Option configures the adapter.
type Option func(*Adapter)

// WithHeaders copies the named request headers into the extra data of
// captured events. Header values pass through the engine scrubber when one
// is configured.
func WithHeaders(names ...string) Option {
	return func(a *Adapter) {
		a.headers = append(a.headers, names...)
	}
}

// Factory returns an AdapterFactory for kuyo.WithAdapter.
func Factory(opts ...Option) kuyo.AdapterFactory {
	return func(c kuyo.Capturer) kuyo.Adapter {
		return New(c, opts...)
	}
}

// Adapter is the net/http framework adapter.
type Adapter struct {
	c       kuyo.Capturer
	headers []string
	wrapped atomic.Bool
	routes  atomic.Int64
}

var (
	_ kuyo.Adapter      = (*Adapter)(nil)
	_ kuyo.RouteWrapper = (*Adapter)(nil)
)

// New creates an adapter reporting to c.
func New(c kuyo.Capturer, opts ...Option) *Adapter {
	a := &Adapter{c: c}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Name() string { return Name }

// Setup installs nothing: HTTP failures are captured by the wrappers.
func (a *Adapter) Setup() {
	a.logf("Running in server environment")
}

// Context describes the runtime, the build and the wrapping state.
func (a *Adapter) Context() map[string]any {
	ctx := runtimeinfo.Detect()
	if build := runtimeinfo.Build(); build != nil {
		ctx["build"] = build
	}
	ctx["http"] = map[string]any{
		"appWrapped":    a.wrapped.Load(),
		"wrappedRoutes": a.routes.Load(),
	}
	return ctx
}

func (a *Adapter) CaptureException(err error, extra map[string]any) {
	a.c.CaptureException(err, kuyo.TagExtra(extra, Name))
}

func (a *Adapter) CaptureMessage(message string, level kuyo.Level, extra map[string]any) {
	a.c.CaptureMessage(message, level, kuyo.TagExtra(extra, Name))
}

// WrapApp installs a capture boundary around the root handler. Only the
// first call wraps; later calls and already wrapped handlers are returned
// unchanged.
func (a *Adapter) WrapApp(app http.Handler) http.Handler {
	if h, ok := app.(*Handler); ok && h.a == a {
		return app
	}
	if a.wrapped.Swap(true) {
		a.logf("App already wrapped, skipping")
		return app
	}
	a.logf("Wrapping app with capture boundary")
	return &Handler{a: a, inner: app, name: handlerName(app), kind: "app"}
}

// WrapRoute wraps a page handler. An empty name falls back to the
// handler's own name.
func (a *Adapter) WrapRoute(name string, h http.Handler) http.Handler {
	if name == "" {
		name = handlerName(h)
	}
	a.routes.Add(1)
	return &Handler{a: a, inner: h, name: name, kind: "page"}
}

// WrapAPIRoute wraps an error-returning handler. A returned error is
// captured and returned unchanged; a panic is captured and re-raised.
func (a *Adapter) WrapAPIRoute(h kuyo.APIHandler) kuyo.APIHandler {
	a.routes.Add(1)
	return &APIHandler{a: a, inner: h, name: handlerName(h)}
}

// WrapRouter wraps every route handler registered on r in place. Route
// names, path templates and matchers are preserved. Routes that are
// already wrapped by a are skipped.
func (a *Adapter) WrapRouter(r *mux.Router) error {
	return r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		h := route.GetHandler()
		if h == nil {
			return nil
		}
		if wh, ok := h.(*Handler); ok && wh.a == a {
			return nil
		}
		name := route.GetName()
		if name == "" {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name = tpl
			}
		}
		route.Handler(a.WrapRoute(name, h))
		return nil
	})
}

// Middleware is a mux.MiddlewareFunc that wraps each matched route.
//
//	router.Use(adapter.Middleware)
func (a *Adapter) Middleware(next http.Handler) http.Handler {
	return &Handler{a: a, inner: next, name: handlerName(next), kind: "middleware"}
}

func (a *Adapter) logf(format string, args ...any) {
	if !a.c.Config().Debug {
		return
	}
	a.c.Logger().Printf("[Kuyo:nethttp] "+format, args...)
}
