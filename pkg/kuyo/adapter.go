// adapter.go defines the platform adapter capability and its optional extensions.

package kuyo

import (
	"context"
	"log"
	"net/http"
)

// Capturer is the part of the engine that adapters report into.
// *Engine implements it.
type Capturer interface {
	CaptureException(err error, extra map[string]any)
	CaptureMessage(message string, level Level, extra map[string]any)
	Config() Config
	Flush(ctx context.Context) error
	Logger() *log.Logger
}

// Adapter binds the engine to one runtime or framework surface.
type Adapter interface {
	// Name is the stable platform name stamped on events.
	Name() string

	// Setup installs the runtime hooks that turn uncaught failures into
	// captures.
	Setup()

	// Context returns a best-effort snapshot of environment facts. It must
	// not panic and returns an empty map when nothing is known.
	Context() map[string]any

	// CaptureException and CaptureMessage tag the event with the adapter
	// name before delegating to the engine.
	CaptureException(err error, extra map[string]any)
	CaptureMessage(message string, level Level, extra map[string]any)
}

// Teardowner is implemented by adapters whose Setup installs hooks.
// Teardown reverses exactly what Setup installed and is safe to call more
// than once or without a prior Setup.
type Teardowner interface {
	Teardown()
}

// APIHandler handles a request and reports failure as an error, the way
// API routes do in most Go frameworks.
type APIHandler interface {
	ServeAPI(w http.ResponseWriter, r *http.Request) error
}

// APIHandlerFunc adapts a function to APIHandler.
type APIHandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f APIHandlerFunc) ServeAPI(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// Named is implemented by handlers that carry a display name.
type Named interface {
	Name() string
}

// RouteWrapper is the extension implemented by framework adapters.
// Every wrapper captures a failure and then re-raises it unchanged.
type RouteWrapper interface {
	// WrapApp installs a capture boundary around the root handler.
	// Wrapping twice does not install a second boundary.
	WrapApp(app http.Handler) http.Handler

	// WrapRoute wraps a single page or route handler.
	WrapRoute(name string, h http.Handler) http.Handler

	// WrapAPIRoute wraps an error-returning handler.
	WrapAPIRoute(h APIHandler) APIHandler
}

// TagExtra returns a copy of extra with the adapter key set to name.
func TagExtra(extra map[string]any, name string) map[string]any {
	out := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		out[k] = v
	}
	out["adapter"] = name
	return out
}
