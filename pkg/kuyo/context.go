// context.go propagates a Capturer and request-scoped extra data through context.Context.

package kuyo

import "context"

// Context key types (unexported to avoid collisions)
type capturerKey struct{}
type extraKey struct{}

// WithCapturer returns a context carrying c, so code deep in a request can
// capture without reaching for the process-wide hub.
func WithCapturer(ctx context.Context, c Capturer) context.Context {
	return context.WithValue(ctx, capturerKey{}, c)
}

// CapturerFromContext extracts the Capturer attached by WithCapturer.
func CapturerFromContext(ctx context.Context) (Capturer, bool) {
	c, ok := ctx.Value(capturerKey{}).(Capturer)
	return c, ok && c != nil
}

// WithExtra returns a context whose extra data is merged into events
// captured by adapters that read it. Keys in extra win over keys already
// on ctx.
func WithExtra(ctx context.Context, extra map[string]any) context.Context {
	merged := copyMap(ExtraFromContext(ctx))
	if merged == nil {
		merged = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		merged[k] = v
	}
	return context.WithValue(ctx, extraKey{}, merged)
}

// ExtraFromContext returns the extra data attached to ctx, or nil.
func ExtraFromContext(ctx context.Context) map[string]any {
	m, _ := ctx.Value(extraKey{}).(map[string]any)
	return m
}
