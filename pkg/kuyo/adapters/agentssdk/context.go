package agentssdk

import "context"

type runIDKey struct{}
type contextIDKey struct{}

// WithRunID returns a context carrying the run ID that correlates hook
// enrichment with a runner-boundary failure.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext extracts a non-empty run ID.
func RunIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey{}).(string)
	return id, ok && id != ""
}

// WithContextID attaches a cxdb context ID so captured events can link to
// the conversation.
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextID)
}

// ContextIDFromContext extracts the cxdb context ID.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(contextIDKey{}).(uint64)
	return id, ok
}

// ContextIDProvider is implemented by sessions that know their cxdb
// context, such as the agents SDK CXDBSession.
type ContextIDProvider interface {
	ContextID(ctx context.Context) (uint64, error)
}
