// runner.go wraps agents.Runner; it is the capture point for run failures.

package agentssdk

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/strongdm/ai-agents-sdk/pkg/agents"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
)

const defaultHistorySize = 10

// ErrNoRunner is returned by a Runner instrumented without an agents.Runner.
var ErrNoRunner = errors.New("agentssdk: no runner to instrument")

// RunnerOption configures an instrumented Runner.
type RunnerOption func(*Runner)

// WithEnrichmentStore sets the store correlating hook data with failures.
func WithEnrichmentStore(store EnrichmentStore) RunnerOption {
	return func(r *Runner) {
		if store != nil {
			r.enrichments = store
		}
	}
}

// WithHistorySize sets how many recent LLM and tool operations are attached
// to a captured event (default: 10, 0 disables history).
func WithHistorySize(n int) RunnerOption {
	return func(r *Runner) {
		if n >= 0 {
			r.historySize = n
		}
	}
}

type runFunc func(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error)

type runOnceFunc func(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error)

type runStreamFunc func(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error)

// Runner is an agents.Runner whose failures are captured. Errors are
// returned unchanged and panics are re-raised after capture.
type Runner struct {
	a           *Adapter
	inner       *agents.Runner
	enrichments EnrichmentStore
	historySize int

	run       runFunc
	runOnce   runOnceFunc
	runStream runStreamFunc
}

// Run executes the agent with the given input and session.
func (r *Runner) Run(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (agents.RunResult, error) {
	if r.run == nil {
		return agents.RunResult{}, ErrNoRunner
	}
	runID, ctx := r.begin(ctx)
	defer r.end(runID)

	contextID := extractContextID(ctx, session)
	defer r.capturePanic(runID, contextID, "run")

	result, err := r.run(ctx, agent, input, session, r.wrapRunConfig(cfg))
	if err != nil {
		r.captureError(runID, contextID, "run", err)
	}
	return result, err
}

// RunOnce executes a single turn of the agent.
func (r *Runner) RunOnce(ctx context.Context, agent *agents.Agent, input string, cfg *agents.RunConfig) (agents.RunResult, error) {
	if r.runOnce == nil {
		return agents.RunResult{}, ErrNoRunner
	}
	runID, ctx := r.begin(ctx)
	defer r.end(runID)

	contextID, _ := ContextIDFromContext(ctx)
	defer r.capturePanic(runID, contextID, "run_once")

	result, err := r.runOnce(ctx, agent, input, r.wrapRunConfig(cfg))
	if err != nil {
		r.captureError(runID, contextID, "run_once", err)
	}
	return result, err
}

// RunStream starts a streaming run. Only failures to start the stream are
// captured; errors during streaming belong to the caller. Hooks keep
// enriching the run while it streams, so its enrichment is released when
// ctx is done rather than when RunStream returns.
func (r *Runner) RunStream(ctx context.Context, agent *agents.Agent, input string, session agents.Session, cfg *agents.RunConfig) (*agents.StreamingRun, error) {
	if r.runStream == nil {
		return nil, ErrNoRunner
	}
	runID, ctx := r.begin(ctx)
	defer r.a.active.Add(-1)

	contextID := extractContextID(ctx, session)
	started := false
	defer func() {
		if !started {
			r.enrichments.Delete(runID)
		}
	}()
	defer r.capturePanic(runID, contextID, "run_stream")

	stream, err := r.runStream(ctx, agent, input, session, r.wrapRunConfig(cfg))
	if err != nil {
		r.captureError(runID, contextID, "run_stream", err)
		return stream, err
	}
	started = true
	context.AfterFunc(ctx, func() { r.enrichments.Delete(runID) })
	return stream, nil
}

// Inner returns the underlying Runner.
func (r *Runner) Inner() *agents.Runner {
	return r.inner
}

func (r *Runner) begin(ctx context.Context) (string, context.Context) {
	runID := uuid.NewString()
	r.a.active.Add(1)
	r.a.runs.Add(1)
	return runID, WithRunID(ctx, runID)
}

func (r *Runner) end(runID string) {
	r.enrichments.Delete(runID)
	r.a.active.Add(-1)
}

// wrapRunConfig clones cfg and wraps its hooks for enrichment capture.
func (r *Runner) wrapRunConfig(cfg *agents.RunConfig) *agents.RunConfig {
	var cloned agents.RunConfig
	if cfg != nil {
		cloned = *cfg
	}
	cloned.Hooks = NewHookAdapter(r.enrichments, cloned.Hooks, r.historySize)
	return &cloned
}

func (r *Runner) captureError(runID string, contextID uint64, mode string, err error) {
	enrichment, _ := r.enrichments.Get(runID)
	extra := buildExtra(enrichment, contextID, mode)
	extra["errorType"] = classifyError(err)
	r.a.CaptureException(err, extra)
}

// capturePanic recovers a panic, captures it and panics again.
func (r *Runner) capturePanic(runID string, contextID uint64, mode string) {
	rec := recover()
	if rec == nil {
		return
	}
	enrichment, _ := r.enrichments.Get(runID)
	extra := buildExtra(enrichment, contextID, mode)
	extra["errorType"] = "panic"
	r.a.CaptureException(kuyo.NewPanicError(rec), extra)
	panic(rec)
}

// extractContextID asks the session first and falls back to the context.
func extractContextID(ctx context.Context, session any) uint64 {
	if provider, ok := session.(ContextIDProvider); ok {
		if id, err := provider.ContextID(ctx); err == nil {
			return id
		}
	}
	if id, ok := ContextIDFromContext(ctx); ok {
		return id
	}
	return 0
}
