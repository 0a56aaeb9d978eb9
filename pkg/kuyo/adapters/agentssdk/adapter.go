// Package agentssdk captures failures of github.com/strongdm/ai-agents-sdk
// runs. The instrumented Runner is the capture point; run hooks only
// collect enrichment (agent, tool, model, recent operations) that is
// attached to the captured event.
package agentssdk

import (
	"sync/atomic"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"

	"github.com/kuyo-dev/kuyo-go/pkg/kuyo"
	"github.com/kuyo-dev/kuyo-go/pkg/kuyo/internal/runtimeinfo"
)

// Name is the platform name stamped on events.
const Name = "agentssdk"

// Factory returns an AdapterFactory for kuyo.WithAdapter.
func Factory() kuyo.AdapterFactory {
	return func(c kuyo.Capturer) kuyo.Adapter {
		return New(c)
	}
}

// Adapter is the agent-runner adapter.
type Adapter struct {
	c      kuyo.Capturer
	active atomic.Int64
	runs   atomic.Int64
}

var _ kuyo.Adapter = (*Adapter)(nil)

// New creates an adapter reporting to c.
func New(c kuyo.Capturer) *Adapter {
	return &Adapter{c: c}
}

func (a *Adapter) Name() string { return Name }

// Setup installs nothing: runs are captured by instrumented runners.
func (a *Adapter) Setup() {
	a.logf("Ready to instrument agent runners")
}

// Context describes the runtime and run counters.
func (a *Adapter) Context() map[string]any {
	ctx := runtimeinfo.Detect()
	if build := runtimeinfo.Build(); build != nil {
		ctx["build"] = build
	}
	ctx["agents"] = map[string]any{
		"activeRuns": a.active.Load(),
		"totalRuns":  a.runs.Load(),
	}
	return ctx
}

func (a *Adapter) CaptureException(err error, extra map[string]any) {
	a.c.CaptureException(err, kuyo.TagExtra(extra, Name))
}

func (a *Adapter) CaptureMessage(message string, level kuyo.Level, extra map[string]any) {
	a.c.CaptureMessage(message, level, kuyo.TagExtra(extra, Name))
}

// Instrument wraps runner with error and panic capture. A nil runner
// yields a Runner whose calls return ErrNoRunner.
//
//	engine := kuyo.Init(cfg, kuyo.WithAdapter(agentssdk.Factory()))
//	adapter := engine.Adapter().(*agentssdk.Adapter)
//	runner := adapter.Instrument(agents.NewRunner(client))
//	result, err := runner.Run(ctx, agent, input, session, nil)
func (a *Adapter) Instrument(runner *agents.Runner, opts ...RunnerOption) *Runner {
	r := &Runner{
		a:           a,
		inner:       runner,
		enrichments: NewEnrichmentStore(),
		historySize: defaultHistorySize,
	}
	if runner != nil {
		r.run = runner.Run
		r.runOnce = runner.RunOnce
		r.runStream = runner.RunStream
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (a *Adapter) logf(format string, args ...any) {
	if !a.c.Config().Debug {
		return
	}
	a.c.Logger().Printf("[Kuyo:agentssdk] "+format, args...)
}
