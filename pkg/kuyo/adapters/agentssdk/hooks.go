// hooks.go implements agents.RunHooks to record enrichment for the run in
// progress. Failures are detected by Runner, never here.

package agentssdk

import (
	"context"
	"time"

	"github.com/strongdm/ai-agents-sdk/pkg/agents"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

// HookAdapter records enrichment and delegates to inner hooks.
type HookAdapter struct {
	store       EnrichmentStore
	inner       agents.RunHooks
	historySize int
}

// NewHookAdapter wraps inner (which may be nil). Only errors from inner
// hooks are returned.
func NewHookAdapter(store EnrichmentStore, inner agents.RunHooks, historySize int) agents.RunHooks {
	return &HookAdapter{store: store, inner: inner, historySize: historySize}
}

func (h *HookAdapter) OnAgentStart(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent) error {
	if agent != nil {
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = agent.Name()
		})
	}
	if h.inner != nil {
		return h.inner.OnAgentStart(ctx, runCtx, agent)
	}
	return nil
}

func (h *HookAdapter) OnAgentEnd(ctx context.Context, runCtx *agents.AgentHookContext, agent *agents.Agent, result agents.RunResult) error {
	if h.inner != nil {
		return h.inner.OnAgentEnd(ctx, runCtx, agent, result)
	}
	return nil
}

func (h *HookAdapter) OnHandoff(ctx context.Context, runCtx *agents.RunContext, from *agents.Agent, to *agents.Agent) error {
	if to != nil {
		h.update(ctx, func(e *Enrichment) {
			e.AgentName = to.Name()
			e.Operation = "handoff"
			e.OperationID = ""
		})
	}
	if h.inner != nil {
		return h.inner.OnHandoff(ctx, runCtx, from, to)
	}
	return nil
}

func (h *HookAdapter) OnToolStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, call llmsdk.ToolCall) error {
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = "tool"
		e.ToolName = tool.Name
		e.OperationID = call.ID
		e.appendHistory(OperationRecord{
			Kind:      "tool",
			Timestamp: time.Now(),
			AgentName: e.AgentName,
			Tool:      newToolOperation(tool.Name, call),
		}, h.historySize)
	})
	if h.inner != nil {
		return h.inner.OnToolStart(ctx, runCtx, agent, tool, call)
	}
	return nil
}

func (h *HookAdapter) OnToolEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, tool agents.Tool, output string) error {
	h.update(ctx, func(e *Enrichment) {
		e.updateLast("tool", func(rec *OperationRecord) {
			rec.Duration = time.Since(rec.Timestamp).Milliseconds()
			if rec.Tool != nil {
				rec.Tool.OutputSize = len(output)
			}
		})
	})
	if h.inner != nil {
		return h.inner.OnToolEnd(ctx, runCtx, agent, tool, output)
	}
	return nil
}

func (h *HookAdapter) OnLLMStart(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, req llmsdk.Request) error {
	h.update(ctx, func(e *Enrichment) {
		if agent != nil {
			e.AgentName = agent.Name()
		}
		e.Operation = "llm"
		e.OperationID = ""
		e.Model = req.Model
		e.appendHistory(OperationRecord{
			Kind:      "llm",
			Timestamp: time.Now(),
			AgentName: e.AgentName,
			LLM:       newLLMOperation(req),
		}, h.historySize)
	})
	if h.inner != nil {
		return h.inner.OnLLMStart(ctx, runCtx, agent, req)
	}
	return nil
}

func (h *HookAdapter) OnLLMEnd(ctx context.Context, runCtx *agents.RunContext, agent *agents.Agent, resp llmsdk.Response) error {
	h.update(ctx, func(e *Enrichment) {
		e.updateLast("llm", func(rec *OperationRecord) {
			rec.Duration = time.Since(rec.Timestamp).Milliseconds()
			if rec.LLM != nil {
				rec.LLM.applyResponse(resp)
			}
		})
	})
	if h.inner != nil {
		return h.inner.OnLLMEnd(ctx, runCtx, agent, resp)
	}
	return nil
}

func (h *HookAdapter) update(ctx context.Context, fn func(e *Enrichment)) {
	if runID, ok := RunIDFromContext(ctx); ok {
		h.store.Update(runID, fn)
	}
}
