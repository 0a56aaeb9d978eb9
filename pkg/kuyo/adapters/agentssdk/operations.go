// operations.go builds operation records for LLM and tool calls without
// keeping prompt or tool payload text.

package agentssdk

import (
	"time"

	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

// OperationRecord captures a single LLM or tool call.
type OperationRecord struct {
	Kind      string    `json:"kind"` // "llm" or "tool"
	Timestamp time.Time `json:"timestamp"`
	Duration  int64     `json:"durationMs,omitempty"`
	AgentName string    `json:"agentName,omitempty"`

	LLM  *LLMOperation  `json:"llm,omitempty"`
	Tool *ToolOperation `json:"tool,omitempty"`
}

// LLMOperation is request and response metadata of one model call.
type LLMOperation struct {
	Model        string   `json:"model"`
	Provider     string   `json:"provider"`
	MessageCount int      `json:"messageCount"`
	ToolNames    []string `json:"toolNames,omitempty"`
	MaxTokens    *int     `json:"maxTokens,omitempty"`

	FinishReason  string   `json:"finishReason,omitempty"`
	ToolCallNames []string `json:"toolCallNames,omitempty"`
	TotalTokens   int      `json:"totalTokens,omitempty"`
}

// ToolOperation is metadata of one tool call.
type ToolOperation struct {
	Name       string `json:"name"`
	CallID     string `json:"callId"`
	InputSize  int    `json:"inputSize"`
	OutputSize int    `json:"outputSize,omitempty"`
}

func newLLMOperation(req llmsdk.Request) *LLMOperation {
	op := &LLMOperation{
		Model:        req.Model,
		Provider:     string(req.Provider),
		MessageCount: len(req.Messages),
		MaxTokens:    req.MaxTokens,
	}
	if len(req.Tools) > 0 {
		op.ToolNames = make([]string, len(req.Tools))
		for i, tool := range req.Tools {
			op.ToolNames[i] = tool.Name
		}
	}
	return op
}

func (op *LLMOperation) applyResponse(resp llmsdk.Response) {
	op.FinishReason = string(resp.FinishReason)
	op.TotalTokens = resp.Usage.TotalTokens
	if len(resp.ToolCalls) > 0 {
		op.ToolCallNames = make([]string, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			op.ToolCallNames[i] = tc.Name
		}
	}
}

func newToolOperation(name string, call llmsdk.ToolCall) *ToolOperation {
	return &ToolOperation{
		Name:      name,
		CallID:    call.ID,
		InputSize: len(call.Arguments),
	}
}

// historyExtra renders records as plain maps for event extra data.
func historyExtra(history []OperationRecord) []any {
	out := make([]any, 0, len(history))
	for _, rec := range history {
		m := map[string]any{
			"kind":      rec.Kind,
			"timestamp": rec.Timestamp.UnixMilli(),
		}
		if rec.Duration > 0 {
			m["durationMs"] = rec.Duration
		}
		if rec.AgentName != "" {
			m["agentName"] = rec.AgentName
		}
		if rec.LLM != nil {
			llm := map[string]any{
				"model":        rec.LLM.Model,
				"provider":     rec.LLM.Provider,
				"messageCount": rec.LLM.MessageCount,
			}
			if rec.LLM.FinishReason != "" {
				llm["finishReason"] = rec.LLM.FinishReason
			}
			if rec.LLM.TotalTokens > 0 {
				llm["totalTokens"] = rec.LLM.TotalTokens
			}
			m["llm"] = llm
		}
		if rec.Tool != nil {
			m["tool"] = map[string]any{
				"name":       rec.Tool.Name,
				"callId":     rec.Tool.CallID,
				"inputSize":  rec.Tool.InputSize,
				"outputSize": rec.Tool.OutputSize,
			}
		}
		out = append(out, m)
	}
	return out
}
