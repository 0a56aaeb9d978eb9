// Tests for operation history and record rendering.
package agentssdk

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	llmsdk "github.com/strongdm/ai-llm-sdk/pkg/llm"
)

// TestAppendHistory_EvictsOldest verifies FIFO behavior when history is full.
func TestAppendHistory_EvictsOldest(t *testing.T) {
	var e Enrichment
	for _, name := range []string{"agent1", "agent2", "agent3", "agent4"} {
		e.appendHistory(OperationRecord{Kind: "llm", AgentName: name}, 3)
	}

	require.Len(t, e.History, 3)
	assert.Equal(t, "agent2", e.History[0].AgentName, "oldest record evicted")
	assert.Equal(t, "agent4", e.History[2].AgentName)
}

func TestAppendHistory_ZeroSizeDisables(t *testing.T) {
	var e Enrichment
	e.appendHistory(OperationRecord{Kind: "llm"}, 0)
	assert.Empty(t, e.History)
}

func TestUpdateLast_NewestOfKind(t *testing.T) {
	var e Enrichment
	e.appendHistory(OperationRecord{Kind: "tool", AgentName: "first"}, 5)
	e.appendHistory(OperationRecord{Kind: "llm", AgentName: "second"}, 5)
	e.appendHistory(OperationRecord{Kind: "tool", AgentName: "third"}, 5)

	ok := e.updateLast("tool", func(rec *OperationRecord) { rec.Duration = 7 })
	require.True(t, ok)
	assert.Zero(t, e.History[0].Duration)
	assert.Equal(t, int64(7), e.History[2].Duration)

	assert.False(t, e.updateLast("handoff", func(*OperationRecord) {}))
}

func TestNewLLMOperation(t *testing.T) {
	maxTokens := 100
	op := newLLMOperation(llmsdk.Request{
		Model:     "gpt-test",
		MaxTokens: &maxTokens,
		Messages:  []llmsdk.Message{{Role: llmsdk.RoleUser}, {Role: llmsdk.RoleAssistant}},
	})

	assert.Equal(t, "gpt-test", op.Model)
	assert.Equal(t, 2, op.MessageCount)
	assert.Equal(t, 100, *op.MaxTokens)
	assert.Empty(t, op.ToolNames)
}

func TestOperationRecord_JSONOmitsPayloads(t *testing.T) {
	rec := OperationRecord{
		Kind:      "tool",
		Timestamp: time.Unix(0, 0),
		Tool:      newToolOperation("Search", llmsdk.ToolCall{ID: "c1", Arguments: json.RawMessage(`{"q":"secret"}`)}),
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret", "tool arguments are reduced to their size")
	assert.Contains(t, string(data), `"inputSize":14`)
}

func TestHistoryExtra(t *testing.T) {
	history := []OperationRecord{
		{Kind: "llm", Timestamp: time.UnixMilli(1000), AgentName: "a", LLM: &LLMOperation{Model: "m", MessageCount: 2, FinishReason: "stop"}},
		{Kind: "tool", Timestamp: time.UnixMilli(2000), Duration: 5, Tool: &ToolOperation{Name: "Search", CallID: "c1", InputSize: 3}},
	}

	out := historyExtra(history)
	require.Len(t, out, 2)

	first := out[0].(map[string]any)
	assert.Equal(t, "llm", first["kind"])
	assert.Equal(t, int64(1000), first["timestamp"])
	assert.Equal(t, "a", first["agentName"])
	assert.Equal(t, "stop", first["llm"].(map[string]any)["finishReason"])

	second := out[1].(map[string]any)
	assert.Equal(t, int64(5), second["durationMs"])
	assert.Equal(t, "Search", second["tool"].(map[string]any)["name"])
}
