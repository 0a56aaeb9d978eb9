// builders.go turns run enrichment into event extra data.

package agentssdk

import (
	"context"
	"errors"
	"strings"
)

func buildExtra(e Enrichment, contextID uint64, mode string) map[string]any {
	extra := map[string]any{
		"source": "agent_" + mode,
	}
	if e.AgentName != "" {
		extra["agent"] = e.AgentName
	}
	if e.Model != "" {
		extra["model"] = e.Model
	}
	if e.Operation != "" {
		extra["operation"] = e.Operation
	}
	if e.OperationID != "" {
		extra["operationId"] = e.OperationID
	}
	if e.ToolName != "" {
		extra["tool"] = e.ToolName
	}
	if contextID != 0 {
		extra["cxdbContextId"] = contextID
	}
	if len(e.History) > 0 {
		extra["operations"] = historyExtra(e.History)
	}
	return extra
}

var guardrailPatterns = []string{
	"guardrail",
	"content policy",
	"safety filter",
	"blocked by policy",
}

// classifyError names the failure class of a run error.
func classifyError(err error) string {
	switch {
	case err == nil:
		return "error"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := strings.ToLower(err.Error())
	for _, p := range guardrailPatterns {
		if strings.Contains(msg, p) {
			return "guardrail"
		}
	}
	return "error"
}
