package compiler

import (
	"fmt"
	"strings"
)

// DecisionContext carries the facts the parent canUseTool callback needs:
// which tool is being called, with what input, and whether the call
// originated from the parent turn or from a named subagent.
type DecisionContext struct {
	ToolName  string
	Input     map[string]any
	SubagentID string // empty when the call originates from the parent
}

// Decision is the result of the canUseTool callback: allow (optionally with
// modified input) or deny (with a reason).
type Decision struct {
	Allow  bool
	Input  map[string]any
	Reason string
}

// UserCanUseTool is the agent-config-supplied canUseTool callback, consulted
// when the built-in orchestrator rule does not apply.
type UserCanUseTool func(DecisionContext) Decision

// Decide runs the parent turn's canUseTool decision: it enforces the
// orchestrator tool restriction first, then falls through to the agent
// config's own callback. AskUserQuestion handling (suspend + out-of-band
// answer bridging) is the Execution Engine's responsibility since it
// requires the session's pending-question channel; Decide signals that
// case back via the AskUserQuestion tool name so the engine can
// special-case it.
func (p *ExecutionPlan) Decide(dc DecisionContext, userCanUseTool UserCanUseTool) Decision {
	if dc.ToolName == "AskUserQuestion" {
		// The Execution Engine intercepts this tool name before Decide is
		// ever consulted for it in the normal case; if it reaches here,
		// allow by default so a session without special AskUserQuestion
		// wiring (e.g. in tests) doesn't deadlock.
		return Decision{Allow: true, Input: dc.Input}
	}

	if p.IsOrchestrator && dc.SubagentID == "" && isBlockedForOrchestrator(dc.ToolName, p.OrchestratorBlockedTools) {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("%s is not available to the orchestrator; delegate via Task to one of: %s", dc.ToolName, strings.Join(p.subagentNames(), ", ")),
		}
	}

	if userCanUseTool != nil {
		return userCanUseTool(dc)
	}
	return Decision{Allow: true, Input: dc.Input}
}

func (p *ExecutionPlan) subagentNames() []string {
	names := make([]string, 0, len(p.Subagents))
	for _, s := range p.Subagents {
		names = append(names, s.Name)
	}
	return names
}

func isBlockedForOrchestrator(tool string, blocked []string) bool {
	for _, b := range blocked {
		if b == tool {
			return true
		}
	}
	return false
}
