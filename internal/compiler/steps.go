package compiler

import (
	"context"
	"fmt"
	"strings"

	"github.com/nexus-agentd/agentcore/internal/codeeval"
	"github.com/nexus-agentd/agentcore/internal/connectors"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

var builtinSandboxTools = map[string]bool{"Read": true, "Write": true, "Bash": true, "Find": true, "Grep": true}
var coordinationTools = map[string]bool{"Task": true, "TodoWrite": true, "AskUserQuestion": true}

func knownToolSet(cfg agentspec.AgentConfig) map[string]bool {
	known := map[string]bool{}
	for t := range builtinSandboxTools {
		known[t] = true
	}
	for t := range coordinationTools {
		known[t] = true
	}
	known["WebSearch"] = true
	known["WebFetch"] = true
	for _, name := range connectors.ToolNames() {
		known[name] = true
	}
	for _, ct := range cfg.CustomTools {
		known[ct.Name] = true
	}
	// MCP-declared tools are deferred to MCP and not individually known at
	// compile time; any "mcp:*"-prefixed name is accepted.
	return known
}

func validateTools(cfg agentspec.AgentConfig, known map[string]bool) []string {
	var errs []string
	for _, t := range cfg.ToolsEnabled {
		if strings.HasPrefix(t, "mcp:") {
			continue
		}
		if !known[t] {
			errs = append(errs, fmt.Sprintf("unknown tool %q", t))
		}
	}
	return errs
}

func effectiveToolList(cfg agentspec.AgentConfig) []string {
	disabled := map[string]bool{}
	for _, t := range cfg.ToolsDisabled {
		disabled[t] = true
	}
	var out []string
	for _, t := range cfg.ToolsEnabled {
		if !disabled[t] {
			out = append(out, t)
		}
	}
	return out
}

// restrictToOrchestratorTools restricts the parent's tool list to
// {Task, TodoWrite, AskUserQuestion}; Task is always added.
func restrictToOrchestratorTools(_ []string) []string {
	return append([]string(nil), orchestratorTools...)
}

func requiresSandbox(cfg agentspec.AgentConfig) bool {
	for _, t := range cfg.ToolsEnabled {
		if builtinSandboxTools[t] {
			return true
		}
	}
	return false
}

// compileCustomTools translates each declared schema and prevalidates its
// handler code; handler code that fails prevalidation is marked as a stub
// (Stub, StubReason) rather than failing compilation. Handlers are not run
// or wrapped here, and evaluator is not used.
func compileCustomTools(tools []agentspec.CustomTool, evaluator *codeeval.Evaluator) []CompiledCustomTool {
	var out []CompiledCustomTool
	for _, t := range tools {
		entry := CompiledCustomTool{
			Descriptor: agentspec.ToolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema},
			Handler:    t.Handler,
		}
		if err := codeeval.Prevalidate(t.Handler); err != nil {
			entry.Stub = true
			entry.StubReason = err.Error()
		}
		out = append(out, entry)
	}
	return out
}

// taskGuardCode builds the synthesized orchestrator PreToolUse hook that
// matches Task calls: denies calls missing subagent_type, denies calls
// naming an unknown subagent, denies prompts containing host-looking
// paths, allows otherwise.
func taskGuardCode(validSubagents []string) string {
	names := make([]string, len(validSubagents))
	for i, n := range validSubagents {
		names[i] = `"` + n + `"`
	}
	return fmt.Sprintf(`
valid_subagents = [%s]
host_path_markers = ["/Users/", "/home/", "C:\\"]

def check(call):
    subagent_type = call.get("subagent_type")
    if not subagent_type:
        return {"allow": False, "reason": "Task requires subagent_type"}
    if subagent_type not in valid_subagents:
        return {"allow": False, "reason": "unknown subagent_type: " + subagent_type}
    prompt = call.get("prompt", "")
    for marker in host_path_markers:
        if marker in prompt:
            return {"allow": False, "reason": "prompt references a host path; only /scratch is available"}
    return {"allow": True}

result = check(call)
`, strings.Join(names, ", "))
}

// compileHooks copies the already-migrated user hooks, keeping each
// snippet's source without evaluating it; if the agent is an orchestrator,
// it prepends the synthesized Task guard hook to PreToolUse (user hooks
// never overwrite it).
func compileHooks(hooks agentspec.HookConfig, isOrchestrator bool, subagents []agentspec.SubagentConfig) map[string][]CompiledHookEntry {
	out := map[string][]CompiledHookEntry{}
	for event, entries := range hooks {
		for _, e := range entries {
			out[event] = append(out[event], CompiledHookEntry{Matcher: e.Matcher, Code: e.Code})
		}
	}
	if isOrchestrator {
		names := make([]string, 0, len(subagents))
		for _, s := range subagents {
			names = append(names, s.Name)
		}
		guard := CompiledHookEntry{Matcher: "Task", Code: taskGuardCode(names), Builtin: true}
		out["PreToolUse"] = append([]CompiledHookEntry{guard}, out["PreToolUse"]...)
	}
	return out
}

// sandboxQualified and customQualified translate a bare tool name into its
// qualified form for subagent tool lists.
func sandboxQualified(name string) string { return "sandbox:" + name }
func customQualified(name string) string  { return "custom:" + name }

const workspaceAwarenessBlock = `
You operate inside a sandboxed workspace. Your only writable directory is
/scratch; /skills and /claude-cache are read-only if present. Host machine
paths (/Users/..., /home/..., C:\...) are never reachable from here.
`

// compileSubagents translates each subagent's declared tool names and
// appends the workspace-awareness block to its prompt.
func compileSubagents(cfg agentspec.AgentConfig, isOrchestrator bool) []agentspec.SubagentConfig {
	if !isOrchestrator {
		return nil
	}
	customNames := map[string]bool{}
	for _, t := range cfg.CustomTools {
		customNames[t.Name] = true
	}

	out := make([]agentspec.SubagentConfig, 0, len(cfg.Subagents))
	for _, sa := range cfg.Subagents {
		translated := sa
		if sa.Tools != nil {
			qualified := make([]string, 0, len(sa.Tools))
			for _, t := range sa.Tools {
				switch {
				case builtinSandboxTools[t]:
					qualified = append(qualified, sandboxQualified(t))
				case customNames[t]:
					qualified = append(qualified, customQualified(t))
				default:
					qualified = append(qualified, t)
				}
			}
			translated.Tools = qualified
		}
		translated.Prompt = sa.Prompt + workspaceAwarenessBlock
		out = append(out, translated)
	}
	return out
}

const fileManagerPrompt = `You are FileManager. You handle workspace setup: cloning
repositories, downloading artifacts, and arranging files under /scratch
before other subagents begin their work.
` + workspaceAwarenessBlock

// injectFileManager adds a default FileManager subagent if the
// configuration did not declare one of its own.
func injectFileManager(subagents []agentspec.SubagentConfig) []agentspec.SubagentConfig {
	for _, sa := range subagents {
		if sa.Name == "FileManager" {
			return subagents
		}
	}
	return append(subagents, agentspec.SubagentConfig{
		Name:        "FileManager",
		Description: "handles file operations: cloning, downloading, workspace setup",
		Prompt:      fileManagerPrompt,
		Model:       agentspec.ModelHaiku,
	})
}

// appendDelegationGuidelines appends the delegation rules an orchestrator's
// system prompt needs: which subagents exist and what it cannot do itself.
func appendDelegationGuidelines(prompt string, subagents []agentspec.SubagentConfig) string {
	names := make([]string, 0, len(subagents))
	for _, s := range subagents {
		names = append(names, s.Name)
	}
	return prompt + fmt.Sprintf(`

## Delegation

You are an orchestrator. You must delegate all filesystem and shell work to
a subagent via Task; you cannot use Read, Write, Bash, Find, or Grep
directly. Valid subagents: %s. Host machine paths are forbidden in any
delegated prompt.
`, strings.Join(names, ", "))
}

// appendContext appends static context directly and runs dynamicLoader
// through the Safe Code Evaluator, formatting the result as a titled
// section.
func appendContext(prompt string, ctx agentspec.Context, evaluator *codeeval.Evaluator) string {
	var sections []string
	if ctx.Static != "" {
		sections = append(sections, ctx.Static)
	}
	if ctx.DynamicLoader != "" && evaluator != nil {
		v, err := evaluator.Run(context.Background(), codeeval.SiteContextLoader, ctx.DynamicLoader, nil)
		if err == nil {
			if s, ok := v.(string); ok {
				sections = append(sections, s)
			}
		}
	}
	if len(sections) == 0 {
		return prompt
	}
	return prompt + "\n\n## Context\n\n" + strings.Join(sections, "\n\n")
}

const platformGuidelines = `
## Platform guidelines

Paginate large results instead of requesting everything at once. Write
incrementally and verify as you go rather than producing one large diff.
Your filesystem access is bounded to /scratch (read-write), /skills and
/claude-cache (read-only); nothing else is reachable.
`

// appendPlatformGuidelines appends the fixed platform guidance every
// compiled prompt carries.
func appendPlatformGuidelines(prompt string) string {
	return prompt + platformGuidelines
}

func hasSkillEnabled(cfg agentspec.AgentConfig) bool {
	for _, t := range cfg.ToolsEnabled {
		if strings.HasPrefix(t, "skill:") {
			return true
		}
	}
	return false
}

func ensureSettingSources(sources []string, must ...string) []string {
	have := map[string]bool{}
	for _, s := range sources {
		have[s] = true
	}
	out := append([]string(nil), sources...)
	for _, m := range must {
		if !have[m] {
			out = append(out, m)
		}
	}
	return out
}
