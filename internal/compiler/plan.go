// Package compiler transforms an Agent Configuration into an Execution Plan
// consumed by the Execution Engine: it resolves tool lists, constructs tool
// servers, installs hooks, builds subagent profiles, computes the effective
// system prompt, and enforces orchestrator constraints (tool gating for the
// parent turn, subagent compilation, FileManager auto-injection).
package compiler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nexus-agentd/agentcore/internal/codeeval"
	"github.com/nexus-agentd/agentcore/internal/connectors"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// orchestratorTools is the coordination-only surface an orchestrator's
// parent turn is restricted to.
var orchestratorTools = []string{"Task", "TodoWrite", "AskUserQuestion"}

// orchestratorBlockedTools are removed from the parent's allowed list but
// remain registered as tool servers so subagents can still reach them.
var orchestratorBlockedTools = []string{
	"Read", "Write", "Bash", "Find", "Grep",
	"WebSearch", "WebFetch",
}

// legacyHookAliases rewrites legacy hook-event names to their current
// equivalents.
var legacyHookAliases = map[string]string{
	"BeforeToolUse":     "PreToolUse",
	"AfterToolUse":      "PostToolUse",
	"BeforeSubagentCall": "SubagentStart",
	"AfterSubagentCall":  "SubagentStop",
	"OnError":            "PostToolUseFailure",
}

// supportedEvents are the hook events a compiled plan actually dispatches.
var supportedEvents = map[string]bool{
	"PreToolUse": true, "PostToolUse": true, "SubagentStart": true,
	"SubagentStop": true, "PostToolUseFailure": true,
}

// CompiledHookEntry is one (matcher, snippet source) pair; Code is kept as
// source and is not evaluated by the compiler.
type CompiledHookEntry struct {
	Matcher  string
	Code     string
	Builtin  bool
}

// CompiledCustomTool is a custom tool with its handler source; Stub and
// StubReason are set when the handler failed Safe Code Evaluator
// prevalidation. The handler is not run or wrapped here.
type CompiledCustomTool struct {
	Descriptor agentspec.ToolDescriptor
	Handler    string
	Stub       bool
	StubReason string
}

// ExecutionPlan is the compiled output consumed by the Execution Engine.
type ExecutionPlan struct {
	SystemPrompt    string
	Model           string
	AllowedTools    []string // the parent's effective allowed tool list
	ToolServers     []agentspec.ToolServerDescriptor
	ConnectorServers []agentspec.ToolServerDescriptor
	CustomTools     []CompiledCustomTool
	Hooks           map[string][]CompiledHookEntry
	Subagents       []agentspec.SubagentConfig
	SettingSources  []string
	NeedsContainer  bool

	// Metadata is attached, not forwarded; ExecutionPlan.Decide reads it
	// when the Execution Engine checks a tool call before dispatch.
	IsOrchestrator         bool
	OrchestratorBlockedTools []string
}

// connectorToolNames flattens the tool names a set of ToolServerDescriptors
// exposes, in the order they appear.
func connectorToolNames(servers []agentspec.ToolServerDescriptor) []string {
	var out []string
	for _, s := range servers {
		for _, t := range s.Tools {
			out = append(out, t.Name)
		}
	}
	return out
}

// filterDisabled drops any name present in disabled, so a config can opt out
// of individual connector tools without dropping the whole connection.
func filterDisabled(names, disabled []string) []string {
	if len(disabled) == 0 {
		return names
	}
	blocked := map[string]bool{}
	for _, d := range disabled {
		blocked[d] = true
	}
	var out []string
	for _, n := range names {
		if !blocked[n] {
			out = append(out, n)
		}
	}
	return out
}

// ConfigInvalid aggregates every validation offense found while checking
// the incoming configuration.
type ConfigInvalid struct {
	Errors []string
}

func (e *ConfigInvalid) Error() string {
	return "invalid agent configuration: " + strings.Join(e.Errors, "; ")
}

// Compile runs all compilation steps and returns the Execution Plan, or a
// *ConfigInvalid if validation fails. The plan's NeedsContainer field reports
// whether the configuration needs a sandbox container.
func Compile(cfg agentspec.AgentConfig, evaluator *codeeval.Evaluator) (*ExecutionPlan, error) {
	migrated := migrateLegacyHooks(cfg.Hooks)

	isOrchestrator := cfg.IsOrchestrator()

	knownTools := knownToolSet(cfg)
	if errs := validateTools(cfg, knownTools); len(errs) > 0 {
		return nil, &ConfigInvalid{Errors: errs}
	}

	plan := &ExecutionPlan{
		Model:          resolveModel(cfg.Model),
		IsOrchestrator: isOrchestrator,
	}

	allowed := effectiveToolList(cfg)

	plan.ConnectorServers = connectors.DescribeProviders(cfg.Connectors)
	plan.ToolServers = plan.ConnectorServers
	connectorNames := filterDisabled(connectorToolNames(plan.ConnectorServers), cfg.ToolsDisabled)

	if isOrchestrator {
		allowed = restrictToOrchestratorTools(allowed)
		plan.OrchestratorBlockedTools = append(append([]string(nil), orchestratorBlockedTools...), connectorNames...)
	} else {
		allowed = append(allowed, connectorNames...)
	}
	plan.NeedsContainer = isOrchestrator || requiresSandbox(cfg)

	plan.CustomTools = compileCustomTools(cfg.CustomTools, evaluator)

	plan.Hooks = compileHooks(migrated, isOrchestrator, cfg.Subagents)

	plan.Subagents = compileSubagents(cfg, isOrchestrator)
	if isOrchestrator {
		plan.Subagents = injectFileManager(plan.Subagents)
	}

	prompt := cfg.SystemPrompt
	if isOrchestrator {
		prompt = appendDelegationGuidelines(prompt, plan.Subagents)
	}
	prompt = appendContext(prompt, cfg.Context, evaluator)
	if !cfg.Advanced.DisablePlatformGuidelines {
		prompt = appendPlatformGuidelines(prompt)
	}
	plan.SystemPrompt = prompt

	plan.SettingSources = cfg.Advanced.SettingSources
	if hasSkillEnabled(cfg) {
		plan.SettingSources = ensureSettingSources(plan.SettingSources, "project", "user")
	}

	plan.AllowedTools = allowed
	return plan, nil
}

func resolveModel(m string) string {
	if m == "" {
		return agentspec.ModelInherit
	}
	return m
}

func migrateLegacyHooks(hooks agentspec.HookConfig) agentspec.HookConfig {
	if hooks == nil {
		return nil
	}
	out := make(agentspec.HookConfig, len(hooks))
	for event, entries := range hooks {
		name := event
		if modern, ok := legacyHookAliases[event]; ok {
			name = modern
		}
		if !supportedEvents[name] {
			// Unsupported legacy event: dropped with a warning.
			slog.Warn("compiler: dropping unsupported hook event", "event", event)
			continue
		}
		out[name] = append(out[name], entries...)
	}
	return out
}
