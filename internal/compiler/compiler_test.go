package compiler

import (
	"testing"

	"github.com/nexus-agentd/agentcore/internal/codeeval"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

func orchestratorConfig() agentspec.AgentConfig {
	return agentspec.AgentConfig{
		ID:           "orch1",
		Name:         "Orchestrator",
		SystemPrompt: "You coordinate work.",
		Model:        "sonnet",
		ToolsEnabled: []string{"Read", "Task", "TodoWrite"},
		Subagents: []agentspec.SubagentConfig{
			{Name: "Analyzer", Description: "analyzes code", Prompt: "You analyze."},
		},
	}
}

func TestCompileOrchestratorRestrictsParentTools(t *testing.T) {
	plan, err := Compile(orchestratorConfig(), codeeval.New())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !plan.IsOrchestrator {
		t.Fatal("expected orchestrator detection")
	}
	for _, want := range []string{"Task", "TodoWrite", "AskUserQuestion"} {
		found := false
		for _, got := range plan.AllowedTools {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("expected %s in allowed tools, got %v", want, plan.AllowedTools)
		}
	}
	for _, blocked := range []string{"Read", "Write", "Bash"} {
		for _, got := range plan.AllowedTools {
			if got == blocked {
				t.Errorf("expected %s to be removed from parent allowed list", blocked)
			}
		}
	}
	if !plan.NeedsContainer {
		t.Fatal("orchestrators always need a container")
	}
}

func TestCompileInjectsFileManager(t *testing.T) {
	plan, err := Compile(orchestratorConfig(), codeeval.New())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	found := false
	for _, s := range plan.Subagents {
		if s.Name == "FileManager" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FileManager to be auto-injected")
	}
}

func TestCompileSynthesizesTaskGuardHook(t *testing.T) {
	plan, err := Compile(orchestratorConfig(), codeeval.New())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	entries := plan.Hooks["PreToolUse"]
	if len(entries) == 0 || entries[0].Matcher != "Task" || !entries[0].Builtin {
		t.Fatalf("expected synthesized Task guard hook to be prepended, got %+v", entries)
	}
}

func TestDecideDeniesParentBlockedTool(t *testing.T) {
	plan, err := Compile(orchestratorConfig(), codeeval.New())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	d := plan.Decide(DecisionContext{ToolName: "Read"}, nil)
	if d.Allow {
		t.Fatal("expected parent Read to be denied for an orchestrator")
	}
	d2 := plan.Decide(DecisionContext{ToolName: "Read", SubagentID: "Analyzer"}, nil)
	if !d2.Allow {
		t.Fatal("expected subagent Read to be allowed")
	}
}

func TestCompileRejectsUnknownTool(t *testing.T) {
	cfg := agentspec.AgentConfig{ID: "a", SystemPrompt: "p", ToolsEnabled: []string{"NotATool"}}
	_, err := Compile(cfg, codeeval.New())
	if err == nil {
		t.Fatal("expected unknown tool to fail validation")
	}
}

func TestCompileLegacyHookMigration(t *testing.T) {
	cfg := agentspec.AgentConfig{
		ID: "a", SystemPrompt: "p",
		Hooks: agentspec.HookConfig{
			"BeforeToolUse": {{Matcher: "Bash", Code: "result = True"}},
		},
	}
	plan, err := Compile(cfg, codeeval.New())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if len(plan.Hooks["PreToolUse"]) != 1 {
		t.Fatalf("expected legacy BeforeToolUse to migrate to PreToolUse, got %+v", plan.Hooks)
	}
}
