package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

type fakeSandboxBackend struct{}

func (fakeSandboxBackend) IsAvailable(ctx context.Context) bool  { return true }
func (fakeSandboxBackend) EnsureImage(ctx context.Context) error { return nil }
func (fakeSandboxBackend) CreateContainer(ctx context.Context, name string, mounts []agentspec.BindMount) (string, error) {
	return name + "-id", nil
}
func (fakeSandboxBackend) IsRunning(ctx context.Context, containerID string) (bool, error) {
	return true, nil
}
func (fakeSandboxBackend) Exec(ctx context.Context, containerID, command, cwd string, timeout time.Duration) (sandbox.ExecResult, error) {
	// No journal has been written, so every read looks like a missing file.
	return sandbox.ExecResult{ExitCode: 1, Stderr: "no such file"}, nil
}
func (fakeSandboxBackend) Stats(ctx context.Context, containerID string) (sandbox.Status, error) {
	return sandbox.Status{Running: true}, nil
}
func (fakeSandboxBackend) Stop(ctx context.Context, containerID string) error   { return nil }
func (fakeSandboxBackend) Remove(ctx context.Context, containerID string) error { return nil }
func (fakeSandboxBackend) FindByName(ctx context.Context, name string) (string, error) {
	return "", nil
}

// textOnlyClient answers one turn with plain text and no tool call, driving
// Execute straight to StatusCompleted.
type textOnlyClient struct {
	text string
}

func (c *textOnlyClient) Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	ch := make(chan Chunk, 2)
	ch <- Chunk{Text: c.text}
	ch <- Chunk{Done: true, InputTokens: 10, OutputTokens: 5}
	close(ch)
	return ch, nil
}

// toolThenTextClient calls Read once, then answers with text on the next turn.
type toolThenTextClient struct {
	calls int
}

func (c *toolThenTextClient) Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	ch := make(chan Chunk, 2)
	c.calls++
	if c.calls == 1 {
		ch <- Chunk{ToolCall: &agentspec.ToolCall{ID: "t1", Name: "Read", Input: map[string]any{"file_path": "/scratch/x.txt"}}}
		ch <- Chunk{Done: true}
	} else {
		ch <- Chunk{Text: "done reading"}
		ch <- Chunk{Done: true}
	}
	close(ch)
	return ch, nil
}

func testConfig() agentspec.AgentConfig {
	return agentspec.AgentConfig{ID: "a1", Name: "Tester", SystemPrompt: "be helpful", ToolsEnabled: []string{"Read", "Write", "Bash"}}
}

// slackSendThenTextClient calls slack_send once, then answers with text.
type slackSendThenTextClient struct {
	calls int
}

func (c *slackSendThenTextClient) Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error) {
	ch := make(chan Chunk, 2)
	c.calls++
	if c.calls == 1 {
		ch <- Chunk{ToolCall: &agentspec.ToolCall{ID: "t1", Name: "slack_send", Input: map[string]any{
			"connectionId": "conn1", "channelId": "C123", "text": "hi",
		}}}
		ch <- Chunk{Done: true}
	} else {
		ch <- Chunk{Text: "sent"}
		ch <- Chunk{Done: true}
	}
	close(ch)
	return ch, nil
}

func TestExecuteDispatchesConnectorToolCall(t *testing.T) {
	ctrl := sandbox.New(fakeSandboxBackend{})
	cfg := testConfig()
	cfg.Connectors = []agentspec.ConnectorReference{{ConnectionID: "conn1", Provider: "slack"}}
	noToken := func(ctx context.Context, connectionID string) (string, error) {
		return "", errors.New("no token in test")
	}
	e := New("sess5", cfg, t.TempDir(), ctrl, &slackSendThenTextClient{}, noToken)

	var sawToolResult bool
	for ev := range e.Execute(context.Background(), "send a slack message") {
		if ev.Type == "tool_result" && ev.ToolCall.Name == "slack_send" {
			sawToolResult = true
			if ev.ToolCall.Status != agentspec.ToolCallFailed {
				t.Fatalf("expected the connector call to fail without a real token, got status %v", ev.ToolCall.Status)
			}
		}
	}
	if !sawToolResult {
		t.Fatal("expected slack_send to be dispatched to the connector registry and produce a tool result")
	}
}

func TestExecuteCompletesOnPlainTextReply(t *testing.T) {
	ctrl := sandbox.New(fakeSandboxBackend{})
	e := New("sess1", testConfig(), t.TempDir(), ctrl, &textOnlyClient{text: "hello there"}, nil)

	var gotCompleted bool
	for ev := range e.Execute(context.Background(), "say hi") {
		if ev.Type == "status" && ev.Status == agentspec.StatusCompleted {
			gotCompleted = true
		}
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
	}
	if !gotCompleted {
		t.Fatal("expected a completed status event")
	}
}

func TestExecuteDispatchesToolCallBeforeCompleting(t *testing.T) {
	ctrl := sandbox.New(fakeSandboxBackend{})
	e := New("sess2", testConfig(), t.TempDir(), ctrl, &toolThenTextClient{}, nil)

	var sawToolCall, sawCompleted bool
	for ev := range e.Execute(context.Background(), "read a file") {
		if ev.Type == "tool_call" && ev.ToolCall.Name == "Read" {
			sawToolCall = true
		}
		if ev.Type == "status" && ev.Status == agentspec.StatusCompleted {
			sawCompleted = true
		}
	}
	if !sawToolCall || !sawCompleted {
		t.Fatalf("expected tool call then completion, got toolCall=%v completed=%v", sawToolCall, sawCompleted)
	}
}

func TestInterruptStopsExecution(t *testing.T) {
	ctrl := sandbox.New(fakeSandboxBackend{})
	e := New("sess3", testConfig(), t.TempDir(), ctrl, &toolThenTextClient{}, nil)
	e.Interrupt()

	var sawInterrupted bool
	for ev := range e.Execute(context.Background(), "read a file") {
		if ev.Type == "status" && ev.Status == agentspec.StatusInterrupted {
			sawInterrupted = true
		}
	}
	if !sawInterrupted {
		t.Fatal("expected interrupted status after pre-emptive Interrupt")
	}
}

func TestResolveQuestionWithNoPendingQuestionErrors(t *testing.T) {
	ctrl := sandbox.New(fakeSandboxBackend{})
	e := New("sess4", testConfig(), t.TempDir(), ctrl, &textOnlyClient{text: "hi"}, nil)
	if err := e.ResolveQuestion("nope", nil); err == nil {
		t.Fatal("expected error resolving a question with nothing pending")
	}
}
