package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexus-agentd/agentcore/internal/cmdguard"
	"github.com/nexus-agentd/agentcore/internal/codeeval"
	"github.com/nexus-agentd/agentcore/internal/compiler"
	"github.com/nexus-agentd/agentcore/internal/connectors"
	"github.com/nexus-agentd/agentcore/internal/pathguard"
	"github.com/nexus-agentd/agentcore/internal/progress"
	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/internal/toolserver"
	"github.com/nexus-agentd/agentcore/internal/tracker"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// Event is one item in the stream an Engine.Execute caller ranges over.
type Event struct {
	Type      string // message|tool_call|tool_result|status|question|error
	Message   *agentspec.Message
	ToolCall  *agentspec.ToolCall
	Status    agentspec.ExecutionStatus
	Question  *Question
	Err       error
}

// Question is a pending AskUserQuestion call suspended until ResolveQuestion
// is called with matching requestID.
type Question struct {
	RequestID string
	Prompt    string
	Options   []string
	answer    chan map[string]any
}

// Engine owns one session end to end: container lifecycle, progress
// journal, LLM turns, tool dispatch, and the node tree that records all of
// it. Exactly one goroutine drives Execute for a given Engine at a time;
// Interrupt, SetPermissionMode and ResolveQuestion are safe to call from
// other goroutines concurrently with it.
type Engine struct {
	sessionID string
	cfg       agentspec.AgentConfig
	cwd       string

	ctrl       *sandbox.Controller
	progress   *progress.Store
	tree       *tracker.Tree
	client     LLMClient
	connectors *connectors.Registry

	mu              sync.Mutex
	permissionMode  agentspec.PermissionMode
	model           string
	pendingQuestion *Question
	interruptCh     chan struct{}
	destroyed       bool
}

// New constructs an Engine for sessionID. cwd roots the session's on-disk
// workspace mounts (see sandbox.BuildMounts); client drives LLM turns; tokens
// resolves connector connection ids to bearer tokens (nil disables every
// connector tool call with a descriptive error instead of panicking).
func New(sessionID string, cfg agentspec.AgentConfig, cwd string, ctrl *sandbox.Controller, client LLMClient, tokens connectors.TokenSource) *Engine {
	if tokens == nil {
		tokens = noTokenSource
	}
	return &Engine{
		sessionID:      sessionID,
		cfg:            cfg,
		cwd:            cwd,
		ctrl:           ctrl,
		progress:       progress.New(ctrl),
		tree:           tracker.NewTree(sessionID, "root", cfg.Name),
		client:         client,
		connectors:     connectors.New(tokens),
		permissionMode: cfg.Settings.PermissionMode,
		model:          cfg.Model,
		interruptCh:    make(chan struct{}),
	}
}

func noTokenSource(ctx context.Context, connectionID string) (string, error) {
	return "", fmt.Errorf("engine: no token source configured for connection %q", connectionID)
}

// Interrupt stops the current turn at the next safe checkpoint. Safe to
// call multiple times or from any goroutine.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.interruptCh:
	default:
		close(e.interruptCh)
	}
}

// SetPermissionMode records mode on the engine; the engine's own tool
// dispatch does not read it.
func (e *Engine) SetPermissionMode(mode agentspec.PermissionMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permissionMode = mode
}

// SetModel changes the model used for subsequent turns.
func (e *Engine) SetModel(model string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = model
}

// ResolveQuestion answers the single pending AskUserQuestion call, if any.
// Calling it with no pending question or a mismatched requestID is an error.
func (e *Engine) ResolveQuestion(requestID string, answers map[string]any) error {
	e.mu.Lock()
	q := e.pendingQuestion
	e.mu.Unlock()
	if q == nil || q.RequestID != requestID {
		return fmt.Errorf("engine: no pending question %s for session %s", requestID, e.sessionID)
	}
	q.answer <- answers
	return nil
}

// rewindFiles truncates the progress journal's completed-steps list after
// the first step named toStep (that step is kept; if no step has that name
// the list is unchanged). Files under /scratch are not touched.
func (e *Engine) rewindFiles(ctx context.Context, toStep string) error {
	state, err := e.progress.Load(ctx, e.sessionID)
	if err != nil || state == nil {
		return err
	}
	kept := state.CompletedSteps[:0]
	for _, s := range state.CompletedSteps {
		kept = append(kept, s)
		if s.Step == toStep {
			break
		}
	}
	state.CompletedSteps = kept
	return e.progress.Save(ctx, e.sessionID, state)
}

// Destroy tears down the session's container. Safe to call more than once.
func (e *Engine) Destroy(ctx context.Context) error {
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return nil
	}
	e.destroyed = true
	e.mu.Unlock()
	return e.ctrl.Destroy(ctx, e.sessionID)
}

// Execute runs prompt to completion (or interruption, or error), streaming
// Events as they happen. The returned channel is closed when the turn
// reaches a terminal status.
func (e *Engine) Execute(ctx context.Context, prompt string) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		if err := e.run(ctx, prompt, out); err != nil {
			out <- Event{Type: "error", Err: err}
			_ = e.ctrl.Destroy(context.Background(), e.sessionID)
		}
	}()
	return out
}

func (e *Engine) run(ctx context.Context, prompt string, out chan<- Event) error {
	evaluator := codeeval.New()

	if err := e.ctrl.EnsureImage(ctx); err != nil {
		return fmt.Errorf("engine: ensure image: %w", err)
	}
	home, _ := os.UserHomeDir()
	mounts := sandbox.BuildMounts(e.cwd, e.sessionID, home)
	if _, err := e.ctrl.Create(ctx, e.sessionID, mounts); err != nil {
		return fmt.Errorf("engine: create container: %w", err)
	}

	state, err := e.progress.Load(ctx, e.sessionID)
	if err != nil {
		return fmt.Errorf("engine: load progress: %w", err)
	}
	if state == nil {
		state = &agentspec.ProgressState{
			SessionID:       e.sessionID,
			TaskDescription: prompt,
			StartedAt:       time.Now(),
			CurrentPhase:    "started",
		}
	}

	plan, err := compiler.Compile(e.cfg, evaluator)
	if err != nil {
		return fmt.Errorf("engine: compile plan: %w", err)
	}

	e.tree.SetStatus(e.sessionID, agentspec.StatusRunning)
	out <- Event{Type: "status", Status: agentspec.StatusRunning}

	srv := toolserver.New(e.sessionID, e.ctrl, agentspec.DefaultResourceLimits())

	userMsg := agentspec.Message{UUID: uuid.NewString(), SessionID: e.sessionID, Type: agentspec.MessageUser, Content: prompt, Timestamp: time.Now()}
	e.tree.AddMessage(userMsg)
	out <- Event{Type: "message", Message: &userMsg}

	messages := []agentspec.Message{userMsg}

	for turn := 0; ; turn++ {
		select {
		case <-e.interruptCh:
			e.tree.SetStatus(e.sessionID, agentspec.StatusInterrupted)
			out <- Event{Type: "status", Status: agentspec.StatusInterrupted}
			return nil
		default:
		}

		req := CompletionRequest{
			Model:     e.currentModel(),
			System:    plan.SystemPrompt,
			Messages:  messages,
			Tools:     toolDescriptors(plan),
			MaxTokens: 4096,
		}
		chunks, err := e.client.Complete(ctx, req)
		if err != nil {
			return fmt.Errorf("engine: complete: %w", err)
		}

		var assistantText string
		var calledTool *agentspec.ToolCall
		var inTok, outTok int
		for chunk := range chunks {
			if chunk.Error != nil {
				return fmt.Errorf("engine: stream: %w", chunk.Error)
			}
			if chunk.Text != "" {
				assistantText += chunk.Text
			}
			if chunk.ToolCall != nil {
				calledTool = chunk.ToolCall
			}
			if chunk.Done {
				inTok, outTok = chunk.InputTokens, chunk.OutputTokens
			}
		}

		if assistantText != "" {
			msg := agentspec.Message{UUID: uuid.NewString(), SessionID: e.sessionID, Type: agentspec.MessageAssistant, Content: assistantText, Timestamp: time.Now()}
			e.tree.AddMessage(msg)
			messages = append(messages, msg)
			out <- Event{Type: "message", Message: &msg}
		}

		if calledTool == nil {
			state.CurrentPhase = "completed"
			if err := e.progress.Save(ctx, e.sessionID, state); err != nil {
				slog.Warn("engine: progress save failed", "session", e.sessionID, "error", err)
			}
			e.tree.SetStatus(e.sessionID, agentspec.StatusCompleted)
			e.tree.Finalize(e.currentModel(), inTok, outTok)
			out <- Event{Type: "status", Status: agentspec.StatusCompleted}
			return nil
		}

		if calledTool.Name == "AskUserQuestion" {
			q := &Question{RequestID: uuid.NewString(), answer: make(chan map[string]any, 1)}
			if v, ok := calledTool.Input["question"].(string); ok {
				q.Prompt = v
			}
			e.mu.Lock()
			e.pendingQuestion = q
			e.mu.Unlock()
			e.tree.SetStatus(e.sessionID, agentspec.StatusWaitingForUser)
			out <- Event{Type: "question", Question: q, Status: agentspec.StatusWaitingForUser}

			select {
			case answers := <-q.answer:
				e.mu.Lock()
				e.pendingQuestion = nil
				e.mu.Unlock()
				result := agentspec.Message{UUID: uuid.NewString(), SessionID: e.sessionID, Type: agentspec.MessageToolResult, Content: fmt.Sprint(answers), Timestamp: time.Now()}
				messages = append(messages, result)
				e.tree.SetStatus(e.sessionID, agentspec.StatusRunning)
				continue
			case <-e.interruptCh:
				e.tree.SetStatus(e.sessionID, agentspec.StatusInterrupted)
				out <- Event{Type: "status", Status: agentspec.StatusInterrupted}
				return nil
			}
		}

		e.tree.AddToolCall(e.sessionID, *calledTool)
		out <- Event{Type: "tool_call", ToolCall: calledTool}

		var result agentspec.ToolResult
		if d := plan.Decide(compiler.DecisionContext{ToolName: calledTool.Name, Input: calledTool.Input}, nil); !d.Allow {
			result = agentspec.ToolResult{Text: d.Reason, IsError: true}
		} else {
			result = e.dispatch(ctx, srv, *calledTool)
		}
		calledTool.Output = result.Text
		calledTool.Status = statusFor(result)
		out <- Event{Type: "tool_result", ToolCall: calledTool}

		toolMsg := agentspec.Message{UUID: uuid.NewString(), SessionID: e.sessionID, Type: agentspec.MessageToolResult, Content: result.Text, Timestamp: time.Now()}
		messages = append(messages, toolMsg)

		state.CompletedSteps = append(state.CompletedSteps, agentspec.CompletedStep{Step: calledTool.Name})
		state.LastUpdatedAt = time.Now()
		if err := e.progress.Save(ctx, e.sessionID, state); err != nil {
			slog.Warn("engine: progress save failed", "session", e.sessionID, "error", err)
		}
	}
}

func (e *Engine) currentModel() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model
}

func statusFor(r agentspec.ToolResult) agentspec.ToolCallStatus {
	if r.IsError {
		return agentspec.ToolCallFailed
	}
	return agentspec.ToolCallCompleted
}

func toolDescriptors(plan *compiler.ExecutionPlan) []agentspec.ToolDescriptor {
	bound := map[string]agentspec.ToolDescriptor{}
	for _, server := range plan.ConnectorServers {
		for _, t := range server.Tools {
			bound[t.Name] = t
		}
	}
	var out []agentspec.ToolDescriptor
	for _, name := range plan.AllowedTools {
		if d, ok := bound[name]; ok {
			out = append(out, d)
			continue
		}
		out = append(out, agentspec.ToolDescriptor{Name: name})
	}
	for _, t := range plan.CustomTools {
		out = append(out, t.Descriptor)
	}
	return out
}

// dispatch routes a tool call to the built-in tool server, validating the
// path or command arguments first so a rejection never reaches the
// container.
func (e *Engine) dispatch(ctx context.Context, srv *toolserver.Server, call agentspec.ToolCall) agentspec.ToolResult {
	switch call.Name {
	case "Read":
		p, _ := call.Input["file_path"].(string)
		if res, rejected := pathRejected(p); rejected {
			return res
		}
		return srv.Read(ctx, p)
	case "Write":
		p, _ := call.Input["file_path"].(string)
		content, _ := call.Input["content"].(string)
		if res, rejected := pathRejected(p); rejected {
			return res
		}
		return srv.Write(ctx, p, content)
	case "Bash":
		cmd, _ := call.Input["command"].(string)
		if res := cmdguard.Validate(cmd); !res.Valid {
			return agentspec.ToolResult{Text: res.Err.Error(), IsError: true}
		}
		timeout, _ := call.Input["timeout"].(float64)
		return srv.Bash(ctx, cmd, int(timeout))
	case "Find":
		pattern, _ := call.Input["pattern"].(string)
		dir, _ := call.Input["path"].(string)
		return srv.Find(ctx, pattern, dir)
	case "Grep":
		pattern, _ := call.Input["pattern"].(string)
		dir, _ := call.Input["path"].(string)
		include, _ := call.Input["include"].(string)
		return srv.Grep(ctx, pattern, dir, include)
	default:
		if result, ok := e.connectors.Call(ctx, call.Name, call.Input); ok {
			return result
		}
		return agentspec.ToolResult{Text: fmt.Sprintf("engine: unknown tool %q", call.Name), IsError: true}
	}
}

func pathRejected(p string) (agentspec.ToolResult, bool) {
	if pathguard.LooksLikeHostPath(p) {
		// The tool server maps host cache paths and explains other host paths.
		return agentspec.ToolResult{}, false
	}
	if res := pathguard.ValidateRead(p); !res.Valid {
		return agentspec.ToolResult{Text: res.Err.Error(), IsError: true}, true
	}
	return agentspec.ToolResult{}, false
}
