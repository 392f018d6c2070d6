// Package agentspec defines the data model shared by the config compiler,
// execution engine, tracker, and progress journal: agent configuration,
// sessions, execution nodes, tool calls, and messages.
package agentspec

import "time"

// Model names accepted by AgentConfig.Model.
const (
	ModelSonnet  = "sonnet"
	ModelOpus    = "opus"
	ModelHaiku   = "haiku"
	ModelInherit = "inherit"
)

// PermissionMode controls how aggressively tool calls are auto-approved.
type PermissionMode string

const (
	PermissionDefault  PermissionMode = "default"
	PermissionAcceptAll PermissionMode = "acceptAll"
	PermissionPlan     PermissionMode = "plan"
)

// ResourceLimits bounds a single tool invocation.
type ResourceLimits struct {
	MaxResultSize     int  `json:"maxResultSize" yaml:"maxResultSize"`
	MaxToolTimeoutMs  int  `json:"maxToolTimeoutMs" yaml:"maxToolTimeoutMs"`
	IncludeErrorHints bool `json:"includeErrorHints" yaml:"includeErrorHints"`
}

// DefaultResourceLimits mirrors the defaults named in the agent configuration
// contract: 50k characters, 60s, hints on.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxResultSize:     50_000,
		MaxToolTimeoutMs:  60_000,
		IncludeErrorHints: true,
	}
}

// HookEntry pairs a tool-name matcher with a code snippet to evaluate.
type HookEntry struct {
	Matcher string `json:"matcher" yaml:"matcher"`
	Code    string `json:"code" yaml:"code"`
}

// HookConfig maps a hook event name to its entries. Event names may be
// legacy aliases; the Config Compiler migrates them before use.
type HookConfig map[string][]HookEntry

// CustomTool is a user-declared tool backed by a Safe Code Evaluator handler.
type CustomTool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"inputSchema" yaml:"inputSchema"`
	Handler     string         `json:"handler" yaml:"handler"`
}

// MCPReference points at a remote MCP server the plan should connect to.
type MCPReference struct {
	Name      string            `json:"name" yaml:"name"`
	Transport string            `json:"transport" yaml:"transport"`
	Target    string            `json:"target" yaml:"target"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// ConnectorReference points at an OAuth-backed integration connection.
type ConnectorReference struct {
	ConnectionID string `json:"connectionId" yaml:"connectionId"`
	Provider     string `json:"provider" yaml:"provider"`
}

// AdvancedOptions carries the rarer, power-user agent configuration knobs.
type AdvancedOptions struct {
	Betas                      []string          `json:"betas,omitempty" yaml:"betas,omitempty"`
	CanUseToolCode              string           `json:"canUseTool,omitempty" yaml:"canUseTool,omitempty"`
	SettingSources              []string          `json:"settingSources,omitempty" yaml:"settingSources,omitempty"`
	Env                         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	DisablePlatformGuidelines  bool             `json:"disablePlatformGuidelines,omitempty" yaml:"disablePlatformGuidelines,omitempty"`
}

// Settings holds the per-agent execution caps and modes.
type Settings struct {
	MaxTurns         int            `json:"maxTurns,omitempty" yaml:"maxTurns,omitempty"`
	MaxBudgetUSD     float64        `json:"maxBudgetUsd,omitempty" yaml:"maxBudgetUsd,omitempty"`
	MaxThinkingTokens int           `json:"maxThinkingTokens,omitempty" yaml:"maxThinkingTokens,omitempty"`
	PermissionMode   PermissionMode `json:"permissionMode,omitempty" yaml:"permissionMode,omitempty"`
	FileCheckpointing bool          `json:"fileCheckpointing,omitempty" yaml:"fileCheckpointing,omitempty"`
	WorkingDirectory string         `json:"workingDirectory,omitempty" yaml:"workingDirectory,omitempty"`
	ResourceLimits   ResourceLimits `json:"resourceLimits,omitempty" yaml:"resourceLimits,omitempty"`
}

// Context carries static and dynamically-loaded context injected into the
// system prompt at compile time.
type Context struct {
	Static        string `json:"static,omitempty" yaml:"static,omitempty"`
	DynamicLoader string `json:"dynamicLoader,omitempty" yaml:"dynamicLoader,omitempty"`
}

// SubagentConfig declares a named worker an orchestrator can delegate to.
type SubagentConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
	Tools       []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
}

// AgentConfig is the declarative definition of an agent, as described by the
// data model: identity, prompt, model, tool set, optional subagents,
// settings, hooks, schema, MCP/connector references, custom tools, and
// advanced options.
type AgentConfig struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	SystemPrompt string          `json:"systemPrompt" yaml:"systemPrompt"`
	Model       string           `json:"model" yaml:"model"`
	ToolsEnabled  []string       `json:"toolsEnabled,omitempty" yaml:"toolsEnabled,omitempty"`
	ToolsDisabled []string       `json:"toolsDisabled,omitempty" yaml:"toolsDisabled,omitempty"`
	Subagents   []SubagentConfig `json:"subagents,omitempty" yaml:"subagents,omitempty"`
	Settings    Settings         `json:"settings,omitempty" yaml:"settings,omitempty"`
	Hooks       HookConfig       `json:"hooks,omitempty" yaml:"hooks,omitempty"`
	OutputSchema map[string]any  `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty"`
	MCP         []MCPReference   `json:"mcp,omitempty" yaml:"mcp,omitempty"`
	Connectors  []ConnectorReference `json:"connectors,omitempty" yaml:"connectors,omitempty"`
	CustomTools []CustomTool     `json:"customTools,omitempty" yaml:"customTools,omitempty"`
	Context     Context          `json:"context,omitempty" yaml:"context,omitempty"`
	Advanced    AdvancedOptions  `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// IsOrchestrator reports whether the agent must be restricted to the
// coordination-only tool surface.
func (c *AgentConfig) IsOrchestrator() bool {
	return len(c.Subagents) > 0
}

// Session ties a session id to its agent config, live container (if any),
// and progress state.
type Session struct {
	ID          string
	Config      AgentConfig
	ContainerID string
	Progress    *ProgressState
}

// ContainerHandle is the opaque identifier for a live sandbox plus its mounts.
type ContainerHandle struct {
	ID        string
	SessionID string
	Mounts    []BindMount
	CreatedAt time.Time
}

// BindMount describes one host→container bind mount.
type BindMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// ExecutionStatus is the lifecycle state of an Execution Node.
type ExecutionStatus string

const (
	StatusInitializing      ExecutionStatus = "initializing"
	StatusRunning           ExecutionStatus = "running"
	StatusWaitingForUser    ExecutionStatus = "waiting_for_user"
	StatusWaitingForPermission ExecutionStatus = "waiting_for_permission"
	StatusCompleted         ExecutionStatus = "completed"
	StatusFailed            ExecutionStatus = "failed"
	StatusInterrupted       ExecutionStatus = "interrupted"
)

// IsTerminal reports whether the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusInterrupted:
		return true
	default:
		return false
	}
}

// ExecutionMetrics are computed at node completion by recursive traversal.
type ExecutionMetrics struct {
	Turns         int     `json:"turns"`
	InputTokens   int     `json:"inputTokens"`
	OutputTokens  int     `json:"outputTokens"`
	ToolCalls     int     `json:"toolCalls"`
	SubagentCount int     `json:"subagentCount"`
	EstimatedCostUSD float64 `json:"estimatedCostUsd"`
}

// ExecutionNode is one node of the tracker's tree: the root agent run or one
// subagent invocation.
type ExecutionNode struct {
	ID         string            `json:"id"`
	ParentID   string            `json:"parentId,omitempty"`
	SessionID  string            `json:"sessionId"`
	AgentType  string            `json:"agentType"`
	AgentName  string            `json:"agentName"`
	Status     ExecutionStatus   `json:"status"`
	StartedAt  time.Time         `json:"startedAt"`
	EndedAt    *time.Time        `json:"endedAt,omitempty"`
	Messages   []Message         `json:"messages"`
	ToolCalls  []ToolCall        `json:"toolCalls"`
	Children   []*ExecutionNode  `json:"children,omitempty"`
	Metrics    ExecutionMetrics  `json:"metrics"`
}

// ToolCallStatus is the lifecycle state of one tool invocation.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ToolCall records one tool invocation and its eventual result.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Input     map[string]any `json:"input"`
	Output    string         `json:"output,omitempty"`
	Status    ToolCallStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// MessageType classifies a Message.
type MessageType string

const (
	MessageUser        MessageType = "user"
	MessageAssistant    MessageType = "assistant"
	MessageSystem       MessageType = "system"
	MessageToolResult   MessageType = "tool_result"
	MessagePartial      MessageType = "partial"
)

// Message is one unit of conversation. ParentToolUseID links subagent output
// back to the tool call that spawned it.
type Message struct {
	UUID            string      `json:"uuid"`
	SessionID       string      `json:"sessionId"`
	Type            MessageType `json:"type"`
	Content         string      `json:"content"`
	Timestamp       time.Time   `json:"timestamp"`
	ParentToolUseID string      `json:"parentToolUseId,omitempty"`
}

// CompletedStep is one entry in a ProgressState's append-only history.
type CompletedStep struct {
	Step   string `json:"step"`
	Result string `json:"result"`
}

// ProgressState is the resumable journal persisted inside the sandbox.
type ProgressState struct {
	SessionID       string          `json:"sessionId"`
	TaskDescription string          `json:"taskDescription"`
	StartedAt       time.Time       `json:"startedAt"`
	LastUpdatedAt   time.Time       `json:"lastUpdatedAt"`
	CurrentPhase    string          `json:"currentPhase"`
	CompletedSteps  []CompletedStep `json:"completedSteps"`
	PendingSteps    []string        `json:"pendingSteps,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// ToolDescriptor describes one operation exposed by a Tool Server.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolServerDescriptor is a named, versioned set of tool descriptors; it
// carries no handlers.
type ToolServerDescriptor struct {
	Name    string           `json:"name"`
	Version string           `json:"version"`
	Tools   []ToolDescriptor `json:"tools"`
}

// ToolResult is the uniform shape every tool call returns to the model.
type ToolResult struct {
	Text    string `json:"text"`
	IsError bool   `json:"isError,omitempty"`
}
