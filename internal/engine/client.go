// Package engine implements the Execution Engine: it owns one session's
// lifecycle end to end, from container provisioning through LLM turns to
// terminal status, and exposes the control surface (interrupt, resolve a
// pending question, change model or permission mode) the rest of the system
// drives a running session with. Rewinding is not part of that exported
// surface: the engine's rewind helper is unexported.
package engine

import (
	"context"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// Chunk is one piece of a streamed completion: partial text, a completed
// tool call, or a terminal signal (Done or Error).
type Chunk struct {
	Text      string
	ToolCall  *agentspec.ToolCall
	Done      bool
	Error     error
	InputTokens  int
	OutputTokens int
}

// CompletionRequest is one turn sent to an LLM client.
type CompletionRequest struct {
	Model     string
	System    string
	Messages  []agentspec.Message
	Tools     []agentspec.ToolDescriptor
	MaxTokens int
}

// LLMClient is the minimal surface the engine needs from a model backend.
// A concrete client adapts its SDK's streaming shape onto this
// channel-of-Chunk contract; AnthropicClient is the one this package ships.
type LLMClient interface {
	Complete(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)
}
