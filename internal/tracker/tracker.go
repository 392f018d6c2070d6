// Package tracker builds and walks the Execution Node tree and maintains
// the process-wide Registry mapping session id to live Execution Engine.
// Turns, tool calls, and token usage are recorded per node and rolled up
// recursively, with subagents linked as children of the node that spawned
// them.
package tracker

import (
	"sync"
	"time"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// pricingTable is a fixed per-model cost table ($ per 1K tokens, input then
// output), used to estimate cost at completion.
var pricingTable = map[string][2]float64{
	agentspec.ModelOpus:   {0.015, 0.075},
	agentspec.ModelSonnet: {0.003, 0.015},
	agentspec.ModelHaiku:  {0.0008, 0.004},
}

// Tree builds one session's Execution Node tree. A Tree is not safe for
// concurrent mutation: only the owning Execution Engine's single
// cooperative goroutine calls its mutating methods.
type Tree struct {
	root  *agentspec.ExecutionNode
	byID  map[string]*agentspec.ExecutionNode
}

// NewTree starts a root node for a session.
func NewTree(sessionID, agentType, agentName string) *Tree {
	root := &agentspec.ExecutionNode{
		ID:        sessionID,
		SessionID: sessionID,
		AgentType: agentType,
		AgentName: agentName,
		Status:    agentspec.StatusInitializing,
		StartedAt: time.Now(),
	}
	return &Tree{root: root, byID: map[string]*agentspec.ExecutionNode{sessionID: root}}
}

// Root returns the tree's root node.
func (t *Tree) Root() *agentspec.ExecutionNode { return t.root }

// StartSubagent creates a new child node linked under parentID.
func (t *Tree) StartSubagent(id, parentID, agentType, agentName string) *agentspec.ExecutionNode {
	node := &agentspec.ExecutionNode{
		ID:        id,
		ParentID:  parentID,
		SessionID: t.root.SessionID,
		AgentType: agentType,
		AgentName: agentName,
		Status:    agentspec.StatusRunning,
		StartedAt: time.Now(),
	}
	t.byID[id] = node
	if parent, ok := t.byID[parentID]; ok {
		parent.Children = append(parent.Children, node)
	}
	return node
}

// AddMessage appends msg to the node named by msg.ParentToolUseID, or root
// if empty or unknown.
func (t *Tree) AddMessage(msg agentspec.Message) {
	node := t.root
	if msg.ParentToolUseID != "" {
		if n, ok := t.byID[msg.ParentToolUseID]; ok {
			node = n
		}
	}
	node.Messages = append(node.Messages, msg)
}

// AddToolCall appends call to nodeID, or root if nodeID is empty or unknown.
func (t *Tree) AddToolCall(nodeID string, call agentspec.ToolCall) {
	node := t.root
	if nodeID != "" {
		if n, ok := t.byID[nodeID]; ok {
			node = n
		}
	}
	node.ToolCalls = append(node.ToolCalls, call)
}

// SetStatus transitions nodeID's status. Status transitions are monotonic
// toward a terminal state: a terminal status is never overwritten.
func (t *Tree) SetStatus(nodeID string, status agentspec.ExecutionStatus) {
	node, ok := t.byID[nodeID]
	if !ok {
		return
	}
	if node.Status.IsTerminal() {
		return
	}
	node.Status = status
	if status.IsTerminal() {
		now := time.Now()
		node.EndedAt = &now
	}
}

// Finalize computes metrics for the whole tree by recursive traversal and
// returns the root node.
func (t *Tree) Finalize(model string, inputTokens, outputTokens int) *agentspec.ExecutionNode {
	var walk func(n *agentspec.ExecutionNode) (turns, in, out, calls, subagents int)
	walk = func(n *agentspec.ExecutionNode) (int, int, int, int, int) {
		turns := len(n.Messages)
		calls := len(n.ToolCalls)
		subagents := len(n.Children)
		in, out := 0, 0
		for _, c := range n.Children {
			ct, ci, co, cc, cs := walk(c)
			turns += ct
			in += ci
			out += co
			calls += cc
			subagents += cs
		}
		return turns, in, out, calls, subagents
	}
	turns, _, _, calls, subagents := walk(t.root)
	in, out := inputTokens, outputTokens
	rate, ok := pricingTable[model]
	cost := 0.0
	if ok {
		cost = float64(in)/1000*rate[0] + float64(out)/1000*rate[1]
	}
	t.root.Metrics = agentspec.ExecutionMetrics{
		Turns: turns, InputTokens: in, OutputTokens: out,
		ToolCalls: calls, SubagentCount: subagents, EstimatedCostUSD: cost,
	}
	return t.root
}

// TimelineEvent is one entry in a sorted view across start/message/tool-
// call/subagent/end events.
type TimelineEvent struct {
	Timestamp time.Time
	Kind      string // start|message|tool_call|subagent|end
	NodeID    string
}

// Timeline sorts every recorded event across the tree by timestamp.
func (t *Tree) Timeline() []TimelineEvent {
	var events []TimelineEvent
	var walk func(n *agentspec.ExecutionNode)
	walk = func(n *agentspec.ExecutionNode) {
		events = append(events, TimelineEvent{Timestamp: n.StartedAt, Kind: "start", NodeID: n.ID})
		for _, m := range n.Messages {
			events = append(events, TimelineEvent{Timestamp: m.Timestamp, Kind: "message", NodeID: n.ID})
		}
		for _, c := range n.ToolCalls {
			events = append(events, TimelineEvent{Timestamp: c.Timestamp, Kind: "tool_call", NodeID: n.ID})
		}
		for _, c := range n.Children {
			events = append(events, TimelineEvent{Timestamp: c.StartedAt, Kind: "subagent", NodeID: c.ID})
			walk(c)
		}
		if n.EndedAt != nil {
			events = append(events, TimelineEvent{Timestamp: *n.EndedAt, Kind: "end", NodeID: n.ID})
		}
	}
	walk(t.root)
	sortByTimestamp(events)
	return events
}

func sortByTimestamp(events []TimelineEvent) {
	for i := 1; i < len(events); i++ {
		for j := i; j > 0 && events[j].Timestamp.Before(events[j-1].Timestamp); j-- {
			events[j], events[j-1] = events[j-1], events[j]
		}
	}
}

// Engine is the minimal surface the Registry needs to reach a live session
// from an out-of-band handler, matching the Execution Engine's public
// control operations.
type Engine interface {
	Interrupt()
	ResolveQuestion(requestID string, answers map[string]any) error
}

// Registry is the process-wide session id → live Execution Engine map. It
// stores references, not ownership: registration happens at execute start,
// unregistration at destroy.
type Registry struct {
	mu       sync.RWMutex
	engines  map[string]Engine
}

// NewRegistry constructs an empty Registry. Exactly one should exist per
// process, constructed at startup and injected into every subsystem that
// needs it.
func NewRegistry() *Registry {
	return &Registry{engines: map[string]Engine{}}
}

// Register records sessionID's live engine.
func (r *Registry) Register(sessionID string, e Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[sessionID] = e
}

// Unregister removes sessionID's entry.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, sessionID)
}

// Get looks up sessionID's live engine.
func (r *Registry) Get(sessionID string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[sessionID]
	return e, ok
}
