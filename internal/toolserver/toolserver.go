// Package toolserver builds the Read/Write/Bash/Find/Grep tool server bound
// to one session's sandbox container. Every call is path/command validated,
// routed through the Sandbox Controller, size-truncated, and hint-enriched
// on failure, so a rejected path or command comes back with enough context
// to retry correctly rather than a bare error.
package toolserver

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nexus-agentd/agentcore/internal/cmdguard"
	"github.com/nexus-agentd/agentcore/internal/pathguard"
	"github.com/nexus-agentd/agentcore/internal/sandbox"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// Server exposes the sandbox-routed tool surface for one session.
type Server struct {
	sessionID string
	sandbox   *sandbox.Controller
	limits    agentspec.ResourceLimits
}

// New constructs a Server bound to sessionID's container.
func New(sessionID string, ctrl *sandbox.Controller, limits agentspec.ResourceLimits) *Server {
	return &Server{sessionID: sessionID, sandbox: ctrl, limits: limits}
}

func errorResult(text string) agentspec.ToolResult {
	return agentspec.ToolResult{Text: text, IsError: true}
}

func hint(msg, advice string, enabled bool) string {
	if !enabled || advice == "" {
		return msg
	}
	return msg + "\n\nHint: " + advice
}

func (s *Server) truncate(text string) string {
	if len(text) <= s.limits.MaxResultSize {
		return text
	}
	truncated := text[:s.limits.MaxResultSize]
	return truncated + fmt.Sprintf("\n\n[truncated: %d of %d characters shown]", s.limits.MaxResultSize, len(text))
}

func (s *Server) hostPathDiagnostic(path string) (agentspec.ToolResult, bool) {
	if pathguard.LooksLikeHostPath(path) {
		return errorResult(fmt.Sprintf(
			"%q looks like a host filesystem path. This session's only workspace is /scratch (plus read-only /skills and /claude-cache).", path)), true
	}
	return agentspec.ToolResult{}, false
}

// Read implements the Read tool.
func (s *Server) Read(ctx context.Context, path string) agentspec.ToolResult {
	if mapped, ok := mapHostCachePath(path); ok {
		path = mapped
	} else if res, isHost := s.hostPathDiagnostic(path); isHost {
		return res
	}

	v := pathguard.ValidateRead(path)
	if v.Err != nil {
		return errorResult(v.Err.Error())
	}
	content, err := s.sandbox.ReadFile(ctx, s.sessionID, v.Sanitized)
	if err != nil {
		return errorResult(hint(err.Error(), "the file may not exist yet; use Find or Bash `ls` to check", s.limits.IncludeErrorHints))
	}
	return agentspec.ToolResult{Text: hint(s.truncate(content), "this result was large; narrow your query (e.g. Grep for a specific section) instead of re-reading the whole file", s.limits.IncludeErrorHints && len(content) > s.limits.MaxResultSize)}
}

// Write implements the Write tool.
func (s *Server) Write(ctx context.Context, path, content string) agentspec.ToolResult {
	if res, isHost := s.hostPathDiagnostic(path); isHost {
		return res
	}
	v := pathguard.ValidateWrite(path)
	if v.Err != nil {
		return errorResult(hint(v.Err.Error(), "writes are only allowed under /scratch", s.limits.IncludeErrorHints))
	}
	if err := s.sandbox.WriteFile(ctx, s.sessionID, v.Sanitized, content); err != nil {
		return errorResult(err.Error())
	}
	return agentspec.ToolResult{Text: fmt.Sprintf("wrote %d bytes to %s", len(content), v.Sanitized)}
}

// Bash implements the Bash tool.
func (s *Server) Bash(ctx context.Context, command string, requestedTimeoutMs int) agentspec.ToolResult {
	sanitized := cmdguard.Sanitize(command)
	v := cmdguard.Validate(sanitized)
	if v.Err != nil {
		return errorResult(hint(v.Err.Error(), "break the command into simpler, allow-listed steps", s.limits.IncludeErrorHints))
	}

	timeoutMs := requestedTimeoutMs
	if timeoutMs <= 0 || timeoutMs > s.limits.MaxToolTimeoutMs {
		timeoutMs = s.limits.MaxToolTimeoutMs
	}

	res, err := s.sandbox.Exec(ctx, s.sessionID, v.Sanitized, "/scratch", time.Duration(timeoutMs)*time.Millisecond)
	if err != nil {
		return errorResult(err.Error())
	}

	out := res.Stdout
	if res.Stderr != "" {
		out = out + "\n" + res.Stderr
	}
	out = s.truncate(out)

	if res.ExitCode == 124 {
		return errorResult(hint(out, "break the command into smaller chunks that finish within the timeout", s.limits.IncludeErrorHints))
	}
	if res.ExitCode != 0 {
		return errorResult(out)
	}
	return agentspec.ToolResult{Text: out}
}

// Find implements the Find tool.
func (s *Server) Find(ctx context.Context, pattern, dir string) agentspec.ToolResult {
	if dir == "" {
		dir = "/scratch"
	}
	if res, isHost := s.hostPathDiagnostic(dir); isHost {
		return res
	}
	v := pathguard.ValidateRead(dir)
	if v.Err != nil {
		return errorResult(v.Err.Error())
	}
	cmd := fmt.Sprintf("find %s -name %s", shellQuote(v.Sanitized), shellQuote(pattern))
	res, err := s.sandbox.Exec(ctx, s.sessionID, cmd, "/scratch", time.Duration(s.limits.MaxToolTimeoutMs)*time.Millisecond)
	if err != nil {
		return errorResult(err.Error())
	}
	return agentspec.ToolResult{Text: s.truncate(res.Stdout)}
}

// Grep implements the Grep tool.
func (s *Server) Grep(ctx context.Context, pattern, dir, include string) agentspec.ToolResult {
	if res, isHost := s.hostPathDiagnostic(dir); isHost {
		return res
	}
	v := pathguard.ValidateRead(dir)
	if v.Err != nil {
		return errorResult(v.Err.Error())
	}
	args := []string{"grep", "-r", shellQuote(pattern), shellQuote(v.Sanitized)}
	if include != "" {
		args = append(args, "--include", shellQuote(include))
	}
	cmd := strings.Join(args, " ")
	res, err := s.sandbox.Exec(ctx, s.sessionID, cmd, "/scratch", time.Duration(s.limits.MaxToolTimeoutMs)*time.Millisecond)
	if err != nil {
		return errorResult(err.Error())
	}
	return agentspec.ToolResult{Text: s.truncate(res.Stdout)}
}

var hostCachePattern = regexp.MustCompile(`^(?:/Users/[^/]+|/home/[^/]+)/\.claude/projects/(.+)$`)

// mapHostCachePath translates a host-looking .claude/projects path into its
// /claude-cache/projects mount equivalent instead of rejecting it outright.
func mapHostCachePath(p string) (string, bool) {
	m := hostCachePattern.FindStringSubmatch(p)
	if m == nil {
		return "", false
	}
	return "/claude-cache/projects/" + m[1], true
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Descriptor returns this server's tool descriptor set, for installation
// into a compiled execution plan.
func Descriptor() agentspec.ToolServerDescriptor {
	schema := func(props map[string]any, required ...string) map[string]any {
		return map[string]any{"type": "object", "properties": props, "required": required}
	}
	return agentspec.ToolServerDescriptor{
		Name:    "sandbox",
		Version: "1.0.0",
		Tools: []agentspec.ToolDescriptor{
			{Name: "Read", Description: "Read a file from the session workspace", InputSchema: schema(map[string]any{"file_path": map[string]any{"type": "string"}}, "file_path")},
			{Name: "Write", Description: "Write a file under /scratch", InputSchema: schema(map[string]any{"file_path": map[string]any{"type": "string"}, "content": map[string]any{"type": "string"}}, "file_path", "content")},
			{Name: "Bash", Description: "Run a shell command in the session workspace", InputSchema: schema(map[string]any{"command": map[string]any{"type": "string"}, "timeout": map[string]any{"type": "integer"}}, "command")},
			{Name: "Find", Description: "Find files by name pattern", InputSchema: schema(map[string]any{"pattern": map[string]any{"type": "string"}, "path": map[string]any{"type": "string"}}, "pattern")},
			{Name: "Grep", Description: "Search file contents recursively", InputSchema: schema(map[string]any{"pattern": map[string]any{"type": "string"}, "path": map[string]any{"type": "string"}, "include": map[string]any{"type": "string"}}, "pattern", "path")},
		},
	}
}
