// Package connectors implements the OAuth-backed integration tools (Gmail,
// Drive, Slack, Notion, GitHub). Each connector is parameterized by a
// {connectionId, provider, getAccessToken} triple; token acquisition and
// refresh are treated as an opaque credential-providing callable owned by
// the caller's credential store. This package only ever consumes a bearer
// token, never mints one.
package connectors

import (
	"context"
	"fmt"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// TokenSource returns a live access token for a connection. Implemented by
// the caller's credential store; never implemented here.
type TokenSource func(ctx context.Context, connectionID string) (string, error)

// maxResultChars mirrors the Tool Server's truncation budget so connector
// responses are symmetrically capped even though they never pass through
// the sandbox container.
const maxResultChars = 50_000

func truncate(s string) string {
	if len(s) <= maxResultChars {
		return s
	}
	return s[:maxResultChars] + fmt.Sprintf("\n\n[truncated: %d of %d characters shown]", maxResultChars, len(s))
}

func errorResult(err error) agentspec.ToolResult {
	return agentspec.ToolResult{Text: err.Error(), IsError: true}
}

// Registry builds the connector-qualified tool servers for a set of
// ConnectorReferences. It does not check a connection's state; a call whose
// connection id has no resolvable token fails with an error result.
type Registry struct {
	tokens TokenSource

	slack  *SlackConnector
	github *GitHubConnector
	notion *NotionConnector
	gmail  *GoogleConnector
	drive  *GoogleConnector
}

// New constructs a Registry. tokens supplies access tokens per connection id.
func New(tokens TokenSource) *Registry {
	return &Registry{
		tokens: tokens,
		slack:  &SlackConnector{tokens: tokens},
		github: &GitHubConnector{tokens: tokens},
		notion: &NotionConnector{tokens: tokens},
		gmail:  &GoogleConnector{tokens: tokens, service: "gmail"},
		drive:  &GoogleConnector{tokens: tokens, service: "drive"},
	}
}

// Descriptors returns the connectors:-qualified tool server descriptors for
// the given references, skipping any provider this registry does not
// recognize.
func (r *Registry) Descriptors(refs []agentspec.ConnectorReference) []agentspec.ToolServerDescriptor {
	return DescribeProviders(refs)
}

// DescribeProviders builds the connectors:-qualified tool server descriptors
// for a set of connector references without needing a live Registry (no
// token is consulted to list what a provider exposes, only to call it).
// The Config Compiler uses this directly so connector tool compilation
// stays a pure, synchronous step.
func DescribeProviders(refs []agentspec.ConnectorReference) []agentspec.ToolServerDescriptor {
	seen := map[string]bool{}
	var out []agentspec.ToolServerDescriptor
	for _, ref := range refs {
		if seen[ref.Provider] {
			continue
		}
		switch ref.Provider {
		case "slack":
			out = append(out, slackDescriptor())
		case "github":
			out = append(out, githubDescriptor())
		case "notion":
			out = append(out, notionDescriptor())
		case "gmail":
			out = append(out, gmailDescriptor())
		case "drive":
			out = append(out, driveDescriptor())
		default:
			continue
		}
		seen[ref.Provider] = true
	}
	return out
}

// Call dispatches one connector tool call by name, resolving its connection
// id's token through the Registry's TokenSource. ok is false when toolName
// does not belong to any connector this registry knows, so the caller can
// fall through to its own "unknown tool" handling.
func (r *Registry) Call(ctx context.Context, toolName string, input map[string]any) (result agentspec.ToolResult, ok bool) {
	connID, _ := input["connectionId"].(string)
	str := func(key string) string { v, _ := input[key].(string); return v }
	limit := func(key string) int {
		v, _ := input[key].(float64)
		return int(v)
	}
	limit64 := func(key string) int64 {
		v, _ := input[key].(float64)
		return int64(v)
	}

	switch toolName {
	case "slack_list_channels":
		return r.slack.ListChannels(ctx, connID, limit("limit")), true
	case "slack_read":
		return r.slack.Read(ctx, connID, str("channelId"), limit("limit")), true
	case "slack_send":
		return r.slack.Send(ctx, connID, str("channelId"), str("text")), true
	case "github_list_repos":
		return r.github.ListRepos(ctx, connID, limit("limit")), true
	case "github_get_repo":
		return r.github.GetRepo(ctx, connID, str("owner"), str("repo")), true
	case "github_list_issues":
		return r.github.ListIssues(ctx, connID, str("owner"), str("repo"), limit("limit")), true
	case "notion_search":
		return r.notion.Search(ctx, connID, str("query")), true
	case "notion_read_page":
		return r.notion.ReadPage(ctx, connID, str("pageId")), true
	case "gmail_list":
		return r.gmail.GmailList(ctx, connID, str("query"), limit64("limit")), true
	case "gmail_read":
		return r.gmail.GmailRead(ctx, connID, str("messageId")), true
	case "drive_list":
		return r.drive.DriveList(ctx, connID, limit64("limit")), true
	case "drive_search":
		return r.drive.DriveSearch(ctx, connID, str("query"), limit64("limit")), true
	case "drive_read":
		return r.drive.DriveRead(ctx, connID, str("fileId")), true
	default:
		return agentspec.ToolResult{}, false
	}
}

// ToolNames lists every tool name DescribeProviders can produce, for the
// Config Compiler's orchestrator tool-gating pass.
func ToolNames() []string {
	return []string{
		"slack_list_channels", "slack_read", "slack_send",
		"github_list_repos", "github_get_repo", "github_list_issues",
		"notion_search", "notion_read_page",
		"gmail_list", "gmail_read",
		"drive_list", "drive_search", "drive_read",
	}
}

func schema(props map[string]any, required ...string) map[string]any {
	return map[string]any{"type": "object", "properties": props, "required": required}
}

func strProp() map[string]any { return map[string]any{"type": "string"} }
func intProp() map[string]any { return map[string]any{"type": "integer"} }
