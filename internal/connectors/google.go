package connectors

import (
	"context"
	"fmt"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GoogleConnector wraps google.golang.org/api's generated REST bindings for
// Gmail and Drive, instead of a hand-rolled HTTP client against the raw
// REST endpoints.
type GoogleConnector struct {
	tokens  TokenSource
	service string // "gmail" or "drive"
}

func (c *GoogleConnector) tokenSource(ctx context.Context, connectionID string) (oauth2.TokenSource, error) {
	token, err := c.tokens(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
}

// GmailList implements gmail_list.
func (c *GoogleConnector) GmailList(ctx context.Context, connectionID, query string, limit int64) agentspec.ToolResult {
	ts, err := c.tokenSource(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	resp, err := svc.Users.Messages.List("me").Q(query).MaxResults(limit).Do()
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, m := range resp.Messages {
		out += m.Id + "\n"
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

// GmailRead implements gmail_read.
func (c *GoogleConnector) GmailRead(ctx context.Context, connectionID, messageID string) agentspec.ToolResult {
	ts, err := c.tokenSource(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	svc, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return errorResult(err)
	}
	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Do()
	if err != nil {
		return errorResult(err)
	}
	return agentspec.ToolResult{Text: truncate(msg.Snippet)}
}

// DriveList implements drive_list.
func (c *GoogleConnector) DriveList(ctx context.Context, connectionID string, limit int64) agentspec.ToolResult {
	ts, err := c.tokenSource(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	resp, err := svc.Files.List().PageSize(limit).Fields("files(id,name,mimeType)").Do()
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, f := range resp.Files {
		out += fmt.Sprintf("%s\t%s\t%s\n", f.Id, f.Name, f.MimeType)
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

// DriveSearch implements drive_search.
func (c *GoogleConnector) DriveSearch(ctx context.Context, connectionID, query string, limit int64) agentspec.ToolResult {
	ts, err := c.tokenSource(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	resp, err := svc.Files.List().Q(query).PageSize(limit).Fields("files(id,name,mimeType)").Do()
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, f := range resp.Files {
		out += fmt.Sprintf("%s\t%s\t%s\n", f.Id, f.Name, f.MimeType)
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

// DriveRead implements drive_read.
func (c *GoogleConnector) DriveRead(ctx context.Context, connectionID, fileID string) agentspec.ToolResult {
	ts, err := c.tokenSource(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return errorResult(err)
	}
	resp, err := svc.Files.Get(fileID).Fields("id,name,mimeType,webViewLink").Do()
	if err != nil {
		return errorResult(err)
	}
	return agentspec.ToolResult{Text: truncate(fmt.Sprintf("%s (%s) %s", resp.Name, resp.MimeType, resp.WebViewLink))}
}

func gmailDescriptor() agentspec.ToolServerDescriptor {
	return agentspec.ToolServerDescriptor{
		Name:    "connectors:gmail",
		Version: "1.0.0",
		Tools: []agentspec.ToolDescriptor{
			{Name: "gmail_list", Description: "List Gmail messages matching a query", InputSchema: schema(map[string]any{"connectionId": strProp(), "query": strProp(), "limit": intProp()}, "connectionId")},
			{Name: "gmail_read", Description: "Read a Gmail message", InputSchema: schema(map[string]any{"connectionId": strProp(), "messageId": strProp()}, "connectionId", "messageId")},
		},
	}
}

func driveDescriptor() agentspec.ToolServerDescriptor {
	return agentspec.ToolServerDescriptor{
		Name:    "connectors:drive",
		Version: "1.0.0",
		Tools: []agentspec.ToolDescriptor{
			{Name: "drive_list", Description: "List Drive files", InputSchema: schema(map[string]any{"connectionId": strProp(), "limit": intProp()}, "connectionId")},
			{Name: "drive_read", Description: "Read Drive file metadata", InputSchema: schema(map[string]any{"connectionId": strProp(), "fileId": strProp()}, "connectionId", "fileId")},
			{Name: "drive_search", Description: "Search Drive files", InputSchema: schema(map[string]any{"connectionId": strProp(), "query": strProp(), "limit": intProp()}, "connectionId", "query")},
		},
	}
}
