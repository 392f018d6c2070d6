package connectors

import (
	"context"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
	"github.com/slack-go/slack"
)

// SlackConnector wraps github.com/slack-go/slack to back the
// slack_list_channels / slack_read / slack_send tool surface. A connection
// id resolves to a per-user bearer token via tokens, not a single
// workspace-wide bot token.
type SlackConnector struct {
	tokens TokenSource
}

func (c *SlackConnector) client(ctx context.Context, connectionID string) (*slack.Client, error) {
	token, err := c.tokens(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	return slack.New(token), nil
}

// ListChannels implements slack_list_channels.
func (c *SlackConnector) ListChannels(ctx context.Context, connectionID string, limit int) agentspec.ToolResult {
	cl, err := c.client(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	channels, _, err := cl.GetConversationsContext(ctx, &slack.GetConversationsParameters{Limit: limit})
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, ch := range channels {
		out += ch.ID + "\t#" + ch.Name + "\n"
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

// Read implements slack_read (channel history).
func (c *SlackConnector) Read(ctx context.Context, connectionID, channelID string, limit int) agentspec.ToolResult {
	cl, err := c.client(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	hist, err := cl.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Limit:     limit,
	})
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, m := range hist.Messages {
		out += m.User + ": " + m.Text + "\n"
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

// Send implements slack_send.
func (c *SlackConnector) Send(ctx context.Context, connectionID, channelID, text string) agentspec.ToolResult {
	cl, err := c.client(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	_, _, err = cl.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
	if err != nil {
		return errorResult(err)
	}
	return agentspec.ToolResult{Text: "message sent"}
}

func slackDescriptor() agentspec.ToolServerDescriptor {
	return agentspec.ToolServerDescriptor{
		Name:    "connectors:slack",
		Version: "1.0.0",
		Tools: []agentspec.ToolDescriptor{
			{Name: "slack_list_channels", Description: "List Slack channels", InputSchema: schema(map[string]any{"connectionId": strProp(), "limit": intProp()}, "connectionId")},
			{Name: "slack_read", Description: "Read recent messages from a Slack channel", InputSchema: schema(map[string]any{"connectionId": strProp(), "channelId": strProp(), "limit": intProp()}, "connectionId", "channelId")},
			{Name: "slack_send", Description: "Send a message to a Slack channel", InputSchema: schema(map[string]any{"connectionId": strProp(), "channelId": strProp(), "text": strProp()}, "connectionId", "channelId", "text")},
		},
	}
}
