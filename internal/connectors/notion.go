package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nexus-agentd/agentcore/pkg/agentspec"
)

// NotionConnector talks to the Notion REST API directly over net/http.
// Unlike Slack, GitHub, Gmail, and Drive, no typed Notion client library is
// available, so this is the one connector built directly on the standard
// library.
type NotionConnector struct {
	tokens TokenSource
}

const notionAPIBase = "https://api.notion.com/v1"
const notionVersion = "2022-06-28"

func (c *NotionConnector) do(ctx context.Context, connectionID, method, path string, body any) (map[string]any, error) {
	token, err := c.tokens(ctx, connectionID)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = strings.NewReader(string(raw))
	}

	req, err := http.NewRequestWithContext(ctx, method, notionAPIBase+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Notion-Version", notionVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("notion API error (%d): %s", resp.StatusCode, string(raw))
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Search implements notion_search.
func (c *NotionConnector) Search(ctx context.Context, connectionID, query string) agentspec.ToolResult {
	resp, err := c.do(ctx, connectionID, http.MethodPost, "/search", map[string]any{"query": query})
	if err != nil {
		return errorResult(err)
	}
	raw, _ := json.MarshalIndent(resp["results"], "", "  ")
	return agentspec.ToolResult{Text: truncate(string(raw))}
}

// ReadPage implements notion_read_page.
func (c *NotionConnector) ReadPage(ctx context.Context, connectionID, pageID string) agentspec.ToolResult {
	resp, err := c.do(ctx, connectionID, http.MethodGet, "/pages/"+pageID, nil)
	if err != nil {
		return errorResult(err)
	}
	raw, _ := json.MarshalIndent(resp, "", "  ")
	return agentspec.ToolResult{Text: truncate(string(raw))}
}

func notionDescriptor() agentspec.ToolServerDescriptor {
	return agentspec.ToolServerDescriptor{
		Name:    "connectors:notion",
		Version: "1.0.0",
		Tools: []agentspec.ToolDescriptor{
			{Name: "notion_search", Description: "Search Notion pages and databases", InputSchema: schema(map[string]any{"connectionId": strProp(), "query": strProp()}, "connectionId", "query")},
			{Name: "notion_read_page", Description: "Read a Notion page", InputSchema: schema(map[string]any{"connectionId": strProp(), "pageId": strProp()}, "connectionId", "pageId")},
		},
	}
}
