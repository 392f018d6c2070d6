package connectors

import (
	"context"
	"fmt"

	"github.com/google/go-github/v67/github"
	"github.com/nexus-agentd/agentcore/pkg/agentspec"
	"golang.org/x/oauth2"
)

// GitHubConnector wraps google/go-github, attested elsewhere in the
// retrieval pack for this exact "typed REST client over a user's OAuth
// token" concern, rather than a hand-rolled net/http client.
type GitHubConnector struct {
	tokens TokenSource
}

func (c *GitHubConnector) client(ctx context.Context, connectionID string) (*github.Client, error) {
	token, err := c.tokens(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts)), nil
}

// ListRepos implements github_list_repos.
func (c *GitHubConnector) ListRepos(ctx context.Context, connectionID string, limit int) agentspec.ToolResult {
	cl, err := c.client(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	repos, _, err := cl.Repositories.List(ctx, "", &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, r := range repos {
		out += r.GetFullName() + "\n"
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

// GetRepo implements github_get_repo.
func (c *GitHubConnector) GetRepo(ctx context.Context, connectionID, owner, repo string) agentspec.ToolResult {
	cl, err := c.client(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	r, _, err := cl.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return errorResult(err)
	}
	return agentspec.ToolResult{Text: truncate(fmt.Sprintf("%s\n%s\nstars: %d\nopen issues: %d\n",
		r.GetFullName(), r.GetDescription(), r.GetStargazersCount(), r.GetOpenIssuesCount()))}
}

// ListIssues implements github_list_issues.
func (c *GitHubConnector) ListIssues(ctx context.Context, connectionID, owner, repo string, limit int) agentspec.ToolResult {
	cl, err := c.client(ctx, connectionID)
	if err != nil {
		return errorResult(err)
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	issues, _, err := cl.Issues.ListByRepo(ctx, owner, repo, &github.IssueListByRepoOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return errorResult(err)
	}
	var out string
	for _, iss := range issues {
		out += fmt.Sprintf("#%d %s [%s]\n", iss.GetNumber(), iss.GetTitle(), iss.GetState())
	}
	return agentspec.ToolResult{Text: truncate(out)}
}

func githubDescriptor() agentspec.ToolServerDescriptor {
	return agentspec.ToolServerDescriptor{
		Name:    "connectors:github",
		Version: "1.0.0",
		Tools: []agentspec.ToolDescriptor{
			{Name: "github_list_repos", Description: "List repositories accessible to the connected account", InputSchema: schema(map[string]any{"connectionId": strProp(), "limit": intProp()}, "connectionId")},
			{Name: "github_get_repo", Description: "Get repository metadata", InputSchema: schema(map[string]any{"connectionId": strProp(), "owner": strProp(), "repo": strProp()}, "connectionId", "owner", "repo")},
			{Name: "github_list_issues", Description: "List issues in a repository", InputSchema: schema(map[string]any{"connectionId": strProp(), "owner": strProp(), "repo": strProp(), "limit": intProp()}, "connectionId", "owner", "repo")},
		},
	}
}
