// Package ghsrc implements the GitHub change-evidence contract with
// go-github. One client is bound to one repository.
package ghsrc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/tarkyaio/tarka/pkg/providers"
)

// Client is the go-github backed GitHub provider.
type Client struct {
	gh    *github.Client
	owner string
	repo  string
}

var _ providers.GitHub = (*Client)(nil)

// New builds a provider for "owner/name". token may be empty for public
// repos (rate-limited).
func New(repoSlug, token string) (*Client, error) {
	owner, repo, ok := strings.Cut(repoSlug, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("invalid repo slug %q, want owner/name", repoSlug)
	}
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	return &Client{gh: gh, owner: owner, repo: repo}, nil
}

// RepoInfo returns repository metadata.
func (c *Client) RepoInfo(ctx context.Context) (map[string]any, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	if err != nil {
		return nil, fmt.Errorf("getting repo %s/%s: %w", c.owner, c.repo, err)
	}
	return map[string]any{
		"full_name":      repo.GetFullName(),
		"default_branch": repo.GetDefaultBranch(),
		"pushed_at":      repo.GetPushedAt().UTC().Format(time.RFC3339),
	}, nil
}

// RecentCommits returns commits in [since, until] on the default branch.
func (c *Client) RecentCommits(ctx context.Context, since, until time.Time) ([]map[string]any, error) {
	commits, _, err := c.gh.Repositories.ListCommits(ctx, c.owner, c.repo, &github.CommitsListOptions{
		Since:       since,
		Until:       until,
		ListOptions: github.ListOptions{PerPage: 30},
	})
	if err != nil {
		return nil, fmt.Errorf("listing commits for %s/%s: %w", c.owner, c.repo, err)
	}
	var out []map[string]any
	for _, commit := range commits {
		m := map[string]any{
			"sha": commit.GetSHA(),
			"url": commit.GetHTMLURL(),
		}
		if inner := commit.GetCommit(); inner != nil {
			m["message"] = firstLine(inner.GetMessage())
			if author := inner.GetAuthor(); author != nil {
				m["author"] = author.GetName()
				m["timestamp"] = author.GetDate().UTC().Format(time.RFC3339)
			}
		}
		out = append(out, m)
	}
	return out, nil
}

// WorkflowRuns returns the most recent workflow runs.
func (c *Client) WorkflowRuns(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	runs, _, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, c.owner, c.repo, &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs for %s/%s: %w", c.owner, c.repo, err)
	}
	var out []map[string]any
	for _, run := range runs.WorkflowRuns {
		out = append(out, map[string]any{
			"name":       run.GetName(),
			"status":     run.GetStatus(),
			"conclusion": run.GetConclusion(),
			"branch":     run.GetHeadBranch(),
			"sha":        run.GetHeadSHA(),
			"url":        run.GetHTMLURL(),
			"created_at": run.GetCreatedAt().UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
