// Package api exposes bakectl's read-only surface to MCP clients so an
// assistant can inspect bake progress and sample job output mid-conversation.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/breadml/bakectl/internal/bakery"
	"github.com/breadml/bakectl/internal/journal"
)

// MCPBakery abstracts the bakery calls the MCP layer needs.
type MCPBakery interface {
	ListRepos(ctx context.Context) (bakery.RepoList, error)
	BakeStatus(ctx context.Context, repo, name string) (bakery.JobStatus, error)
	StimOutput(ctx context.Context, repo, target string, limit int) (bakery.JobOutput, error)
	RolloutOutput(ctx context.Context, repo, target string, limit int) (bakery.JobOutput, error)
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Bakery  MCPBakery
	Journal *journal.Store // optional; if nil, runs://recent returns an error
}

// NewMCPServer creates an MCP server with all bakectl tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"bakectl",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("bakectl — inspect model bakes: repos, job status, and sampled stim/rollout output."),
		server.WithRecovery(),
	)

	// Tools
	s.AddTool(
		mcp.NewTool("list_repos",
			mcp.WithDescription("List repositories visible to the configured API key."),
		),
		mcpListRepos(deps),
	)

	s.AddTool(
		mcp.NewTool("bake_status",
			mcp.WithDescription("Return the current status of a bake's training job."),
			mcp.WithString("repo", mcp.Description("Repository name"), mcp.Required()),
			mcp.WithString("bake", mcp.Description("Bake name"), mcp.Required()),
		),
		mcpBakeStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("stim_sample",
			mcp.WithDescription("Fetch a sample of generated stimuli or trajectories for a target."),
			mcp.WithString("repo", mcp.Description("Repository name"), mcp.Required()),
			mcp.WithString("target", mcp.Description("Target name"), mcp.Required()),
			mcp.WithString("kind", mcp.Description("Job kind: stim (default) or rollout")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of samples (default 3)")),
		),
		mcpStimSample(deps),
	)

	// Resources
	s.AddResource(
		mcp.NewResource(
			"runs://recent",
			"Recent Runs",
			mcp.WithResourceDescription("Last 10 pipeline runs recorded in the local journal"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentRuns(deps),
	)

	return s
}

func mcpListRepos(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := deps.Bakery.ListRepos(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("listing repos failed: %v", err)), nil
		}

		b, err := json.Marshal(list.Items)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal repos: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpBakeStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repo, err := req.RequireString("repo")
		if err != nil {
			return mcpError("repo is required"), nil
		}
		bake, err := req.RequireString("bake")
		if err != nil {
			return mcpError("bake is required"), nil
		}

		status, err := deps.Bakery.BakeStatus(ctx, repo, bake)
		if err != nil {
			return mcpError(fmt.Sprintf("bake status failed: %v", err)), nil
		}

		b, err := json.Marshal(status)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal status: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpStimSample(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repo, err := req.RequireString("repo")
		if err != nil {
			return mcpError("repo is required"), nil
		}
		target, err := req.RequireString("target")
		if err != nil {
			return mcpError("target is required"), nil
		}

		kind := req.GetString("kind", "stim")
		limit := req.GetInt("limit", 3)
		if limit <= 0 {
			limit = 3
		}
		if limit > 20 {
			limit = 20
		}

		var out bakery.JobOutput
		switch kind {
		case "stim":
			out, err = deps.Bakery.StimOutput(ctx, repo, target, limit)
		case "rollout":
			out, err = deps.Bakery.RolloutOutput(ctx, repo, target, limit)
		default:
			return mcpError(fmt.Sprintf("unknown kind %q: expected stim or rollout", kind)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("fetching %s output failed: %v", kind, err)), nil
		}

		b, err := json.Marshal(out.Output)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal output: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecentRuns(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		if deps.Journal == nil {
			return nil, fmt.Errorf("run journal not available")
		}

		runs, err := deps.Journal.ListRuns(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}

		type runSummary struct {
			ID        string `json:"id"`
			Repo      string `json:"repo"`
			Bake      string `json:"bake"`
			Status    string `json:"status"`
			Error     string `json:"error,omitempty"`
			StartedAt string `json:"started_at"`
		}

		summaries := make([]runSummary, len(runs))
		for i, r := range runs {
			summaries[i] = runSummary{
				ID:        r.ID,
				Repo:      r.Repo,
				Bake:      r.Bake,
				Status:    r.Status,
				Error:     r.Error,
				StartedAt: r.StartedAt.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal runs: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
