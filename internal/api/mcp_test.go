package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/breadml/bakectl/internal/bakery"
	"github.com/breadml/bakectl/internal/journal"
)

// --- mocks ---

type mockBakery struct {
	repos   bakery.RepoList
	status  bakery.JobStatus
	stim    bakery.JobOutput
	rollout bakery.JobOutput
	err     error
}

func (m *mockBakery) ListRepos(_ context.Context) (bakery.RepoList, error) {
	return m.repos, m.err
}

func (m *mockBakery) BakeStatus(_ context.Context, _, _ string) (bakery.JobStatus, error) {
	return m.status, m.err
}

func (m *mockBakery) StimOutput(_ context.Context, _, _ string, _ int) (bakery.JobOutput, error) {
	return m.stim, m.err
}

func (m *mockBakery) RolloutOutput(_ context.Context, _, _ string, _ int) (bakery.JobOutput, error) {
	return m.rollout, m.err
}

// --- helpers ---

func newTestMCPDeps(t *testing.T) (MCPDeps, *journal.Store) {
	t.Helper()
	store, err := journal.Open(":memory:")
	if err != nil {
		t.Fatalf("opening journal: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Bakery:  &mockBakery{},
		Journal: store,
	}, store
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestMCPTool_ListRepos(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Bakery = &mockBakery{
		repos: bakery.RepoList{Items: []bakery.Repo{
			{Name: "persona", BaseModel: "Qwen/Qwen3-8B"},
			{Name: "toolcall"},
		}},
	}
	handler := mcpListRepos(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_repos", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var repos []bakery.Repo
	if err := json.Unmarshal([]byte(toolText(t, result)), &repos); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(repos) != 2 || repos[0].Name != "persona" {
		t.Fatalf("unexpected repos: %+v", repos)
	}
}

func TestMCPTool_BakeStatus(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Bakery = &mockBakery{status: bakery.JobStatus{Status: bakery.StatusRunning}}
	handler := mcpBakeStatus(deps)

	req := makeCallToolRequest("bake_status", map[string]interface{}{
		"repo": "persona",
		"bake": "persona_bake",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var status bakery.JobStatus
	if err := json.Unmarshal([]byte(toolText(t, result)), &status); err != nil {
		t.Fatalf("failed to parse status: %v", err)
	}
	if status.Status != bakery.StatusRunning {
		t.Fatalf("expected running, got %q", status.Status)
	}
}

func TestMCPTool_BakeStatus_MissingArgs(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpBakeStatus(deps)

	req := makeCallToolRequest("bake_status", map[string]interface{}{
		"repo": "persona",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error when bake is missing")
	}
}

func TestMCPTool_StimSample(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Bakery = &mockBakery{
		stim:    bakery.JobOutput{Output: []string{"q1", "q2"}},
		rollout: bakery.JobOutput{Output: []string{"traj1"}},
	}
	handler := mcpStimSample(deps)

	req := makeCallToolRequest("stim_sample", map[string]interface{}{
		"repo":   "persona",
		"target": "helpful",
		"limit":  2,
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var samples []string
	if err := json.Unmarshal([]byte(toolText(t, result)), &samples); err != nil {
		t.Fatalf("failed to parse samples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
}

func TestMCPTool_StimSample_RolloutKind(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Bakery = &mockBakery{rollout: bakery.JobOutput{Output: []string{"traj1"}}}
	handler := mcpStimSample(deps)

	req := makeCallToolRequest("stim_sample", map[string]interface{}{
		"repo":   "persona",
		"target": "helpful",
		"kind":   "rollout",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if toolText(t, result) != `["traj1"]` {
		t.Fatalf("unexpected output: %s", toolText(t, result))
	}
}

func TestMCPTool_StimSample_UnknownKind(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	handler := mcpStimSample(deps)

	req := makeCallToolRequest("stim_sample", map[string]interface{}{
		"repo":   "persona",
		"target": "helpful",
		"kind":   "dataset",
	})

	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error for unknown kind")
	}
}

func TestMCPTool_ListRepos_Error(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Bakery = &mockBakery{err: errors.New("connection refused")}
	handler := mcpListRepos(deps)

	result, err := handler(context.Background(), makeCallToolRequest("list_repos", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPResource_RecentRuns(t *testing.T) {
	deps, store := newTestMCPDeps(t)

	run := journal.Run{
		ID:        uuid.NewString(),
		Repo:      "persona",
		Bake:      "persona_bake",
		StartedAt: time.Now().UTC(),
	}
	if err := store.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	handler := mcpResourceRecentRuns(deps)
	contents, err := handler(context.Background(), makeReadResourceRequest("runs://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}

	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}

	var summaries []json.RawMessage
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 run, got %d", len(summaries))
	}
}

func TestMCPResource_RecentRuns_NoJournal(t *testing.T) {
	deps, _ := newTestMCPDeps(t)
	deps.Journal = nil

	handler := mcpResourceRecentRuns(deps)
	_, err := handler(context.Background(), makeReadResourceRequest("runs://recent"))
	if err == nil {
		t.Fatal("expected error when journal is nil")
	}
}
