package bakery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.bread.com.ai"
	defaultTimeout = 30 * time.Second
)

// Client communicates with the bakery resource-management API. All
// interesting work (stimulus generation, rollouts, baking) happens
// server-side; the client only issues requests and reads status.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a bakery client with the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewClientWithBaseURL creates a client pointing at a custom base URL
// (used by tests and the mock server).
func NewClientWithBaseURL(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("bakery returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("bakery returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func (c *Client) putJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.do(ctx, http.MethodPut, path, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	return decodeJSON(resp, out)
}

// ListRepos returns all repositories visible to the API key.
func (c *Client) ListRepos(ctx context.Context) (RepoList, error) {
	var list RepoList
	if err := c.getJSON(ctx, "/v1/repos", &list); err != nil {
		return RepoList{}, fmt.Errorf("listing repos: %w", err)
	}
	return list, nil
}

// SetRepo creates or updates a repository. baseModel may be empty.
func (c *Client) SetRepo(ctx context.Context, name, baseModel string) error {
	body := Repo{Name: name, BaseModel: baseModel}
	if err := c.putJSON(ctx, "/v1/repos/"+url.PathEscape(name), body, nil); err != nil {
		return fmt.Errorf("setting repo %s: %w", name, err)
	}
	return nil
}

// SetPrompt creates or updates a named prompt inside a repository.
// tools is an optional list of tool definitions in the OpenAI format,
// passed through untouched.
func (c *Client) SetPrompt(ctx context.Context, repo, name string, messages []Message, tools json.RawMessage) error {
	body := map[string]any{"messages": messages}
	if len(tools) > 0 {
		body["tools"] = tools
	}
	path := c.repoPath(repo, "prompts", name)
	if err := c.putJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("setting prompt %s: %w", name, err)
	}
	return nil
}

// SetTarget creates or updates a target: stimulus generators bundled with
// a teacher/student prompt pair, applied on top of a server-side template.
func (c *Client) SetTarget(ctx context.Context, repo, name, template string, overrides TargetOverrides) error {
	body := map[string]any{
		"template":  template,
		"overrides": overrides,
	}
	path := c.repoPath(repo, "targets", name)
	if err := c.putJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("setting target %s: %w", name, err)
	}
	return nil
}

// RunStim starts the stimulus-generation job for a target.
func (c *Client) RunStim(ctx context.Context, repo, target string) error {
	path := c.repoPath(repo, "targets", target) + "/stim/run"
	if err := c.postJSON(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("starting stim job for %s: %w", target, err)
	}
	return nil
}

// StimStatus returns the status of a target's stimulus-generation job.
func (c *Client) StimStatus(ctx context.Context, repo, target string) (JobStatus, error) {
	var status JobStatus
	path := c.repoPath(repo, "targets", target) + "/stim"
	if err := c.getJSON(ctx, path, &status); err != nil {
		return JobStatus{}, fmt.Errorf("stim status for %s: %w", target, err)
	}
	return status, nil
}

// StimOutput fetches up to limit generated stimuli for review.
func (c *Client) StimOutput(ctx context.Context, repo, target string, limit int) (JobOutput, error) {
	var out JobOutput
	path := fmt.Sprintf("%s/stim/output?limit=%d", c.repoPath(repo, "targets", target), limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return JobOutput{}, fmt.Errorf("stim output for %s: %w", target, err)
	}
	return out, nil
}

// RunRollout starts the rollout-generation job for a target.
func (c *Client) RunRollout(ctx context.Context, repo, target string) error {
	path := c.repoPath(repo, "targets", target) + "/rollout/run"
	if err := c.postJSON(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("starting rollout job for %s: %w", target, err)
	}
	return nil
}

// RolloutStatus returns the status of a target's rollout-generation job.
func (c *Client) RolloutStatus(ctx context.Context, repo, target string) (JobStatus, error) {
	var status JobStatus
	path := c.repoPath(repo, "targets", target) + "/rollout"
	if err := c.getJSON(ctx, path, &status); err != nil {
		return JobStatus{}, fmt.Errorf("rollout status for %s: %w", target, err)
	}
	return status, nil
}

// RolloutOutput fetches up to limit generated trajectories for review.
func (c *Client) RolloutOutput(ctx context.Context, repo, target string, limit int) (JobOutput, error) {
	var out JobOutput
	path := fmt.Sprintf("%s/rollout/output?limit=%d", c.repoPath(repo, "targets", target), limit)
	if err := c.getJSON(ctx, path, &out); err != nil {
		return JobOutput{}, fmt.Errorf("rollout output for %s: %w", target, err)
	}
	return out, nil
}

// SetBake creates or updates a bake: the dataset mix and training
// hyperparameters for a model, applied on top of a server-side template.
func (c *Client) SetBake(ctx context.Context, repo, name, modelName, template string, overrides BakeOverrides) error {
	body := map[string]any{
		"model_name": modelName,
		"template":   template,
		"overrides":  overrides,
	}
	path := c.repoPath(repo, "bakes", name)
	if err := c.putJSON(ctx, path, body, nil); err != nil {
		return fmt.Errorf("setting bake %s: %w", name, err)
	}
	return nil
}

// RunBake starts the training job for a bake.
func (c *Client) RunBake(ctx context.Context, repo, name string) error {
	path := c.repoPath(repo, "bakes", name) + "/run"
	if err := c.postJSON(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("starting bake %s: %w", name, err)
	}
	return nil
}

// BakeStatus returns the status of a bake's training job.
func (c *Client) BakeStatus(ctx context.Context, repo, name string) (JobStatus, error) {
	var status JobStatus
	path := c.repoPath(repo, "bakes", name)
	if err := c.getJSON(ctx, path, &status); err != nil {
		return JobStatus{}, fmt.Errorf("bake status for %s: %w", name, err)
	}
	return status, nil
}

func (c *Client) repoPath(repo, kind, name string) string {
	return "/v1/repos/" + url.PathEscape(repo) + "/" + kind + "/" + url.PathEscape(name)
}
