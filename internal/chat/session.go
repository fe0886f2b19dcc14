package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultInferenceURL = "http://bapi.bread.com.ai"
	streamingTimeout    = 300 * time.Second
	doneSentinel        = "[DONE]"
)

// Session is an interactive conversation with a baked model. The transcript
// is append-only and lives in process memory; it is not persisted. The
// session is not safe for concurrent use.
type Session struct {
	Model       string
	Temperature float64

	// Thinking enables the model's thinking mode. When off, the request
	// carries extra_body.chat_template_kwargs.enable_thinking=false so
	// Qwen-family checkpoints skip the reasoning preamble.
	Thinking bool

	apiKey     string
	baseURL    string
	httpClient *http.Client
	transcript []Message
}

// NewSession creates a chat session against the default inference endpoint.
func NewSession(apiKey, model string) *Session {
	return &Session{
		Model:       model,
		Temperature: 0.7,
		apiKey:      apiKey,
		baseURL:     defaultInferenceURL,
		httpClient: &http.Client{
			Timeout: streamingTimeout,
		},
	}
}

// NewSessionWithBaseURL creates a session pointing at a custom inference
// endpoint (used by tests and the mock server).
func NewSessionWithBaseURL(apiKey, baseURL, model string) *Session {
	s := NewSession(apiKey, model)
	s.baseURL = strings.TrimRight(baseURL, "/")
	return s
}

// Transcript returns a copy of the conversation so far.
func (s *Session) Transcript() []Message {
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// SetSystem prepends a system message. It must be called before the first
// user turn.
func (s *Session) SetSystem(content string) {
	s.transcript = append([]Message{{Role: "system", Content: content}}, s.transcript...)
}

// Send appends a user message, streams the model's reply, and appends the
// assembled assistant message to the transcript. onDelta is invoked for
// each incremental content fragment as it arrives; it may be nil.
//
// On any HTTP or stream error the pending user message is rolled back so a
// retry resends a transcript consistent with what the server saw.
func (s *Session) Send(ctx context.Context, text string, onDelta func(string)) (string, error) {
	s.transcript = append(s.transcript, Message{Role: "user", Content: text})

	reply, err := s.complete(ctx, onDelta)
	if err != nil {
		s.transcript = s.transcript[:len(s.transcript)-1]
		return "", err
	}

	s.transcript = append(s.transcript, Message{Role: "assistant", Content: reply})
	return reply, nil
}

func (s *Session) complete(ctx context.Context, onDelta func(string)) (string, error) {
	req := Request{
		Model:       s.Model,
		Messages:    s.transcript,
		Temperature: s.Temperature,
		Stream:      true,
	}
	if !s.Thinking {
		req.Extra = map[string]json.RawMessage{
			"extra_body": json.RawMessage(`{"chat_template_kwargs":{"enable_thinking":false}}`),
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	return readStream(resp.Body, onDelta)
}

// readStream consumes newline-delimited SSE frames prefixed with "data: ",
// concatenating each frame's content delta until the [DONE] sentinel or
// stream close. Malformed frames are skipped.
func readStream(r io.Reader, onDelta func(string)) (string, error) {
	var reply strings.Builder

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == doneSentinel {
			break
		}

		var c chunk
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			continue
		}
		if len(c.Choices) == 0 {
			continue
		}
		if content := c.Choices[0].Delta.Content; content != "" {
			reply.WriteString(content)
			if onDelta != nil {
				onDelta(content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}

	return reply.String(), nil
}
