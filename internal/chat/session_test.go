package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseFrame(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"delta": map[string]string{"content": content}},
		},
	})
	return "data: " + string(b) + "\n\n"
}

func newStreamServer(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			fmt.Fprint(w, sseFrame(d))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSend_AssemblesDeltasInOrder(t *testing.T) {
	srv := newStreamServer(t, []string{"Do ", "or do not. ", "There is no try."})

	s := NewSessionWithBaseURL("test-key", srv.URL, "johndoe/yoda_repo/yoda_bake/21")

	var streamed []string
	reply, err := s.Send(context.Background(), "Any advice?", func(d string) {
		streamed = append(streamed, d)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Do or do not. There is no try."
	if reply != want {
		t.Errorf("reply = %q, want %q", reply, want)
	}
	if strings.Join(streamed, "") != want {
		t.Errorf("streamed fragments = %q, want concatenation %q", strings.Join(streamed, ""), want)
	}

	tr := s.Transcript()
	if len(tr) != 2 {
		t.Fatalf("transcript length = %d, want 2", len(tr))
	}
	if tr[0].Role != "user" || tr[1].Role != "assistant" {
		t.Errorf("transcript roles = %s/%s, want user/assistant", tr[0].Role, tr[1].Role)
	}
	if tr[1].Content != want {
		t.Errorf("assistant content = %q, want %q", tr[1].Content, want)
	}
}

func TestSend_DoneSentinelStopsReading(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseFrame("hello"))
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, sseFrame("ignored after sentinel"))
	}))
	t.Cleanup(srv.Close)

	s := NewSessionWithBaseURL("test-key", srv.URL, "m")
	reply, err := s.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hello" {
		t.Errorf("reply = %q, want %q", reply, "hello")
	}
}

func TestSend_MalformedFramesSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {not json}\n\n")
		fmt.Fprint(w, ": comment line\n")
		fmt.Fprint(w, sseFrame("still works"))
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	s := NewSessionWithBaseURL("test-key", srv.URL, "m")
	reply, err := s.Send(context.Background(), "hi", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "still works" {
		t.Errorf("reply = %q, want %q", reply, "still works")
	}
}

func TestSend_HTTPErrorRollsBackUserTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":"upstream unavailable"}`))
	}))
	t.Cleanup(srv.Close)

	s := NewSessionWithBaseURL("test-key", srv.URL, "m")
	if _, err := s.Send(context.Background(), "first", nil); err == nil {
		t.Fatal("expected error for 502 response")
	}
	if n := len(s.Transcript()); n != 0 {
		t.Errorf("transcript length after failed send = %d, want 0", n)
	}
}

func TestSend_RequestShape(t *testing.T) {
	var captured map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q, want Bearer test-key", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	s := NewSessionWithBaseURL("test-key", srv.URL, "my-model")
	s.SetSystem("You are Yoda")
	if _, err := s.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(captured["model"]) != `"my-model"` {
		t.Errorf("model = %s", captured["model"])
	}
	if string(captured["stream"]) != "true" {
		t.Errorf("stream = %s, want true", captured["stream"])
	}
	var msgs []Message
	if err := json.Unmarshal(captured["messages"], &msgs); err != nil {
		t.Fatalf("messages parse error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("messages = %+v, want system then user", msgs)
	}

	// Thinking off by default -> extra_body disables thinking mode.
	var extra struct {
		ChatTemplateKwargs struct {
			EnableThinking *bool `json:"enable_thinking"`
		} `json:"chat_template_kwargs"`
	}
	if err := json.Unmarshal(captured["extra_body"], &extra); err != nil {
		t.Fatalf("extra_body parse error: %v", err)
	}
	if extra.ChatTemplateKwargs.EnableThinking == nil || *extra.ChatTemplateKwargs.EnableThinking {
		t.Errorf("extra_body = %s, want enable_thinking false", captured["extra_body"])
	}
}

func TestSend_ThinkingModeOmitsExtraBody(t *testing.T) {
	var captured map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	s := NewSessionWithBaseURL("test-key", srv.URL, "m")
	s.Thinking = true
	if _, err := s.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := captured["extra_body"]; ok {
		t.Errorf("extra_body present with thinking enabled: %s", captured["extra_body"])
	}
}
