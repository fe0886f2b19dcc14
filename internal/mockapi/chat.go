package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// handleChatCompletions streams a canned assistant reply as SSE deltas,
// echoing the last user message so transcript behavior is observable.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		return
	}
	if len(req.Messages) == 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "messages is required and must not be empty")
		return
	}

	last := req.Messages[len(req.Messages)-1].Content
	reply := fmt.Sprintf("mock %s says: %s", req.Model, last)

	if !req.Stream {
		writeJSON(w, map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": reply}},
			},
		})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, word := range strings.SplitAfter(reply, " ") {
		chunk, err := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"delta": map[string]string{"content": word}},
			},
		})
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}
