package chat

import "encoding/json"

// Message is a role-tagged transcript entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the OpenAI-compatible chat completion request. Fields not
// explicitly modeled are preserved in Extra for pass-through.
type Request struct {
	Model       string                     `json:"model"`
	Messages    []Message                  `json:"messages"`
	Temperature float64                    `json:"temperature"`
	Stream      bool                       `json:"stream,omitempty"`
	Extra       map[string]json.RawMessage `json:"-"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage)
	for k, v := range r.Extra {
		m[k] = v
	}
	b, err := json.Marshal(r.Model)
	if err != nil {
		return nil, err
	}
	m["model"] = b
	if b, err = json.Marshal(r.Messages); err != nil {
		return nil, err
	}
	m["messages"] = b
	if b, err = json.Marshal(r.Temperature); err != nil {
		return nil, err
	}
	m["temperature"] = b
	if r.Stream {
		m["stream"] = json.RawMessage(`true`)
	}
	return json.Marshal(m)
}

// chunk is one streamed completion fragment.
type chunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}
