package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	pdfx "github.com/ledongthuc/pdf"

	"github.com/breadml/bakectl/internal/bakery"
)

const maxPDFPages = 50

// LoadMessagesFile loads prompt messages from a file. Supported formats:
//   - .json: an array of OpenAI-format messages
//   - .txt/.md: file text becomes a single system message
//   - .pdf: extracted text becomes a single system message
func LoadMessagesFile(path string) ([]bakery.Message, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading messages file: %w", err)
		}
		var msgs []bakery.Message
		if err := json.Unmarshal(data, &msgs); err != nil {
			return nil, fmt.Errorf("parsing messages file %s: %w", path, err)
		}
		return msgs, nil

	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading messages file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, fmt.Errorf("messages file %s is empty", path)
		}
		return []bakery.Message{bakery.TextMessage("system", text)}, nil

	case ".pdf":
		text, err := extractPDFText(path)
		if err != nil {
			return nil, err
		}
		return []bakery.Message{bakery.TextMessage("system", text)}, nil

	default:
		return nil, fmt.Errorf("unsupported messages file format %q", filepath.Ext(path))
	}
}

// LoadToolsFile loads tool definitions from a JSON file. The file may be a
// bare array or an object with a top-level "tools" array.
func LoadToolsFile(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tools file: %w", err)
	}

	var wrapper struct {
		Tools json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(data, &wrapper); err == nil && len(wrapper.Tools) > 0 {
		return wrapper.Tools, nil
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return nil, fmt.Errorf("parsing tools file %s: %w", path, err)
	}
	return json.RawMessage(data), nil
}

func extractPDFText(path string) (string, error) {
	f, r, err := pdfx.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	pages := r.NumPage()
	if pages > maxPDFPages {
		pages = maxPDFPages
	}

	var out strings.Builder
	for i := 1; i <= pages; i++ {
		txt, err := r.Page(i).GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			out.WriteString(t)
			out.WriteString("\n\n")
		}
	}

	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("no extractable text in %s", path)
	}
	return text, nil
}
