package wireformat

import (
	"encoding/json"
	"fmt"
	"strings"
)

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaRequest covers both POST /api/chat (Messages) and POST
// /api/generate (Prompt) bodies; exactly one of the two is populated on
// any real request.
type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages,omitempty"`
	Prompt   string          `json:"prompt,omitempty"`
	Stream   *bool           `json:"stream,omitempty"`
}

// ParseOllama extracts (model, scannable text, stream flag) from an Ollama
// chat or generate request body. Ollama defaults stream=true when the
// field is omitted.
func ParseOllama(body []byte) (ParsedRequest, error) {
	var req ollamaRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return ParsedRequest{}, fmt.Errorf("wireformat: invalid ollama request body: %w", err)
	}

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	var text string
	if len(req.Messages) > 0 {
		parts := make([]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			parts = append(parts, m.Role+": "+m.Content)
		}
		text = strings.Join(parts, "\n")
	} else {
		text = req.Prompt
	}

	return ParsedRequest{Model: req.Model, ScannableText: text, Stream: stream, Format: FormatOllama}, nil
}
